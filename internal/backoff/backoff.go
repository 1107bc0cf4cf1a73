// Package backoff provides the generic retry helper used around flaky
// browser and provider operations.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/types"
)

// Policy configures retry behavior.
type Policy struct {
	MaxRetries   int           // maximum retries after the first attempt (0 disables retrying)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the computed delay
	Multiplier   float64       // exponential growth factor
	Jitter       bool          // add up to 25% random jitter to each delay
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer runs operations with exponential backoff.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
}

// New creates a Retryer. Invalid policy fields are normalized to defaults.
func New(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 10 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn until it succeeds, the retry budget is exhausted, or ctx is
// canceled. An exhausted budget returns a MAX_RETRIES error wrapping the
// last failure.
func (r *Retryer) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying operation",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return types.Errorf(types.ErrMaxRetries, "max retries exceeded for operation %q", operation).
		WithCause(lastErr)
}

func (r *Retryer) delay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		delay += delay * 0.25 * rand.Float64()
	}
	return time.Duration(delay)
}

var errCodePattern = regexp.MustCompile(`ERR_[A-Z_]+`)

// ExtractErrorCode pulls a browser-style ERR_ code out of an error message,
// or "UNKNOWN_ERROR" when none is present.
func ExtractErrorCode(err error) string {
	if err == nil {
		return "UNKNOWN_ERROR"
	}
	if code := errCodePattern.FindString(err.Error()); code != "" {
		return code
	}
	return "UNKNOWN_ERROR"
}
