package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantus-ai/webpilot/types"
)

func fastPolicy() *Policy {
	return &Policy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := New(fastPolicy(), nil).Do(context.Background(), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	cause := errors.New("net::ERR_CONNECTION_REFUSED")
	err := New(fastPolicy(), nil).Do(context.Background(), "navigate", func() error {
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMaxRetries, types.GetErrorCode(err))
	assert.ErrorIs(t, err, cause)
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := &Policy{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	done := make(chan error, 1)
	go func() {
		done <- New(policy, nil).Do(ctx, "slow", func() error {
			return errors.New("always")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestExtractErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ERR_NAME_NOT_RESOLVED",
		ExtractErrorCode(errors.New("net::ERR_NAME_NOT_RESOLVED at https://x")))
	assert.Equal(t, "UNKNOWN_ERROR", ExtractErrorCode(errors.New("plain failure")))
	assert.Equal(t, "UNKNOWN_ERROR", ExtractErrorCode(nil))
}
