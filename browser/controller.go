package browser

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/internal/backoff"
	"github.com/vantus-ai/webpilot/types"
)

// LaunchFunc starts the underlying automation engine.
type LaunchFunc func(ctx context.Context, cfg config.BrowserConfig) (Driver, error)

// Controller owns at most one live Driver and initializes it lazily.
// Initialization runs at most once while it succeeds; a failed launch resets
// the controller so a later call can try again.
type Controller struct {
	cfg     config.BrowserConfig
	launch  LaunchFunc
	retryer *backoff.Retryer
	logger  *zap.Logger

	mu          sync.Mutex
	driver      Driver
	launchCount int
}

// NewController creates a Controller. A nil policy uses the default retry
// policy for launches.
func NewController(cfg config.BrowserConfig, launch LaunchFunc, policy *backoff.Policy, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "browser_controller"))
	return &Controller{
		cfg:     cfg,
		launch:  launch,
		retryer: backoff.New(policy, logger),
		logger:  logger,
	}
}

// Initialize launches the browser if it is not already running.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver != nil {
		return nil
	}

	c.logger.Info("launching browser",
		zap.Bool("headless", c.cfg.Headless),
		zap.Int("attempted_launches", c.launchCount))

	var driver Driver
	err := c.retryer.Do(ctx, "browser_launch", func() error {
		var launchErr error
		driver, launchErr = c.launch(ctx, c.cfg)
		return launchErr
	})
	if err != nil {
		c.logger.Error("browser launch failed", zap.Error(err))
		return types.NewError(types.ErrBrowserLaunch, "browser initialization failed").WithCause(err)
	}

	c.driver = driver
	c.launchCount++
	c.logger.Info("browser launched", zap.Int("launch_count", c.launchCount))
	return nil
}

// Driver returns the live driver, or BROWSER_LAUNCH when none is running.
func (c *Controller) Driver() (Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return nil, types.NewError(types.ErrBrowserLaunch, "browser is not initialized")
	}
	return c.driver, nil
}

// LaunchCount reports how many successful launches this controller made.
func (c *Controller) LaunchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launchCount
}

// Close shuts the browser down. Closing an uninitialized controller is a
// no-op.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	if err != nil {
		return err
	}
	c.logger.Info("browser closed")
	return nil
}
