package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/internal/backoff"
	"github.com/vantus-ai/webpilot/types"
)

// fakeDriver records the commands it receives.
type fakeDriver struct {
	calls  []string
	closed bool
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.calls = append(f.calls, "navigate:"+url)
	return nil
}

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.calls = append(f.calls, "click:"+selector)
	return nil
}

func (f *fakeDriver) Type(_ context.Context, selector, text string) error {
	f.calls = append(f.calls, "type:"+selector+":"+text)
	return nil
}

func (f *fakeDriver) Scroll(_ context.Context, _, _ int) error {
	f.calls = append(f.calls, "scroll")
	return nil
}

func (f *fakeDriver) Screenshot(_ context.Context) ([]byte, error) {
	f.calls = append(f.calls, "screenshot")
	return []byte{1}, nil
}

func (f *fakeDriver) URL(_ context.Context) (string, error) { return "about:blank", nil }

func (f *fakeDriver) Close(_ context.Context) error {
	f.closed = true
	return nil
}

func fastPolicy() *backoff.Policy {
	return &backoff.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestController_InitializeOnce(t *testing.T) {
	t.Parallel()

	launches := 0
	driver := &fakeDriver{}
	c := NewController(config.BrowserConfig{}, func(context.Context, config.BrowserConfig) (Driver, error) {
		launches++
		return driver, nil
	}, fastPolicy(), nil)

	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, 1, launches)
	assert.Equal(t, 1, c.LaunchCount())

	d, err := c.Driver()
	require.NoError(t, err)
	assert.Same(t, driver, d)
}

func TestController_FailedLaunchAllowsRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	c := NewController(config.BrowserConfig{}, func(context.Context, config.BrowserConfig) (Driver, error) {
		attempts++
		if attempts <= 3 {
			return nil, errors.New("no display")
		}
		return &fakeDriver{}, nil
	}, fastPolicy(), nil)

	ctx := context.Background()
	err := c.Initialize(ctx)
	require.Error(t, err)
	assert.Equal(t, types.ErrBrowserLaunch, types.GetErrorCode(err))
	assert.Equal(t, 0, c.LaunchCount())

	_, err = c.Driver()
	assert.Equal(t, types.ErrBrowserLaunch, types.GetErrorCode(err))

	// The controller reset on failure; a later initialize relaunches.
	require.NoError(t, c.Initialize(ctx))
	assert.Equal(t, 1, c.LaunchCount())
}

func TestController_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	c := NewController(config.BrowserConfig{}, func(context.Context, config.BrowserConfig) (Driver, error) {
		return driver, nil
	}, fastPolicy(), nil)

	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx))
	require.NoError(t, c.Close(ctx))
	assert.True(t, driver.closed)
	require.NoError(t, c.Close(ctx))

	_, err := c.Driver()
	assert.Error(t, err)
}

func TestPerform_Dispatch(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	ctx := context.Background()

	require.NoError(t, Perform(ctx, driver, Command{Action: ActionNavigate, Value: "https://example.com"}))
	require.NoError(t, Perform(ctx, driver, Command{Action: ActionClick, Selector: "#go"}))
	require.NoError(t, Perform(ctx, driver, Command{Action: ActionType, Selector: "#q", Value: "hi"}))
	require.NoError(t, Perform(ctx, driver, Command{Action: ActionScreenshot}))
	assert.Equal(t, []string{
		"navigate:https://example.com",
		"click:#go",
		"type:#q:hi",
		"screenshot",
	}, driver.calls)

	err := Perform(ctx, driver, Command{Action: "teleport"})
	assert.Error(t, err)
}
