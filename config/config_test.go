package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantus-ai/webpilot/types"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, "deepseek-chat", cfg.Agent.Model)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
browser:
  headless: true
  window_width: 1280
  window_height: 720
agent:
  model: gpt-4
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, "gpt-4", cfg.Agent.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  model: gpt-4\n"), 0o644))
	t.Setenv("WEBPILOT_AGENT_MODEL", "claude-3")
	t.Setenv("WEBPILOT_BROWSER_HEADLESS", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-3", cfg.Agent.Model)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoad_Failures(t *testing.T) {
	_, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("browser: ["), 0o644))
	_, err = NewLoader().WithConfigPath(bad).Load()
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Browser.WindowWidth = 0
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(cfg.Validate()))

	cfg = Default()
	cfg.Agent.MaxSteps = -1
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(cfg.Validate()))
}

func TestParseWindowSize(t *testing.T) {
	w, h, err := ParseWindowSize("1920x1080")
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	for _, bad := range []string{"", "1920", "axb", "0x100", "1920x"} {
		_, _, err := ParseWindowSize(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
