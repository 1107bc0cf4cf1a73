// Package config loads webpilot configuration with the precedence
// defaults → YAML file → environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vantus-ai/webpilot/internal/logging"
	"github.com/vantus-ai/webpilot/types"
)

// Config is the complete webpilot configuration.
type Config struct {
	Browser BrowserConfig  `yaml:"browser"`
	Agent   AgentConfig    `yaml:"agent"`
	Trace   TraceConfig    `yaml:"trace"`
	Log     logging.Config `yaml:"log"`
}

// BrowserConfig controls browser launch options.
type BrowserConfig struct {
	Headless        bool   `yaml:"headless"`
	WindowWidth     int    `yaml:"window_width"`
	WindowHeight    int    `yaml:"window_height"`
	DisableSecurity bool   `yaml:"disable_security"`
	UserDataDir     string `yaml:"user_data_dir"`
	Proxy           string `yaml:"proxy"`
}

// AgentConfig controls task execution.
type AgentConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	Vision            bool    `yaml:"vision"`
	MaxSteps          int     `yaml:"max_steps"`
	MaxActionsPerStep int     `yaml:"max_actions_per_step"`
}

// TraceConfig controls where recordings and traces land.
type TraceConfig struct {
	TraceDir     string `yaml:"trace_dir"`
	RecordingDir string `yaml:"recording_dir"`
	StateDir     string `yaml:"state_dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Agent: AgentConfig{
			Provider:          "deepseek",
			Model:             "deepseek-chat",
			Temperature:       0.8,
			MaxSteps:          10,
			MaxActionsPerStep: 1,
		},
		Trace: TraceConfig{
			TraceDir:     "./tmp/traces",
			RecordingDir: "./tmp/record_videos",
			StateDir:     defaultStateDir(),
		},
		Log: logging.DefaultConfig(),
	}
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.webpilot"
	}
	return ".webpilot"
}

// Loader loads configuration.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a Loader with the WEBPILOT env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "WEBPILOT"}
}

// WithConfigPath sets an explicit YAML config file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load resolves the effective configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidConfig, "read config file %s", l.configPath).WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.Errorf(types.ErrInvalidConfig, "parse config file %s", l.configPath).WithCause(err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setBool("BROWSER_HEADLESS", &cfg.Browser.Headless)
	setInt("BROWSER_WINDOW_WIDTH", &cfg.Browser.WindowWidth)
	setInt("BROWSER_WINDOW_HEIGHT", &cfg.Browser.WindowHeight)
	setString("BROWSER_USER_DATA_DIR", &cfg.Browser.UserDataDir)
	setString("BROWSER_PROXY", &cfg.Browser.Proxy)
	setString("AGENT_PROVIDER", &cfg.Agent.Provider)
	setString("AGENT_MODEL", &cfg.Agent.Model)
	setInt("AGENT_MAX_STEPS", &cfg.Agent.MaxSteps)
	setString("TRACE_DIR", &cfg.Trace.TraceDir)
	setString("RECORDING_DIR", &cfg.Trace.RecordingDir)
	setString("STATE_DIR", &cfg.Trace.StateDir)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return types.Errorf(types.ErrInvalidConfig, "window size must be positive, got %dx%d",
			c.Browser.WindowWidth, c.Browser.WindowHeight)
	}
	if c.Agent.MaxSteps <= 0 {
		return types.Errorf(types.ErrInvalidConfig, "max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	return nil
}

// ParseWindowSize parses a WxH string such as "1920x1080".
func ParseWindowSize(s string) (int, int, error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid window size format: %s", s)
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid window size format: %s", s)
	}
	return w, h, nil
}
