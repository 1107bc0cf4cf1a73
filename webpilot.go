// Package webpilot provides a top-level convenience entry point for running
// LLM-planned browser tasks with minimal boilerplate.
//
// Usage:
//
//	import "github.com/vantus-ai/webpilot"
//
//	a, err := webpilot.NewAgent(webpilot.WithModel("deepseek-chat"))
//	record, err := a.Run(ctx, "find the cheapest train to Berlin")
//
// Embedders that need finer control can assemble agent, browser, and trace
// packages directly; this wrapper only covers the common path.
package webpilot

import (
	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/agent"
	"github.com/vantus-ai/webpilot/browser"
	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/trace"
)

// Option configures the agent created by [NewAgent].
type Option func(*options)

type options struct {
	cfg     *config.Config
	logger  *zap.Logger
	planner agent.Planner
	sink    string
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithModel overrides the planner model name.
func WithModel(model string) Option {
	return func(o *options) { o.cfg.Agent.Model = model }
}

// WithProvider overrides the LLM provider name.
func WithProvider(provider string) Option {
	return func(o *options) { o.cfg.Agent.Provider = provider }
}

// WithPlanner sets a pre-built planner, bypassing the LLM setup.
func WithPlanner(p agent.Planner) Option {
	return func(o *options) { o.planner = p }
}

// WithTaskSink sets the JSONL file task records are appended to.
func WithTaskSink(path string) Option {
	return func(o *options) { o.sink = path }
}

// NewAgent creates an [agent.Agent] that launches its own browser. The LLM
// API key is read from WEBPILOT_API_KEY unless a planner is supplied.
func NewAgent(opts ...Option) (*agent.Agent, error) {
	o := options{cfg: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	planner := o.planner
	if planner == nil {
		var err error
		planner, err = agent.NewLLMPlanner(o.cfg.Agent, o.logger)
		if err != nil {
			return nil, err
		}
	}

	ctrl := browser.NewController(o.cfg.Browser, browser.NewLaunchFunc(o.logger), nil, o.logger)
	return agent.New(planner, ctrl, o.cfg.Agent, o.sink, o.logger), nil
}

// NewTraceAnalyzer opens a recorded trace for analysis.
func NewTraceAnalyzer(path string, logger *zap.Logger) *trace.Analyzer {
	return trace.NewAnalyzer(path, logger)
}
