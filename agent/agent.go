// Package agent runs natural-language browser tasks as an observe-decide-act
// loop: read the page state, ask the planner for the next action, execute it,
// repeat until the planner declares the goal done or the step budget runs out.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/browser"
	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/tasklog"
)

// PageState is what the planner sees of the current page.
type PageState struct {
	URL  string `json:"url"`
	Step int    `json:"step"`
}

// StepRecord is one executed action with its outcome, fed back to the
// planner as history.
type StepRecord struct {
	Command browser.Command `json:"command"`
	Error   string          `json:"error,omitempty"`
}

// Decision is the planner's verdict for one loop iteration.
type Decision struct {
	Done    bool            `json:"done"`
	Reason  string          `json:"reason,omitempty"`
	Command browser.Command `json:"command"`
}

// Planner picks the next browser action toward a goal.
type Planner interface {
	NextAction(ctx context.Context, goal string, state PageState, history []StepRecord) (Decision, error)
}

// Agent executes one task at a time against a browser controller.
type Agent struct {
	planner    Planner
	controller *browser.Controller
	cfg        config.AgentConfig
	sink       string
	shotDir    string
	logger     *zap.Logger
}

// New creates an Agent. sink is the JSONL path task records are appended
// to; empty disables persistence.
func New(planner Planner, controller *browser.Controller, cfg config.AgentConfig, sink string, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		planner:    planner,
		controller: controller,
		cfg:        cfg,
		sink:       sink,
		logger:     logger.With(zap.String("component", "agent")),
	}
}

// CaptureScreenshots makes the agent save a PNG of the page into dir after
// every successful action.
func (a *Agent) CaptureScreenshots(dir string) {
	a.shotDir = dir
}

// Run drives the browser toward the goal and returns the task record.
// The record is returned even when the run fails.
func (a *Agent) Run(ctx context.Context, goal string) (tasklog.Record, error) {
	track := tasklog.NewLogger(goal, a.sink, a.logger)

	if err := a.controller.Initialize(ctx); err != nil {
		_ = track.Fail("BrowserLaunch", err.Error(), "initialize")
		return track.Snapshot(), err
	}
	driver, err := a.controller.Driver()
	if err != nil {
		_ = track.Fail("BrowserLaunch", err.Error(), "initialize")
		return track.Snapshot(), err
	}

	var history []StepRecord
	for step := 1; step <= a.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			_ = track.Fail("Cancelled", err.Error(), "")
			return track.Snapshot(), err
		}

		url, err := driver.URL(ctx)
		if err != nil {
			a.logger.Warn("could not read page url", zap.Error(err))
		}
		state := PageState{URL: url, Step: step}

		decision, err := a.planner.NextAction(ctx, goal, state, history)
		if err != nil {
			_ = track.Fail("Planner", err.Error(), "")
			return track.Snapshot(), fmt.Errorf("planning step %d: %w", step, err)
		}
		if decision.Done {
			a.logger.Info("goal reached",
				zap.Int("steps", step-1),
				zap.String("reason", decision.Reason))
			if err := track.Finish(tasklog.StatusComplete); err != nil {
				a.logger.Warn("could not persist task record", zap.Error(err))
			}
			return track.Snapshot(), nil
		}

		track.StartStep(describeCommand(decision.Command), classifyAction(decision.Command.Action))
		started := time.Now()
		execErr := browser.Perform(ctx, driver, decision.Command)
		record := StepRecord{Command: decision.Command}
		if execErr != nil {
			record.Error = execErr.Error()
			track.FinishStep(tasklog.StatusFailed, map[string]any{"error": execErr.Error()})
			a.logger.Warn("action failed",
				zap.String("action", string(decision.Command.Action)),
				zap.Error(execErr))
		} else {
			track.FinishStep(tasklog.StatusComplete, map[string]any{
				"duration_ms": time.Since(started).Milliseconds(),
			})
			a.saveScreenshot(ctx, driver, step)
		}
		history = append(history, record)

		if url, err := driver.URL(ctx); err == nil {
			track.UpdateBrowserState(tasklog.BrowserState{URL: url, PageReady: true})
		}
	}

	err = fmt.Errorf("goal not reached within %d steps", a.cfg.MaxSteps)
	_ = track.Fail("StepBudget", err.Error(), "")
	return track.Snapshot(), err
}

func (a *Agent) saveScreenshot(ctx context.Context, driver browser.Driver, step int) {
	if a.shotDir == "" {
		return
	}
	img, err := driver.Screenshot(ctx)
	if err != nil {
		a.logger.Warn("screenshot failed", zap.Int("step", step), zap.Error(err))
		return
	}
	path := filepath.Join(a.shotDir, fmt.Sprintf("step_%03d.png", step))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		a.logger.Warn("could not write screenshot", zap.String("path", path), zap.Error(err))
	}
}

func describeCommand(cmd browser.Command) string {
	switch cmd.Action {
	case browser.ActionNavigate:
		return "navigate to " + cmd.Value
	case browser.ActionClick:
		return "click " + cmd.Selector
	case browser.ActionType:
		return fmt.Sprintf("type into %s", cmd.Selector)
	case browser.ActionScroll:
		return fmt.Sprintf("scroll by %d,%d", cmd.DeltaX, cmd.DeltaY)
	default:
		return string(cmd.Action)
	}
}

func classifyAction(action browser.Action) tasklog.ActionType {
	switch action {
	case browser.ActionNavigate:
		return tasklog.ActionNavigation
	case browser.ActionScreenshot, browser.ActionWait:
		return tasklog.ActionExtraction
	default:
		return tasklog.ActionInteraction
	}
}
