// Package browser wraps the browser-automation engine behind a small
// command surface. The engine itself stays an external collaborator: the
// package talks only to the Driver interface and never to a concrete
// automation runtime.
package browser

import (
	"context"
	"fmt"
)

// Action is a browser action type.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionType       Action = "type"
	ActionScroll     Action = "scroll"
	ActionScreenshot Action = "screenshot"
	ActionWait       Action = "wait"
)

// Command is one action to execute in the browser.
type Command struct {
	Action   Action `json:"action"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	DeltaX   int    `json:"delta_x,omitempty"`
	DeltaY   int    `json:"delta_y,omitempty"`
}

// Driver is the control surface of the underlying automation engine.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Scroll(ctx context.Context, deltaX, deltaY int) error
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Perform dispatches one command to the driver.
func Perform(ctx context.Context, d Driver, cmd Command) error {
	switch cmd.Action {
	case ActionNavigate:
		return d.Navigate(ctx, cmd.Value)
	case ActionClick:
		return d.Click(ctx, cmd.Selector)
	case ActionType:
		return d.Type(ctx, cmd.Selector, cmd.Value)
	case ActionScroll:
		return d.Scroll(ctx, cmd.DeltaX, cmd.DeltaY)
	case ActionScreenshot:
		_, err := d.Screenshot(ctx)
		return err
	case ActionWait:
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	default:
		return fmt.Errorf("unknown browser action: %s", cmd.Action)
	}
}
