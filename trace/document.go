package trace

import "encoding/json"

// TraceDocument is the enhanced model of a recorded session: a step timeline
// with metadata, network activity, and performance aggregates. It is built
// once per analyzer instance and never mutated afterwards, so concurrent
// readers need no synchronization.
type TraceDocument struct {
	Metadata    Metadata    `json:"metadata"`
	Steps       []Step      `json:"steps"`
	Network     NetworkInfo `json:"network"`
	Performance Performance `json:"performance"`

	// Diagnostics records malformed stream lines skipped during the parse.
	Diagnostics []string `json:"-"`
}

// Metadata describes the recorded session.
type Metadata struct {
	SessionID   string      `json:"session_id"`
	Timestamp   int64       `json:"timestamp"`
	BrowserInfo BrowserInfo `json:"browser_info"`
}

// BrowserInfo captures browser-level context resolved from the event stream.
type BrowserInfo struct {
	Viewport  Viewport `json:"viewport"`
	UserAgent string   `json:"user_agent"`
	URL       string   `json:"url,omitempty"`
}

// Viewport is a browser viewport size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// StepStatus is the lifecycle status of a step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// Step is one reconstructed action with timing, status, and context.
// StepID is assigned in creation order starting at 1 and never changes.
type Step struct {
	StepID        int           `json:"step_id"`
	Action        string        `json:"action"`
	Target        string        `json:"target"`
	Timing        Timing        `json:"timing"`
	Status        StepStatus    `json:"status"`
	ErrorContext  *ErrorContext `json:"error_context"`
	VisualState   VisualState   `json:"visual_state"`
	ActionContext ActionContext `json:"action_context"`
}

// Timing holds step start/end timestamps. End and Duration stay nil for a
// step whose closing event never arrived.
type Timing struct {
	Start    int64  `json:"start"`
	End      *int64 `json:"end"`
	Duration *int64 `json:"duration"`
}

// ErrorContext describes a step failure. Pre-structured enhanced documents
// attach additional keys (target_element, recovery_attempts,
// environment_factors); those are kept in Extra and round-tripped.
type ErrorContext struct {
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Stack     string         `json:"stack"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON keeps unrecognized error-context keys.
func (ec *ErrorContext) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ec.ErrorType = mapString(raw, "error_type", "")
	ec.Message = mapString(raw, "message", "")
	ec.Stack = mapString(raw, "stack", "")
	for _, known := range []string{"error_type", "message", "stack"} {
		delete(raw, known)
	}
	if len(raw) > 0 {
		ec.Extra = raw
	}
	return nil
}

// MarshalJSON emits the typed fields plus any extras.
func (ec ErrorContext) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(ec.Extra)+3)
	for k, v := range ec.Extra {
		out[k] = v
	}
	out["error_type"] = ec.ErrorType
	out["message"] = ec.Message
	out["stack"] = ec.Stack
	return json.Marshal(out)
}

// VisualState tracks screenshot, visibility, and layout-shift deltas.
type VisualState struct {
	ScreenshotDiffs   map[string]any   `json:"screenshot_diffs"`
	ElementVisibility map[string]any   `json:"element_visibility"`
	LayoutShifts      []map[string]any `json:"layout_shifts"`
}

// ActionContext carries the element and viewport state around an action.
// ElementState is the open params payload of the opening event; the agent
// stashes decision metadata (confidence, alternatives, recovery attempts,
// model usage) in it.
type ActionContext struct {
	ElementState  map[string]any `json:"element_state"`
	ViewportState Viewport       `json:"viewport_state"`
}

// NetworkInfo lists simplified network responses observed by the recorder.
type NetworkInfo struct {
	Requests []ResponseEvent `json:"requests"`
}

// ResponseEvent is one Network.responseReceived projection.
type ResponseEvent struct {
	URL    string  `json:"url"`
	Method string  `json:"method"`
	Status float64 `json:"status"`
	Timing any     `json:"timing"`
}

// Performance aggregates navigation and interaction timing.
type Performance struct {
	NavigationTiming  NavigationTiming  `json:"navigation_timing"`
	InteractionTiming InteractionTiming `json:"interaction_timing"`
}

// NavigationTiming records page lifecycle timestamps.
type NavigationTiming struct {
	DOMComplete  int64 `json:"dom_complete"`
	LoadComplete int64 `json:"load_complete"`
}

// InteractionTiming records first-interaction delay and mean step latency.
type InteractionTiming struct {
	TimeToFirstInteraction int64   `json:"time_to_first_interaction"`
	ActionLatency          float64 `json:"action_latency"`
}
