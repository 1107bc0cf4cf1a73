package trace

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/types"
)

// ActionSpan is one action entry in the basic model. Every qualifying
// before and after event becomes its own independent entry; the basic model
// deliberately does not pair them into a single span the way the enhanced
// model does.
type ActionSpan struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Duration  int64          `json:"duration"`
	Params    map[string]any `json:"params"`
	Success   bool           `json:"success"`
	Error     map[string]any `json:"error"`
}

// SessionTrace is the basic model of a recorded session: flat action spans,
// normalized network requests, console output, and the error log (both error
// events and parse diagnostics).
type SessionTrace struct {
	Actions     []ActionSpan     `json:"actions"`
	Requests    []NetworkRequest `json:"network_requests"`
	ConsoleLogs []string         `json:"console_logs"`
	Errors      []string         `json:"errors"`
}

// Summary aggregates counts over a SessionTrace.
type Summary struct {
	TotalActions   int    `json:"total_actions"`
	FailedActions  int    `json:"failed_actions"`
	TotalRequests  int    `json:"total_requests"`
	FailedRequests int    `json:"failed_requests"`
	TotalErrors    int    `json:"total_errors"`
	ErrorSummary   string `json:"error_summary"`
}

// ParseSession parses the archive at path into a SessionTrace: events from
// the first *.trace member, network requests from the first *.har member
// when one is present.
func ParseSession(path string, logger *zap.Logger) (*SessionTrace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "trace_parser"))

	src, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return parseSessionFrom(src, logger)
}

func parseSessionFrom(src Source, logger *zap.Logger) (*SessionTrace, error) {
	st := &SessionTrace{}

	traceMember := findMember(src, ".trace")
	if traceMember != "" {
		data, err := src.ReadMember(traceMember)
		if err != nil {
			return nil, fmt.Errorf("read trace member: %w", err)
		}
		events, diagnostics := ParseEvents(data)
		st.Errors = append(st.Errors, diagnostics...)
		for i := range events {
			st.processEvent(&events[i])
		}
		logger.Debug("parsed trace events",
			zap.String("member", traceMember),
			zap.Int("actions", len(st.Actions)),
			zap.Int("malformed_lines", len(diagnostics)))
	}

	harMember := findMember(src, ".har")
	if harMember != "" {
		data, err := src.ReadMember(harMember)
		if err != nil {
			return nil, fmt.Errorf("read har member: %w", err)
		}
		var har HAR
		if err := json.Unmarshal(data, &har); err != nil {
			return nil, types.Errorf(types.ErrInvalidFormat, "invalid har member: %s", harMember).WithCause(err)
		}
		for _, entry := range har.Log.Entries {
			st.Requests = append(st.Requests, requestFromEntry(entry))
		}
	}

	return st, nil
}

// processEvent categorizes a single event. Events without a type are ignored.
func (st *SessionTrace) processEvent(event *RawEvent) {
	switch event.Type {
	case "before", "after":
		if event.Method == "" || event.Params == nil {
			return
		}
		var duration int64
		if event.Duration != nil {
			duration = *event.Duration
		}
		st.Actions = append(st.Actions, ActionSpan{
			Type:      event.Method,
			Timestamp: event.Timestamp,
			Duration:  duration,
			Params:    event.Params,
			Success:   event.Type == "after" && !event.HasError(),
			Error:     event.Error,
		})
	case "console":
		if text, ok := event.Extra["text"].(string); ok {
			st.ConsoleLogs = append(st.ConsoleLogs, text)
		}
	case "error":
		if event.HasError() {
			st.Errors = append(st.Errors, mapString(event.Error, "message", fmt.Sprint(event.Error)))
		}
	}
}

// Summarize derives the aggregate view of the trace.
func (st *SessionTrace) Summarize() Summary {
	// A before entry is never successful but is not a failure either; only
	// spans that carry an error payload count as failed.
	failedActions := 0
	for _, a := range st.Actions {
		if !a.Success && a.Error != nil {
			failedActions++
		}
	}
	failedRequests := 0
	for _, r := range st.Requests {
		if r.Failure {
			failedRequests++
		}
	}
	errorSummary := "No errors"
	if len(st.Errors) > 0 {
		errorSummary = strings.Join(st.Errors, "\n")
	}
	return Summary{
		TotalActions:   len(st.Actions),
		FailedActions:  failedActions,
		TotalRequests:  len(st.Requests),
		FailedRequests: failedRequests,
		TotalErrors:    len(st.Errors),
		ErrorSummary:   errorSummary,
	}
}

// SessionReport is the JSON shape produced for basic analysis consumers.
type SessionReport struct {
	Actions     []ActionSpan     `json:"actions"`
	Requests    []NetworkRequest `json:"network_requests"`
	ConsoleLogs []string         `json:"console_logs"`
	Errors      []string         `json:"errors"`
	Summary     Summary          `json:"summary"`
}

// Report bundles the trace with its summary.
func (st *SessionTrace) Report() SessionReport {
	return SessionReport{
		Actions:     st.Actions,
		Requests:    st.Requests,
		ConsoleLogs: st.ConsoleLogs,
		Errors:      st.Errors,
		Summary:     st.Summarize(),
	}
}
