package trace

import (
	"encoding/json"
	"strings"
)

// RawEvent is one parsed record from a newline-delimited trace stream.
// Producers evolve faster than analyzers, so only the fields the models
// depend on are typed; everything else lands in Extra.
type RawEvent struct {
	Type      string
	Method    string
	Params    map[string]any
	Timestamp int64
	Duration  *int64
	SessionID string
	Error     map[string]any
	Extra     map[string]any
}

// HasError reports whether the event carried an error payload.
func (e *RawEvent) HasError() bool {
	return e.Error != nil
}

// UnmarshalJSON decodes the known fields and keeps unrecognized keys.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		switch key {
		case "type":
			json.Unmarshal(value, &e.Type)
		case "method":
			json.Unmarshal(value, &e.Method)
		case "params":
			json.Unmarshal(value, &e.Params)
		case "timestamp":
			json.Unmarshal(value, &e.Timestamp)
		case "duration":
			var d int64
			if err := json.Unmarshal(value, &d); err == nil {
				e.Duration = &d
			}
		case "sessionId":
			json.Unmarshal(value, &e.SessionID)
		case "error":
			json.Unmarshal(value, &e.Error)
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			var v any
			if err := json.Unmarshal(value, &v); err == nil {
				e.Extra[key] = v
			}
		}
	}
	return nil
}

// ParseEvents splits data into newline-delimited JSON events in file order.
// Blank lines are skipped. A malformed line is recorded in the returned
// diagnostics and discarded; a single corrupt line never aborts the parse.
func ParseEvents(data []byte) ([]RawEvent, []string) {
	var events []RawEvent
	var diagnostics []string

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event RawEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			diagnostics = append(diagnostics, "Failed to parse trace event: "+line)
			continue
		}
		events = append(events, event)
	}
	return events, diagnostics
}

// mapString returns m[key] as a string, or def when absent or mistyped.
func mapString(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}

// mapFloat returns m[key] as a float64, or def when absent or mistyped.
func mapFloat(m map[string]any, key string, def float64) float64 {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// mapMap returns m[key] as a mapping, or an empty mapping.
func mapMap(m map[string]any, key string) map[string]any {
	if m != nil {
		if sub, ok := m[key].(map[string]any); ok {
			return sub
		}
	}
	return map[string]any{}
}

// mapList returns m[key] as a list, or an empty list.
func mapList(m map[string]any, key string) []any {
	if m != nil {
		if list, ok := m[key].([]any); ok {
			return list
		}
	}
	return []any{}
}
