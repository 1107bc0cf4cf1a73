package trace

// buildDocument converts a parsed event stream plus a network-event stream
// into a TraceDocument. The whole conversion is a single order-preserving
// pass; step pairing is an explicit one-variable state machine so the
// orphaned-open-step transitions stay visible and testable.
func buildDocument(traceEvents, networkEvents []RawEvent) *TraceDocument {
	metadata := extractMetadata(traceEvents)
	steps := buildSteps(traceEvents, metadata.BrowserInfo.Viewport)

	requests := []ResponseEvent{}
	for i := range networkEvents {
		event := &networkEvents[i]
		if event.Method != "Network.responseReceived" {
			continue
		}
		requests = append(requests, ResponseEvent{
			URL:    mapString(event.Params, "url", ""),
			Method: mapString(event.Params, "method", ""),
			Status: mapFloat(event.Params, "status", 0),
			Timing: event.Params["timing"],
		})
	}

	return &TraceDocument{
		Metadata:    metadata,
		Steps:       steps,
		Network:     NetworkInfo{Requests: requests},
		Performance: extractPerformance(traceEvents, steps, metadata),
	}
}

// extractMetadata resolves session identity and browser info. The session id
// and start timestamp come from the first event; viewport and user agent from
// the first matching method call anywhere in the stream.
func extractMetadata(events []RawEvent) Metadata {
	md := Metadata{
		SessionID:   "unknown",
		BrowserInfo: BrowserInfo{UserAgent: "unknown"},
	}
	if len(events) > 0 {
		if events[0].SessionID != "" {
			md.SessionID = events[0].SessionID
		}
		md.Timestamp = events[0].Timestamp
	}
	for i := range events {
		if events[i].Method == "setViewportSize" {
			if vp, ok := events[i].Params["viewport"].(map[string]any); ok {
				md.BrowserInfo.Viewport = Viewport{
					Width:  int(mapFloat(vp, "width", 0)),
					Height: int(mapFloat(vp, "height", 0)),
				}
			}
			break
		}
	}
	for i := range events {
		if events[i].Method == "setUserAgent" {
			md.BrowserInfo.UserAgent = mapString(events[i].Params, "userAgent", "unknown")
			break
		}
	}
	return md
}

// buildSteps runs the before/after pairing state machine.
//
// States: no open step, or exactly one open step. Transitions:
//   - before, no open step:  open a new step (pending)
//   - before, open step:     push the open step as-is (it never got its
//     after event), then open a new step
//   - after, open step:      close it with end/duration and success or error
//   - after, no open step:   ignored
//   - end of stream:         a still-open step is pushed (orphan preserved)
func buildSteps(events []RawEvent, viewport Viewport) []Step {
	steps := []Step{}
	var open *Step

	for i := range events {
		event := &events[i]
		switch event.Type {
		case "before":
			if open != nil {
				steps = append(steps, *open)
			}
			open = newStep(len(steps)+1, event, viewport)
		case "after":
			if open == nil {
				continue
			}
			end := event.Timestamp
			duration := end - open.Timing.Start
			open.Timing.End = &end
			open.Timing.Duration = &duration
			if event.HasError() {
				open.Status = StepError
				open.ErrorContext = &ErrorContext{
					ErrorType: mapString(event.Error, "name", "unknown"),
					Message:   mapString(event.Error, "message", ""),
					Stack:     mapString(event.Error, "stack", ""),
				}
			} else {
				open.Status = StepSuccess
			}
		}
	}

	if open != nil {
		steps = append(steps, *open)
	}
	return steps
}

func newStep(id int, event *RawEvent, viewport Viewport) *Step {
	params := event.Params
	if params == nil {
		params = map[string]any{}
	}
	action := event.Method
	if action == "" {
		action = "unknown"
	}
	return &Step{
		StepID: id,
		Action: action,
		Target: mapString(params, "selector", ""),
		Timing: Timing{Start: event.Timestamp},
		Status: StepPending,
		VisualState: VisualState{
			ScreenshotDiffs:   map[string]any{},
			ElementVisibility: map[string]any{},
			LayoutShifts:      []map[string]any{},
		},
		ActionContext: ActionContext{
			ElementState:  params,
			ViewportState: viewport,
		},
	}
}

func extractPerformance(events []RawEvent, steps []Step, md Metadata) Performance {
	perf := Performance{}

	for i := range events {
		if events[i].Method == "domcontentloaded" {
			perf.NavigationTiming.DOMComplete = events[i].Timestamp
			break
		}
	}
	for i := range events {
		if events[i].Method == "load" {
			perf.NavigationTiming.LoadComplete = events[i].Timestamp
			break
		}
	}

	var firstInteraction int64
	for i := range events {
		event := &events[i]
		if event.Type == "before" && (event.Method == "click" || event.Method == "fill") {
			firstInteraction = event.Timestamp
			break
		}
	}
	perf.InteractionTiming.TimeToFirstInteraction = firstInteraction - md.Timestamp

	if len(steps) > 0 {
		var total int64
		for i := range steps {
			if steps[i].Timing.Duration != nil {
				total += *steps[i].Timing.Duration
			}
		}
		perf.InteractionTiming.ActionLatency = float64(total) / float64(len(steps))
	}

	return perf
}
