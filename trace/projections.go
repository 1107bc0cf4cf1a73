package trace

import "context"

// The projections below are pure, side-effect-free views over the cached
// TraceDocument. None of them fail for missing optional payload fields;
// they only propagate a failed load.

// ActionContextAnalysis lists per-step element and viewport state.
type ActionContextAnalysis struct {
	Steps []ActionContextStep `json:"steps"`
}

// ActionContextStep is one entry of ActionContextAnalysis.
type ActionContextStep struct {
	StepID        int            `json:"step_id"`
	Action        string         `json:"action"`
	Target        string         `json:"target"`
	ElementState  map[string]any `json:"element_state"`
	ViewportState Viewport       `json:"viewport_state"`
}

// AnalyzeActionContext reports the context each action ran in.
func (a *Analyzer) AnalyzeActionContext(ctx context.Context) (*ActionContextAnalysis, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &ActionContextAnalysis{Steps: make([]ActionContextStep, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		out.Steps = append(out.Steps, ActionContextStep{
			StepID:        step.StepID,
			Action:        step.Action,
			Target:        step.Target,
			ElementState:  step.ActionContext.ElementState,
			ViewportState: step.ActionContext.ViewportState,
		})
	}
	return out, nil
}

// DecisionTrail surfaces the agent's per-step decision metadata.
type DecisionTrail struct {
	Steps []DecisionStep `json:"steps"`
}

// DecisionStep is one entry of DecisionTrail. Confidence defaults to 1.0
// when the recorder did not attach one.
type DecisionStep struct {
	StepID       int     `json:"step_id"`
	Action       string  `json:"action"`
	Confidence   float64 `json:"confidence"`
	Alternatives []any   `json:"alternatives"`
	Reasoning    []any   `json:"reasoning"`
}

// AnalyzeDecisionTrail reports the decision process behind each step.
func (a *Analyzer) AnalyzeDecisionTrail(ctx context.Context) (*DecisionTrail, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &DecisionTrail{Steps: make([]DecisionStep, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		state := step.ActionContext.ElementState
		out.Steps = append(out.Steps, DecisionStep{
			StepID:       step.StepID,
			Action:       step.Action,
			Confidence:   mapFloat(state, "confidence", 1.0),
			Alternatives: mapList(state, "alternatives"),
			Reasoning:    mapList(state, "reasoning"),
		})
	}
	return out, nil
}

// ElementIdentification describes how each target element was located.
type ElementIdentification struct {
	Steps []ElementIdentificationStep `json:"steps"`
}

// ElementIdentificationStep is one entry of ElementIdentification.
type ElementIdentificationStep struct {
	StepID        int            `json:"step_id"`
	Target        string         `json:"target"`
	Selector      string         `json:"selector"`
	Position      map[string]any `json:"position"`
	Relationships map[string]any `json:"relationships"`
}

// AnalyzeElementIdentification reports element-location metadata per step.
func (a *Analyzer) AnalyzeElementIdentification(ctx context.Context) (*ElementIdentification, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &ElementIdentification{Steps: make([]ElementIdentificationStep, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		state := step.ActionContext.ElementState
		out.Steps = append(out.Steps, ElementIdentificationStep{
			StepID:        step.StepID,
			Target:        step.Target,
			Selector:      mapString(state, "selector", ""),
			Position:      mapMap(state, "position"),
			Relationships: mapMap(state, "relationships"),
		})
	}
	return out, nil
}

// FailureAnalysis lists failed steps with their recovery attempts.
type FailureAnalysis struct {
	FailedSteps      []FailedStep `json:"failed_steps"`
	TotalSteps       int          `json:"total_steps"`
	FailedStepsCount int          `json:"failed_steps_count"`
}

// FailedStep is one entry of FailureAnalysis.
type FailedStep struct {
	StepID           int           `json:"step_id"`
	Action           string        `json:"action"`
	Error            *ErrorContext `json:"error"`
	RecoveryAttempts []any         `json:"recovery_attempts"`
}

// AnalyzeFailures reports failure scenarios and recovery attempts.
func (a *Analyzer) AnalyzeFailures(ctx context.Context) (*FailureAnalysis, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &FailureAnalysis{FailedSteps: []FailedStep{}, TotalSteps: len(doc.Steps)}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		if step.Status != StepError {
			continue
		}
		out.FailedSteps = append(out.FailedSteps, FailedStep{
			StepID:           step.StepID,
			Action:           step.Action,
			Error:            step.ErrorContext,
			RecoveryAttempts: mapList(step.ActionContext.ElementState, "recovery_attempts"),
		})
	}
	out.FailedStepsCount = len(out.FailedSteps)
	return out, nil
}

// SessionContext is the session-wide passthrough view.
type SessionContext struct {
	Metadata    Metadata    `json:"metadata"`
	Network     NetworkInfo `json:"network"`
	Performance Performance `json:"performance"`
}

// AnalyzeSessionContext reports session-wide metadata, network activity, and
// performance aggregates.
func (a *Analyzer) AnalyzeSessionContext(ctx context.Context) (*SessionContext, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &SessionContext{
		Metadata:    doc.Metadata,
		Network:     doc.Network,
		Performance: doc.Performance,
	}, nil
}

// RecoveryInfo lists failed steps that carried recovery attempts.
type RecoveryInfo struct {
	RecoverySteps []RecoveryStep `json:"recovery_steps"`
}

// RecoveryStep is one entry of RecoveryInfo. FinalStatus is "recovered" when
// any attempt recorded success, otherwise "failed".
type RecoveryStep struct {
	StepID           int    `json:"step_id"`
	Action           string `json:"action"`
	RecoveryAttempts []any  `json:"recovery_attempts"`
	FinalStatus      string `json:"final_status"`
}

// AnalyzeRecoveryInfo reports recovery activity on failed steps.
func (a *Analyzer) AnalyzeRecoveryInfo(ctx context.Context) (*RecoveryInfo, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &RecoveryInfo{RecoverySteps: []RecoveryStep{}}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		attempts := mapList(step.ActionContext.ElementState, "recovery_attempts")
		if step.Status != StepError || len(attempts) == 0 {
			continue
		}
		finalStatus := "failed"
		for _, attempt := range attempts {
			if m, ok := attempt.(map[string]any); ok {
				if succeeded, ok := m["success"].(bool); ok && succeeded {
					finalStatus = "recovered"
					break
				}
			}
		}
		out.RecoverySteps = append(out.RecoverySteps, RecoveryStep{
			StepID:           step.StepID,
			Action:           step.Action,
			RecoveryAttempts: attempts,
			FinalStatus:      finalStatus,
		})
	}
	return out, nil
}

// ModelData surfaces per-step model usage and vision analysis.
type ModelData struct {
	Steps []ModelDataStep `json:"steps"`
}

// ModelDataStep is one entry of ModelData.
type ModelDataStep struct {
	StepID         int            `json:"step_id"`
	Action         string         `json:"action"`
	ModelInfo      map[string]any `json:"model_info"`
	VisionAnalysis map[string]any `json:"vision_analysis"`
}

// AnalyzeModelData reports model token usage and vision output per step.
func (a *Analyzer) AnalyzeModelData(ctx context.Context) (*ModelData, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &ModelData{Steps: make([]ModelDataStep, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		state := step.ActionContext.ElementState
		out.Steps = append(out.Steps, ModelDataStep{
			StepID:         step.StepID,
			Action:         step.Action,
			ModelInfo:      mapMap(state, "model_info"),
			VisionAnalysis: mapMap(state, "vision_analysis"),
		})
	}
	return out, nil
}

// TemporalContext lists per-step timing with wait conditions, plus the total
// duration over steps with a known duration.
type TemporalContext struct {
	Steps         []TemporalStep `json:"steps"`
	TotalDuration int64          `json:"total_duration"`
}

// TemporalStep is one entry of TemporalContext.
type TemporalStep struct {
	Timing         Timing `json:"timing"`
	WaitConditions []any  `json:"wait_conditions"`
}

// AnalyzeTemporalContext reports timing and wait conditions.
func (a *Analyzer) AnalyzeTemporalContext(ctx context.Context) (*TemporalContext, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &TemporalContext{Steps: make([]TemporalStep, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		out.Steps = append(out.Steps, TemporalStep{
			Timing:         step.Timing,
			WaitConditions: mapList(step.ActionContext.ElementState, "wait_conditions"),
		})
		if step.Timing.Duration != nil {
			out.TotalDuration += *step.Timing.Duration
		}
	}
	return out, nil
}

// ElementReporting bundles selector, state, and status per step.
type ElementReporting struct {
	Steps []ElementReportStep `json:"steps"`
}

// ElementReportStep is one entry of ElementReporting.
type ElementReportStep struct {
	StepID       int            `json:"step_id"`
	Action       string         `json:"action"`
	Target       string         `json:"target"`
	ElementState map[string]any `json:"element_state"`
	Status       StepStatus     `json:"status"`
}

// AnalyzeElementReporting reports element selection context per step.
func (a *Analyzer) AnalyzeElementReporting(ctx context.Context) (*ElementReporting, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &ElementReporting{Steps: make([]ElementReportStep, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		out.Steps = append(out.Steps, ElementReportStep{
			StepID:       step.StepID,
			Action:       step.Action,
			Target:       step.Target,
			ElementState: step.ActionContext.ElementState,
			Status:       step.Status,
		})
	}
	return out, nil
}

// ErrorContextAnalysis pairs each failed step with a session snapshot.
type ErrorContextAnalysis struct {
	ErrorSteps []ErrorContextStep `json:"error_steps"`
}

// ErrorContextStep is one entry of ErrorContextAnalysis.
type ErrorContextStep struct {
	StepID       int           `json:"step_id"`
	Action       string        `json:"action"`
	ErrorContext *ErrorContext `json:"error_context"`
	SessionState SessionState  `json:"session_state"`
}

// SessionState is the session snapshot attached to an error step.
// NetworkStatus is true when any recorded response had an error status.
type SessionState struct {
	URL           string   `json:"url"`
	Viewport      Viewport `json:"viewport"`
	NetworkStatus bool     `json:"network_status"`
}

// AnalyzeErrorContext reports error context with session state per failure.
func (a *Analyzer) AnalyzeErrorContext(ctx context.Context) (*ErrorContextAnalysis, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	networkDegraded := false
	for i := range doc.Network.Requests {
		if doc.Network.Requests[i].Status >= 400 {
			networkDegraded = true
			break
		}
	}
	snapshot := SessionState{
		URL:           doc.Metadata.BrowserInfo.URL,
		Viewport:      doc.Metadata.BrowserInfo.Viewport,
		NetworkStatus: networkDegraded,
	}

	out := &ErrorContextAnalysis{ErrorSteps: []ErrorContextStep{}}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		if step.Status != StepError {
			continue
		}
		out.ErrorSteps = append(out.ErrorSteps, ErrorContextStep{
			StepID:       step.StepID,
			Action:       step.Action,
			ErrorContext: step.ErrorContext,
			SessionState: snapshot,
		})
	}
	return out, nil
}

// TimingAnalysis lists steps with a known duration plus a guarded summary.
type TimingAnalysis struct {
	Steps       []TimingStep  `json:"steps"`
	Performance Performance   `json:"performance"`
	Summary     TimingSummary `json:"summary"`
}

// TimingStep is one entry of TimingAnalysis.
type TimingStep struct {
	StepID int    `json:"step_id"`
	Action string `json:"action"`
	Timing Timing `json:"timing"`
}

// TimingSummary aggregates step durations. AverageStepDuration is 0 when no
// step has a known duration.
type TimingSummary struct {
	TotalDuration       int64   `json:"total_duration"`
	AverageStepDuration float64 `json:"average_step_duration"`
}

// AnalyzeTiming reports the detailed timing breakdown.
func (a *Analyzer) AnalyzeTiming(ctx context.Context) (*TimingAnalysis, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &TimingAnalysis{Steps: []TimingStep{}, Performance: doc.Performance}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		if step.Timing.Duration == nil {
			continue
		}
		out.Steps = append(out.Steps, TimingStep{
			StepID: step.StepID,
			Action: step.Action,
			Timing: step.Timing,
		})
		out.Summary.TotalDuration += *step.Timing.Duration
	}
	if len(out.Steps) > 0 {
		out.Summary.AverageStepDuration = float64(out.Summary.TotalDuration) / float64(len(out.Steps))
	}
	return out, nil
}

// VisualStateAnalysis reports visual deltas per step plus the summed
// cumulative layout shift across all shift entries.
type VisualStateAnalysis struct {
	VisualChanges         []VisualChange `json:"visual_changes"`
	CumulativeLayoutShift float64        `json:"cumulative_layout_shift"`
}

// VisualChange is one entry of VisualStateAnalysis.
type VisualChange struct {
	StepID       int              `json:"step_id"`
	BeforeAction VisualSnapshot   `json:"before_action"`
	AfterAction  VisualDelta      `json:"after_action"`
	LayoutShifts []map[string]any `json:"layout_shifts"`
}

// VisualSnapshot is the visible state on one side of an action.
type VisualSnapshot struct {
	Screenshot      any   `json:"screenshot"`
	VisibleElements []any `json:"visible_elements"`
}

// VisualDelta is the post-action state including element churn.
type VisualDelta struct {
	Screenshot      any   `json:"screenshot"`
	VisibleElements []any `json:"visible_elements"`
	AddedElements   []any `json:"added_elements"`
	RemovedElements []any `json:"removed_elements"`
}

// AnalyzeVisualState reports visual-state changes across the session.
func (a *Analyzer) AnalyzeVisualState(ctx context.Context) (*VisualStateAnalysis, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &VisualStateAnalysis{VisualChanges: make([]VisualChange, 0, len(doc.Steps))}
	for i := range doc.Steps {
		step := &doc.Steps[i]
		vs := step.VisualState
		shifts := vs.LayoutShifts
		if shifts == nil {
			shifts = []map[string]any{}
		}
		out.VisualChanges = append(out.VisualChanges, VisualChange{
			StepID: step.StepID,
			BeforeAction: VisualSnapshot{
				Screenshot:      vs.ScreenshotDiffs["before"],
				VisibleElements: mapList(vs.ElementVisibility, "before"),
			},
			AfterAction: VisualDelta{
				Screenshot:      vs.ScreenshotDiffs["after"],
				VisibleElements: mapList(vs.ElementVisibility, "after"),
				AddedElements:   mapList(vs.ElementVisibility, "added"),
				RemovedElements: mapList(vs.ElementVisibility, "removed"),
			},
			LayoutShifts: shifts,
		})
		for _, shift := range shifts {
			out.CumulativeLayoutShift += mapFloat(shift, "cumulative_layout_shift", 0)
		}
	}
	return out, nil
}

// ErrorRecovery reports recovery context per failed step plus the aggregate
// success rate. The rate is 1.0 when there are no failed steps; a session
// with nothing to recover from scores perfect by policy.
type ErrorRecovery struct {
	ErrorSteps          []ErrorRecoveryStep `json:"error_steps"`
	RecoverySuccessRate float64             `json:"recovery_success_rate"`
}

// ErrorRecoveryStep is one entry of ErrorRecovery.
type ErrorRecoveryStep struct {
	StepID             int            `json:"step_id"`
	ErrorType          string         `json:"error_type"`
	TargetElement      TargetElement  `json:"target_element"`
	RecoveryAttempts   []any          `json:"recovery_attempts"`
	EnvironmentFactors map[string]any `json:"environment_factors"`
}

// TargetElement describes the element a failed action aimed at.
type TargetElement struct {
	Selector               any   `json:"selector"`
	VisibleSimilarElements []any `json:"visible_similar_elements"`
}

// AnalyzeErrorRecovery reports error recovery capability across the session.
func (a *Analyzer) AnalyzeErrorRecovery(ctx context.Context) (*ErrorRecovery, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &ErrorRecovery{ErrorSteps: []ErrorRecoveryStep{}}
	recovered := 0
	for i := range doc.Steps {
		step := &doc.Steps[i]
		if step.Status != StepError {
			continue
		}
		errorType := "unknown"
		var extra map[string]any
		if step.ErrorContext != nil {
			if step.ErrorContext.ErrorType != "" {
				errorType = step.ErrorContext.ErrorType
			}
			extra = step.ErrorContext.Extra
		}
		target := mapMap(extra, "target_element")
		attempts := mapList(extra, "recovery_attempts")
		out.ErrorSteps = append(out.ErrorSteps, ErrorRecoveryStep{
			StepID:    step.StepID,
			ErrorType: errorType,
			TargetElement: TargetElement{
				Selector:               target["selector"],
				VisibleSimilarElements: mapList(target, "visible_similar_elements"),
			},
			RecoveryAttempts:   attempts,
			EnvironmentFactors: mapMap(extra, "environment_factors"),
		})
		for _, attempt := range attempts {
			if m, ok := attempt.(map[string]any); ok && m["outcome"] == "success" {
				recovered++
				break
			}
		}
	}
	if len(out.ErrorSteps) == 0 {
		out.RecoverySuccessRate = 1.0
	} else {
		out.RecoverySuccessRate = float64(recovered) / float64(len(out.ErrorSteps))
	}
	return out, nil
}

// PerformanceAnalysis is the performance passthrough plus a metrics summary.
type PerformanceAnalysis struct {
	NavigationTiming  NavigationTiming  `json:"navigation_timing"`
	InteractionTiming InteractionTiming `json:"interaction_timing"`
	MetricsSummary    MetricsSummary    `json:"metrics_summary"`
}

// MetricsSummary aggregates interaction metrics. TotalInteractionTime sums
// every step duration, treating an unknown duration as 0.
type MetricsSummary struct {
	AvgActionLatency     float64 `json:"avg_action_latency"`
	TotalInteractionTime int64   `json:"total_interaction_time"`
}

// AnalyzePerformance reports navigation and interaction performance.
func (a *Analyzer) AnalyzePerformance(ctx context.Context) (*PerformanceAnalysis, error) {
	doc, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := &PerformanceAnalysis{
		NavigationTiming:  doc.Performance.NavigationTiming,
		InteractionTiming: doc.Performance.InteractionTiming,
		MetricsSummary: MetricsSummary{
			AvgActionLatency: doc.Performance.InteractionTiming.ActionLatency,
		},
	}
	for i := range doc.Steps {
		if doc.Steps[i].Timing.Duration != nil {
			out.MetricsSummary.TotalInteractionTime += *doc.Steps[i].Timing.Duration
		}
	}
	return out, nil
}
