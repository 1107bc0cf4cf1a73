// Package tasklog tracks agent task execution: step lifecycle, browser
// state, retries, and per-step-type performance, with a JSON line written
// per completed task for later inspection.
package tasklog

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskStatus is the lifecycle status of a task or step.
type TaskStatus string

const (
	StatusPending  TaskStatus = "pending"
	StatusRunning  TaskStatus = "running"
	StatusComplete TaskStatus = "complete"
	StatusFailed   TaskStatus = "failed"
)

// ActionType classifies what a step does.
type ActionType string

const (
	ActionNavigation  ActionType = "navigation"
	ActionInteraction ActionType = "interaction"
	ActionExtraction  ActionType = "extraction"
	ActionValidation  ActionType = "validation"
	ActionRecovery    ActionType = "recovery"
)

// StepInfo describes one step of a task.
type StepInfo struct {
	Number      int            `json:"number"`
	Description string         `json:"description"`
	StartedAt   time.Time      `json:"started_at"`
	Status      TaskStatus     `json:"status"`
	Duration    float64        `json:"duration,omitempty"`
	ActionType  ActionType     `json:"action_type,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Results     map[string]any `json:"results,omitempty"`
}

// BrowserState is the browser snapshot attached to the task record.
type BrowserState struct {
	URL             string `json:"url"`
	PageReady       bool   `json:"page_ready"`
	VisibleElements int    `json:"visible_elements"`
	PageTitle       string `json:"page_title,omitempty"`
}

// ErrorInfo records the failure that ended a task.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Step    int    `json:"step"`
	Action  string `json:"action"`
}

// PerformanceMetrics accumulates step durations by action type.
type PerformanceMetrics struct {
	TotalDuration float64            `json:"total_duration"`
	StepBreakdown map[string]float64 `json:"step_breakdown"`
}

// AddStepDuration records seconds spent on a step type.
func (m *PerformanceMetrics) AddStepDuration(stepType string, seconds float64) {
	if m.StepBreakdown == nil {
		m.StepBreakdown = make(map[string]float64)
	}
	m.StepBreakdown[stepType] += seconds
	m.TotalDuration += seconds
}

// Record is the finished-task document appended to the sink.
type Record struct {
	TaskID      string             `json:"task_id"`
	Goal        string             `json:"goal"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Status      TaskStatus         `json:"status"`
	Steps       []StepInfo         `json:"steps"`
	Browser     BrowserState       `json:"browser"`
	Error       *ErrorInfo         `json:"error,omitempty"`
	Performance PerformanceMetrics `json:"performance"`
}

// Logger tracks one task through its steps.
type Logger struct {
	logger *zap.Logger
	sink   string

	mu          sync.Mutex
	record      Record
	currentStep *StepInfo
	stepStart   time.Time
}

// NewLogger starts tracking a task. sink is a JSONL file path appended to on
// Finish; empty disables persistence.
func NewLogger(goal, sink string, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	l := &Logger{
		logger: logger.With(zap.String("component", "task_logger"), zap.String("task_id", id)),
		sink:   sink,
		record: Record{
			TaskID:    id,
			Goal:      goal,
			StartedAt: time.Now().UTC(),
			Status:    StatusPending,
			Steps:     []StepInfo{},
		},
	}
	l.logger.Info("task started", zap.String("goal", goal))
	return l
}

// TaskID returns the task identifier.
func (l *Logger) TaskID() string {
	return l.record.TaskID
}

// StartStep begins a new step; any open step is finished as complete first.
func (l *Logger) StartStep(description string, actionType ActionType) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.finishOpenStep(StatusComplete)
	l.record.Status = StatusRunning
	l.currentStep = &StepInfo{
		Number:      len(l.record.Steps) + 1,
		Description: description,
		StartedAt:   time.Now().UTC(),
		Status:      StatusRunning,
		ActionType:  actionType,
	}
	l.stepStart = l.currentStep.StartedAt
	l.logger.Info("step started",
		zap.Int("step", l.currentStep.Number),
		zap.String("action_type", string(actionType)),
		zap.String("description", description))
}

// FinishStep closes the open step with the given status and results.
func (l *Logger) FinishStep(status TaskStatus, results map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentStep != nil {
		l.currentStep.Results = results
	}
	l.finishOpenStep(status)
}

func (l *Logger) finishOpenStep(status TaskStatus) {
	if l.currentStep == nil {
		return
	}
	step := l.currentStep
	step.Status = status
	step.Duration = time.Since(l.stepStart).Seconds()
	l.record.Performance.AddStepDuration(string(step.ActionType), step.Duration)
	l.record.Steps = append(l.record.Steps, *step)
	l.currentStep = nil
	l.logger.Info("step finished",
		zap.Int("step", step.Number),
		zap.String("status", string(status)),
		zap.Float64("duration_s", step.Duration))
}

// UpdateBrowserState records the latest browser snapshot.
func (l *Logger) UpdateBrowserState(state BrowserState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record.Browser = state
}

// Fail marks the task failed with error detail and persists the record.
func (l *Logger) Fail(errType, message, action string) error {
	l.mu.Lock()
	step := 0
	if l.currentStep != nil {
		step = l.currentStep.Number
	}
	l.finishOpenStep(StatusFailed)
	l.record.Error = &ErrorInfo{Type: errType, Message: message, Step: step, Action: action}
	l.mu.Unlock()
	return l.Finish(StatusFailed)
}

// Finish closes the task and appends its record to the sink.
func (l *Logger) Finish(status TaskStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.finishOpenStep(StatusComplete)
	l.record.Status = status
	l.record.FinishedAt = time.Now().UTC()
	l.logger.Info("task finished",
		zap.String("status", string(status)),
		zap.Int("steps", len(l.record.Steps)),
		zap.Float64("total_duration_s", l.record.Performance.TotalDuration))

	if l.sink == "" {
		return nil
	}
	data, err := json.Marshal(l.record)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.sink, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// Snapshot returns a copy of the record as tracked so far.
func (l *Logger) Snapshot() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.record
	rec.Steps = append([]StepInfo(nil), l.record.Steps...)
	return rec
}
