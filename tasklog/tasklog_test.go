package tasklog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_StepLifecycle(t *testing.T) {
	t.Parallel()

	l := NewLogger("book a flight", "", nil)
	require.NotEmpty(t, l.TaskID())

	l.StartStep("open airline site", ActionNavigation)
	l.FinishStep(StatusComplete, map[string]any{"url": "https://example.com"})
	l.StartStep("fill search form", ActionInteraction)
	// Starting a new step closes the open one implicitly.
	l.StartStep("validate results", ActionValidation)
	l.FinishStep(StatusComplete, nil)

	rec := l.Snapshot()
	require.Len(t, rec.Steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rec.Steps[0].Number, rec.Steps[1].Number, rec.Steps[2].Number})
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, rec.Steps[0].Results)
	assert.Contains(t, rec.Performance.StepBreakdown, string(ActionNavigation))
}

func TestLogger_FinishPersistsRecord(t *testing.T) {
	t.Parallel()

	sink := filepath.Join(t.TempDir(), "tasks.jsonl")
	for _, goal := range []string{"first", "second"} {
		l := NewLogger(goal, sink, nil)
		l.StartStep("step", ActionNavigation)
		require.NoError(t, l.Finish(StatusComplete))
	}

	f, err := os.Open(sink)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Goal)
	assert.Equal(t, StatusComplete, records[1].Status)
	assert.Len(t, records[0].Steps, 1)
	assert.False(t, records[0].FinishedAt.IsZero())
}

func TestLogger_Fail(t *testing.T) {
	t.Parallel()

	sink := filepath.Join(t.TempDir(), "tasks.jsonl")
	l := NewLogger("doomed", sink, nil)
	l.StartStep("click missing element", ActionInteraction)
	require.NoError(t, l.Fail("ElementNotFound", "no such element", "click"))

	rec := l.Snapshot()
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "ElementNotFound", rec.Error.Type)
	assert.Equal(t, 1, rec.Error.Step)
	require.Len(t, rec.Steps, 1)
	assert.Equal(t, StatusFailed, rec.Steps[0].Status)
}

func TestPerformanceMetrics_Accumulates(t *testing.T) {
	t.Parallel()

	var m PerformanceMetrics
	m.AddStepDuration("navigation", 1.5)
	m.AddStepDuration("navigation", 0.5)
	m.AddStepDuration("interaction", 2)
	assert.Equal(t, 4.0, m.TotalDuration)
	assert.Equal(t, 2.0, m.StepBreakdown["navigation"])
}
