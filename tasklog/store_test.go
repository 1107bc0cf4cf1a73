package tasklog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func sampleRecord(id, goal string, status TaskStatus, started time.Time) Record {
	return Record{
		TaskID:    id,
		Goal:      goal,
		Status:    status,
		StartedAt: started,
		Steps: []StepInfo{
			{Number: 1, Description: "open site", Status: StatusComplete, ActionType: ActionNavigation},
		},
	}
}

func TestHistory_AppendAndGet(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	rec := sampleRecord("task-1", "buy socks", StatusComplete, time.Now().UTC())
	require.NoError(t, h.Append(rec))

	got, err := h.Get("task-1")
	require.NoError(t, err)
	assert.Equal(t, "buy socks", got.Goal)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, ActionNavigation, got.Steps[0].ActionType)

	_, err = h.Get("task-2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestHistory_RecentOrderAndLimit(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, goal := range []string{"oldest", "middle", "newest"} {
		rec := sampleRecord(goal, goal, StatusComplete, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, h.Append(rec))
	}

	records, err := h.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "newest", records[0].Goal)
	assert.Equal(t, "middle", records[1].Goal)
}

func TestHistory_AppendIsUpsert(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)

	rec := sampleRecord("task-1", "first pass", StatusRunning, time.Now().UTC())
	require.NoError(t, h.Append(rec))
	rec.Status = StatusComplete
	require.NoError(t, h.Append(rec))

	records, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusComplete, records[0].Status)
}
