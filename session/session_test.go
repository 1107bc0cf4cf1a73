package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantus-ai/webpilot/types"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	state := NewState()
	state.Headless = true
	state.WindowWidth = 1280
	state.WindowHeight = 720
	require.NoError(t, store.Save(state))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, state.ID, loaded.ID)
	assert.Equal(t, StatusRunning, loaded.Status)
	assert.True(t, loaded.Headless)
	assert.True(t, store.Active())
}

func TestFileStore_LoadWithoutSession(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	_, err := store.Load()
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
	assert.False(t, store.Active())
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, store.Save(NewState()))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	assert.False(t, store.Active())
}

func TestFileStore_ClosedSessionIsNotActive(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	state := NewState()
	state.Status = StatusClosed
	require.NoError(t, store.Save(state))
	assert.False(t, store.Active())
}

func TestNewState_Identity(t *testing.T) {
	t.Parallel()

	a, b := NewState(), NewState()
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotZero(t, a.PID)
}
