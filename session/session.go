// Package session persists browser-session state across process invocations.
//
// The CLI starts a browser in one invocation and drives it from later ones,
// so which process "owns" the browser must be recorded somewhere explicit.
// That record is a State value held by a Store; nothing in the program keeps
// implicit global browser state.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantus-ai/webpilot/types"
)

// Status is the lifecycle status of a recorded session.
type Status string

const (
	StatusRunning Status = "running"
	StatusClosed  Status = "closed"
)

// State is one browser session record.
type State struct {
	ID           string    `json:"id"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	Status       Status    `json:"status"`
	Headless     bool      `json:"headless"`
	WindowWidth  int       `json:"window_width"`
	WindowHeight int       `json:"window_height"`
	DebugPort    int       `json:"debug_port,omitempty"`
	UserDataDir  string    `json:"user_data_dir,omitempty"`
	Proxy        string    `json:"proxy,omitempty"`
	TracePath    string    `json:"trace_path,omitempty"`
}

// NewState creates a running session record owned by this process.
func NewState() State {
	return State{
		ID:        uuid.NewString(),
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
}

// Store persists session state.
type Store interface {
	// Save writes the record, replacing any existing one.
	Save(state State) error
	// Load returns the current record, or SESSION_NOT_FOUND.
	Load() (State, error)
	// Clear removes the record. Clearing an absent record is not an error.
	Clear() error
	// Active reports whether a running session record exists.
	Active() bool
}

// FileStore keeps the session record as one JSON file under a state dir.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating dir if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "create state dir %s", dir).WithCause(err)
	}
	return &FileStore{
		path:   filepath.Join(dir, "session.json"),
		logger: logger.With(zap.String("component", "session_store")),
	}, nil
}

// Save implements Store. The record is written to a temp file and renamed so
// a concurrent reader never sees a torn write.
func (s *FileStore) Save(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.logger.Debug("session state saved",
		zap.String("session_id", state.ID),
		zap.String("status", string(state.Status)))
	return nil
}

// Load implements Store.
func (s *FileStore) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}, types.NewError(types.ErrSessionNotFound, "no browser session found")
	}
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, types.NewError(types.ErrSessionNotFound, "session state unreadable").WithCause(err)
	}
	return state, nil
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Active implements Store.
func (s *FileStore) Active() bool {
	state, err := s.Load()
	return err == nil && state.Status == StatusRunning
}
