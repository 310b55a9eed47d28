package tasklist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/contextforge/contextforge/pkg/types"
)

// fileVersion is the persistence format version.
const fileVersion = 1

// taskFile is the on-disk JSON shape.
type taskFile struct {
	Version     int                    `json:"version"`
	Tasks       map[string]*types.Task `json:"tasks"`
	RootTaskIDs []string               `json:"root_task_ids"`
	SavedAt     time.Time              `json:"saved_at"`
}

// Save writes the task list as JSON. An empty path uses the configured
// default.
func (m *Manager) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "" {
		path = m.path
	}
	if path == "" {
		return fmt.Errorf("%w: no persistence path configured", types.ErrValidation)
	}

	state := m.cloneState()
	payload := taskFile{
		Version:     fileVersion,
		Tasks:       state.tasks,
		RootTaskIDs: state.rootIDs,
		SavedAt:     time.Now(),
	}
	if payload.RootTaskIDs == nil {
		payload.RootTaskIDs = []string{}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task list: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create task list directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write task list: %w", err)
	}
	m.logger.Debug().Str("path", path).Int("tasks", len(state.tasks)).Msg("task list saved")
	return nil
}

// Load replaces the current state from a JSON file. An empty path uses
// the configured default. Undo and redo history is discarded.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "" {
		path = m.path
	}
	if path == "" {
		return fmt.Errorf("%w: no persistence path configured", types.ErrValidation)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}
	var payload taskFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode task list: %w", err)
	}
	if payload.Version > fileVersion {
		return fmt.Errorf("%w: task file version %d is newer than supported %d", types.ErrValidation, payload.Version, fileVersion)
	}

	if payload.Tasks == nil {
		payload.Tasks = map[string]*types.Task{}
	}
	m.tasks = payload.Tasks
	m.rootIDs = payload.RootTaskIDs
	m.undoStack = nil
	m.redoStack = nil
	m.logger.Debug().Str("path", path).Int("tasks", len(m.tasks)).Msg("task list loaded")
	return nil
}
