package tasklist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/types"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".contextforge", "tasks.json")

	m := NewManager(Options{Path: path})
	a, _ := m.AddTask("A", "", "")
	b, _ := m.AddTask("B", "", a.ID)
	_, err := m.UpdateTask(b.ID, TaskUpdate{State: stateOf(types.TaskComplete)})
	require.NoError(t, err)
	require.NoError(t, m.Save(""))

	// The file carries the versioned envelope.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &envelope))
	for _, key := range []string{"version", "tasks", "root_task_ids", "saved_at"} {
		assert.Contains(t, envelope, key)
	}

	loaded := NewManager(Options{Path: path})
	require.NoError(t, loaded.Load(""))
	gotB, err := loaded.GetTask(b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskComplete, gotB.State)
	assert.Equal(t, a.ID, gotB.ParentID)
	assert.Equal(t, m.ToMarkdown(), loaded.ToMarkdown())
}

func TestAutoLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	m := NewManager(Options{Path: path})
	m.AddTask("persisted", "", "")
	require.NoError(t, m.Save(""))

	auto := NewManager(Options{Path: path, AutoLoad: true})
	tasks := auto.ListTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "persisted", tasks[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	m := NewManager(Options{})
	err := m.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSaveWithoutPath(t *testing.T) {
	m := NewManager(Options{})
	err := m.Save("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestLoadNewerVersionRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "tasks": {}, "root_task_ids": []}`), 0644))

	m := NewManager(Options{})
	err := m.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}
