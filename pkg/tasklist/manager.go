package tasklist

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

const (
	// DefaultUndoHistory bounds the undo stack.
	DefaultUndoHistory = 50
	// maxDepth bounds the task hierarchy.
	maxDepth = 10
)

// snapshot is a deep copy of manager state used by undo/redo.
type snapshot struct {
	tasks   map[string]*types.Task
	rootIDs []string
}

// Manager owns a hierarchical task list with dependencies, bounded
// undo/redo, markdown I/O, and JSON persistence. All operations are safe
// for concurrent use.
type Manager struct {
	mu           sync.Mutex
	tasks        map[string]*types.Task
	rootIDs      []string
	undoStack    []snapshot
	redoStack    []snapshot
	historyLimit int
	path         string
	logger       zerolog.Logger
}

// Options configures a Manager.
type Options struct {
	// Path is the default persistence location. Empty disables Save/Load
	// defaults.
	Path string
	// UndoHistory caps undo depth; non-positive uses DefaultUndoHistory.
	UndoHistory int
	// AutoLoad loads Path on construction when the file exists.
	AutoLoad bool
}

// NewManager creates an empty Manager.
func NewManager(opts Options) *Manager {
	if opts.UndoHistory <= 0 {
		opts.UndoHistory = DefaultUndoHistory
	}
	m := &Manager{
		tasks:        make(map[string]*types.Task),
		historyLimit: opts.UndoHistory,
		path:         opts.Path,
		logger:       log.WithComponent("tasklist"),
	}
	if opts.AutoLoad && opts.Path != "" {
		if err := m.Load(""); err != nil {
			m.logger.Debug().Err(err).Str("path", opts.Path).Msg("auto-load skipped")
		}
	}
	return m
}

// cloneTask deep-copies one task.
func cloneTask(t *types.Task) *types.Task {
	c := *t
	c.Children = append([]string(nil), t.Children...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// cloneState deep-copies the full task map and root list.
func (m *Manager) cloneState() snapshot {
	s := snapshot{
		tasks:   make(map[string]*types.Task, len(m.tasks)),
		rootIDs: append([]string(nil), m.rootIDs...),
	}
	for id, t := range m.tasks {
		s.tasks[id] = cloneTask(t)
	}
	return s
}

// pushUndo records the current state and clears redo. Callers hold m.mu.
func (m *Manager) pushUndo() {
	m.undoStack = append(m.undoStack, m.cloneState())
	if len(m.undoStack) > m.historyLimit {
		m.undoStack = m.undoStack[1:]
	}
	m.redoStack = nil
}

// AddTask creates a task under parentID (empty for root) and returns a
// copy of it.
func (m *Manager) AddTask(name, description, parentID string) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("%w: task name must not be empty", types.ErrValidation)
	}
	var parent *types.Task
	if parentID != "" {
		var ok bool
		parent, ok = m.tasks[parentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent task %s", types.ErrNotFound, parentID)
		}
		if m.depthLocked(parentID)+1 > maxDepth {
			return nil, fmt.Errorf("%w: hierarchy exceeds max depth %d", types.ErrValidation, maxDepth)
		}
	}

	m.pushUndo()
	now := time.Now()
	task := &types.Task{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		State:       types.TaskNotStarted,
		ParentID:    parentID,
		Children:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tasks[task.ID] = task
	if parent != nil {
		task.Order = len(parent.Children)
		parent.Children = append(parent.Children, task.ID)
	} else {
		task.Order = len(m.rootIDs)
		m.rootIDs = append(m.rootIDs, task.ID)
	}
	m.logger.Debug().Str("task_id", task.ID).Str("name", name).Msg("task added")
	return cloneTask(task), nil
}

// TaskUpdate selects the fields UpdateTask changes.
type TaskUpdate struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	State       *types.TaskState `json:"state,omitempty"`
}

// UpdateTask applies a partial update.
func (m *Manager) UpdateTask(id string, update TaskUpdate) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	if update.State != nil {
		switch *update.State {
		case types.TaskNotStarted, types.TaskInProgress, types.TaskComplete, types.TaskCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown state %q", types.ErrValidation, *update.State)
		}
	}

	m.pushUndo()
	if update.Name != nil {
		task.Name = *update.Name
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.State != nil {
		task.State = *update.State
	}
	task.UpdatedAt = time.Now()
	return cloneTask(task), nil
}

// RemoveTask deletes a task and its whole subtree.
func (m *Manager) RemoveTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}

	m.pushUndo()
	removed := map[string]bool{}
	m.removeSubtreeLocked(id, removed)

	if task.ParentID != "" {
		if parent, ok := m.tasks[task.ParentID]; ok {
			parent.Children = removeID(parent.Children, id)
		}
	} else {
		m.rootIDs = removeID(m.rootIDs, id)
	}

	// Drop dangling dependency references to the removed subtree.
	for _, t := range m.tasks {
		kept := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			if !removed[dep] {
				kept = append(kept, dep)
			}
		}
		t.Dependencies = kept
	}
	return nil
}

func (m *Manager) removeSubtreeLocked(id string, removed map[string]bool) {
	task, ok := m.tasks[id]
	if !ok {
		return
	}
	for _, child := range task.Children {
		m.removeSubtreeLocked(child, removed)
	}
	delete(m.tasks, id)
	removed[id] = true
}

// MoveTask reparents a task. Moving under a descendant or past the depth
// limit is rejected.
func (m *Manager) MoveTask(id, newParentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	if newParentID == id {
		return fmt.Errorf("%w: task cannot be its own parent", types.ErrValidation)
	}
	if newParentID != "" {
		if _, ok := m.tasks[newParentID]; !ok {
			return fmt.Errorf("%w: parent task %s", types.ErrNotFound, newParentID)
		}
		if m.isDescendantLocked(newParentID, id) {
			return fmt.Errorf("%w: cannot move a task under its own subtree", types.ErrValidation)
		}
		if m.depthLocked(newParentID)+m.subtreeHeightLocked(id) > maxDepth {
			return fmt.Errorf("%w: hierarchy exceeds max depth %d", types.ErrValidation, maxDepth)
		}
	}

	m.pushUndo()
	if task.ParentID != "" {
		if old, ok := m.tasks[task.ParentID]; ok {
			old.Children = removeID(old.Children, id)
		}
	} else {
		m.rootIDs = removeID(m.rootIDs, id)
	}
	task.ParentID = newParentID
	if newParentID != "" {
		parent := m.tasks[newParentID]
		task.Order = len(parent.Children)
		parent.Children = append(parent.Children, id)
	} else {
		task.Order = len(m.rootIDs)
		m.rootIDs = append(m.rootIDs, id)
	}
	task.UpdatedAt = time.Now()
	return nil
}

// AddDependency records that task id depends on depID.
func (m *Manager) AddDependency(id, depID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	if _, ok := m.tasks[depID]; !ok {
		return fmt.Errorf("%w: dependency task %s", types.ErrNotFound, depID)
	}
	if id == depID {
		return fmt.Errorf("%w: task cannot depend on itself", types.ErrValidation)
	}
	for _, dep := range task.Dependencies {
		if dep == depID {
			return nil
		}
	}
	if m.dependencyPathLocked(depID, id) {
		return fmt.Errorf("%w: dependency cycle between %s and %s", types.ErrValidation, id, depID)
	}

	m.pushUndo()
	task.Dependencies = append(task.Dependencies, depID)
	task.UpdatedAt = time.Now()
	return nil
}

// RemoveDependency drops a recorded dependency.
func (m *Manager) RemoveDependency(id, depID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	m.pushUndo()
	task.Dependencies = removeID(task.Dependencies, depID)
	task.UpdatedAt = time.Now()
	return nil
}

// GetTask returns a copy of one task.
func (m *Manager) GetTask(id string) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, id)
	}
	return cloneTask(task), nil
}

// ListTasks returns copies of all tasks ordered by hierarchy pre-order.
func (m *Manager) ListTasks() []*types.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Task
	m.walkLocked(func(t *types.Task, _ int) {
		out = append(out, cloneTask(t))
	})
	return out
}

// GetBlockedTasks returns tasks with at least one incomplete dependency.
func (m *Manager) GetBlockedTasks() []*types.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Task
	for _, t := range m.sortedTasksLocked() {
		for _, dep := range t.Dependencies {
			if d, ok := m.tasks[dep]; ok && d.State != types.TaskComplete {
				out = append(out, cloneTask(t))
				break
			}
		}
	}
	return out
}

// GetReadyTasks returns NOT_STARTED tasks whose dependencies are all
// COMPLETE.
func (m *Manager) GetReadyTasks() []*types.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Task
	for _, t := range m.sortedTasksLocked() {
		if t.State != types.TaskNotStarted {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if d, ok := m.tasks[dep]; ok && d.State != types.TaskComplete {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// Clear removes every task.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushUndo()
	m.tasks = make(map[string]*types.Task)
	m.rootIDs = nil
}

// Undo restores the previous snapshot. Returns false if nothing to undo.
func (m *Manager) Undo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undoStack) == 0 {
		return false
	}
	m.redoStack = append(m.redoStack, m.cloneState())
	last := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]
	m.tasks = last.tasks
	m.rootIDs = last.rootIDs
	return true
}

// Redo re-applies the last undone change. Returns false if nothing to redo.
func (m *Manager) Redo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redoStack) == 0 {
		return false
	}
	m.undoStack = append(m.undoStack, m.cloneState())
	last := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]
	m.tasks = last.tasks
	m.rootIDs = last.rootIDs
	return true
}

// walkLocked visits tasks pre-order, roots and siblings in list order.
func (m *Manager) walkLocked(visit func(t *types.Task, depth int)) {
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		t, ok := m.tasks[id]
		if !ok {
			return
		}
		visit(t, depth)
		for _, child := range t.Children {
			walk(child, depth+1)
		}
	}
	for _, id := range m.rootIDs {
		walk(id, 0)
	}
}

// sortedTasksLocked returns tasks in a stable creation order.
func (m *Manager) sortedTasksLocked() []*types.Task {
	out := make([]*types.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// depthLocked returns the 1-based depth of a task.
func (m *Manager) depthLocked(id string) int {
	depth := 0
	for id != "" {
		t, ok := m.tasks[id]
		if !ok {
			break
		}
		depth++
		id = t.ParentID
	}
	return depth
}

// subtreeHeightLocked returns the height of the subtree rooted at id,
// counting id itself as 1.
func (m *Manager) subtreeHeightLocked(id string) int {
	t, ok := m.tasks[id]
	if !ok {
		return 0
	}
	max := 0
	for _, child := range t.Children {
		if h := m.subtreeHeightLocked(child); h > max {
			max = h
		}
	}
	return max + 1
}

// isDescendantLocked reports whether candidate lies in the subtree of
// ancestor.
func (m *Manager) isDescendantLocked(candidate, ancestor string) bool {
	for candidate != "" {
		if candidate == ancestor {
			return true
		}
		t, ok := m.tasks[candidate]
		if !ok {
			return false
		}
		candidate = t.ParentID
	}
	return false
}

// dependencyPathLocked reports whether from transitively depends on to.
func (m *Manager) dependencyPathLocked(from, to string) bool {
	seen := map[string]bool{}
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == to {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		t, ok := m.tasks[id]
		if !ok {
			return false
		}
		for _, dep := range t.Dependencies {
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
