package coordinator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/types"
)

func submit(t *testing.T, q *Queue, taskType string, priority types.TaskPriority) *types.TaskInfo {
	t.Helper()
	task, err := q.Submit(TaskRequest{TaskType: taskType, Priority: priority})
	require.NoError(t, err)
	return task
}

func TestSubmitAndGet(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)

	task := submit(t, q, "index", types.PriorityNormal)
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, types.RemoteQueued, task.Status)
	assert.False(t, task.CreatedAt.IsZero())

	got, err := q.GetTask(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "index", got.TaskType)

	_, err = q.GetTask("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestPriorityFIFOOrder(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)

	a := submit(t, q, "A", types.PriorityLow)
	b := submit(t, q, "B", types.PriorityHigh)
	c := submit(t, q, "C", types.PriorityHigh)
	d := submit(t, q, "D", types.PriorityNormal)

	var popped []string
	for i := 0; i < 4; i++ {
		task, err := q.GetNextTask()
		require.NoError(t, err)
		require.NotNil(t, task)
		popped = append(popped, task.TaskID)
		assert.Equal(t, types.RemoteRunning, task.Status)
		assert.NotNil(t, task.StartedAt)
	}
	assert.Equal(t, []string{b.TaskID, c.TaskID, d.TaskID, a.TaskID}, popped)

	empty, err := q.GetNextTask()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 2)
	submit(t, q, "a", types.PriorityNormal)
	submit(t, q, "b", types.PriorityNormal)

	_, err := q.Submit(TaskRequest{TaskType: "c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrQueueFull))

	// Popping frees a slot.
	_, err = q.GetNextTask()
	require.NoError(t, err)
	submit(t, q, "c", types.PriorityNormal)
}

func TestCompleteTask(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)
	task := submit(t, q, "work", types.PriorityNormal)

	// Completion requires RUNNING.
	_, err := q.CompleteTask(task.TaskID, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))

	running, err := q.GetNextTask()
	require.NoError(t, err)
	require.NoError(t, q.AssignTask(running.TaskID, "agent-1"))

	done, err := q.CompleteTask(running.TaskID, map[string]any{"lines": 42.0}, "")
	require.NoError(t, err)
	assert.Equal(t, types.RemoteCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "agent-1", done.AssignedAgent)

	result, err := q.GetResult(running.TaskID)
	require.NoError(t, err)
	assert.Equal(t, running.TaskID, result["task_id"])

	// Terminal tasks refuse a second completion.
	_, err = q.CompleteTask(running.TaskID, nil, "")
	assert.True(t, errors.Is(err, types.ErrConflict))
}

func TestCompleteTaskWithError(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)
	submit(t, q, "work", types.PriorityNormal)
	running, _ := q.GetNextTask()

	failed, err := q.CompleteTask(running.TaskID, nil, "agent crashed")
	require.NoError(t, err)
	assert.Equal(t, types.RemoteFailed, failed.Status)
	assert.Equal(t, "agent crashed", failed.Error)
}

func TestCancelTask(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)
	task := submit(t, q, "work", types.PriorityNormal)

	cancelled, err := q.CancelTask(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteCancelled, cancelled.Status)

	// Cancelled tasks never pop.
	next, err := q.GetNextTask()
	require.NoError(t, err)
	assert.Nil(t, next)

	_, err = q.CancelTask(task.TaskID)
	assert.True(t, errors.Is(err, types.ErrConflict))
}

func TestRequeueClearsAssignment(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)
	submit(t, q, "work", types.PriorityHigh)

	running, _ := q.GetNextTask()
	require.NoError(t, q.AssignTask(running.TaskID, "agent-1"))
	require.NoError(t, q.Requeue(running.TaskID))

	got, err := q.GetTask(running.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteQueued, got.Status)
	assert.Empty(t, got.AssignedAgent)
	assert.Nil(t, got.StartedAt)

	// The re-queued task pops again.
	again, err := q.GetNextTask()
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, running.TaskID, again.TaskID)
}

func TestListTasksAndStats(t *testing.T) {
	q := NewQueue(NewMemoryKV(), 0)
	submit(t, q, "a", types.PriorityLow)
	submit(t, q, "b", types.PriorityHigh)
	q.GetNextTask()

	queued, err := q.ListTasks(types.RemoteQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "a", queued[0].TaskType)

	all, err := q.ListTasks("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Creation order.
	assert.Equal(t, "a", all[0].TaskType)

	stats, err := q.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.ByStatus[string(types.RemoteRunning)])
}

func TestQueueOnBoltBackend(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			q := NewQueue(kv, 0)
			low := submit(t, q, "low", types.PriorityLow)
			urgent := submit(t, q, "urgent", types.PriorityUrgent)

			first, err := q.GetNextTask()
			require.NoError(t, err)
			assert.Equal(t, urgent.TaskID, first.TaskID)
			second, err := q.GetNextTask()
			require.NoError(t, err)
			assert.Equal(t, low.TaskID, second.TaskID)
		})
	}
}
