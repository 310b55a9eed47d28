package coordinator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/types"
)

func newTestCoordinator(heartbeatTimeout time.Duration) *Coordinator {
	kv := NewMemoryKV()
	return New(NewRegistry(kv, heartbeatTimeout), NewQueue(kv, 0), Config{})
}

func TestDispatchPending(t *testing.T) {
	c := newTestCoordinator(0)
	agent, err := c.Registry().Register(AgentRegistration{
		Name:               "worker",
		Capabilities:       []string{"index"},
		MaxConcurrentTasks: 2,
	})
	require.NoError(t, err)

	task, err := c.Queue().Submit(TaskRequest{TaskType: "index", RequiredCapabilities: []string{"index"}})
	require.NoError(t, err)

	ch := c.Subscribe(task.TaskID)
	assert.Equal(t, 1, c.DispatchPending())

	got, err := c.Queue().GetTask(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteRunning, got.Status)
	assert.Equal(t, agent.AgentID, got.AssignedAgent)

	updated, err := c.Registry().GetAgent(agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CurrentTasks)

	select {
	case note := <-ch:
		assert.Equal(t, agent.AgentID, note.AssignedAgent)
	default:
		t.Fatal("expected a subscriber notification")
	}
}

func TestConcurrentDispatchRespectsCapacity(t *testing.T) {
	c := newTestCoordinator(0)
	agent, err := c.Registry().Register(AgentRegistration{
		Name:               "worker",
		MaxConcurrentTasks: 2,
	})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := c.Queue().Submit(TaskRequest{TaskType: "t"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var dispatched int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&dispatched, int64(c.DispatchPending()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2), dispatched)
	loaded, err := c.Registry().GetAgent(agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.CurrentTasks)

	stats, err := c.Queue().Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Queued)
	assert.Equal(t, 2, stats.ByStatus[string(types.RemoteRunning)])
}

func TestDispatchRequeuesWhenNoAgentMatches(t *testing.T) {
	c := newTestCoordinator(0)
	c.Registry().Register(AgentRegistration{Name: "worker", Capabilities: []string{"build"}})

	task, err := c.Queue().Submit(TaskRequest{TaskType: "x", RequiredCapabilities: []string{"gpu"}})
	require.NoError(t, err)

	assert.Equal(t, 0, c.DispatchPending())
	got, err := c.Queue().GetTask(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteQueued, got.Status)
	assert.Empty(t, got.AssignedAgent)
}

func TestHealthCheckRequeuesRunningTasks(t *testing.T) {
	c := newTestCoordinator(50 * time.Millisecond)
	agent, err := c.Registry().Register(AgentRegistration{Name: "x", MaxConcurrentTasks: 1})
	require.NoError(t, err)

	task, err := c.Queue().Submit(TaskRequest{TaskType: "t"})
	require.NoError(t, err)
	require.Equal(t, 1, c.DispatchPending())

	running, _ := c.Queue().GetTask(task.TaskID)
	require.Equal(t, types.RemoteRunning, running.Status)
	loaded, _ := c.Registry().GetAgent(agent.AgentID)
	require.Equal(t, 1, loaded.CurrentTasks)

	// No heartbeats arrive; the agent goes stale.
	time.Sleep(80 * time.Millisecond)
	unhealthy := c.RunHealthCheck()
	assert.Equal(t, []string{agent.AgentID}, unhealthy)

	got, err := c.Queue().GetTask(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteQueued, got.Status)
	assert.Empty(t, got.AssignedAgent)
	assert.Nil(t, got.StartedAt)

	drained, err := c.Registry().GetAgent(agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, 0, drained.CurrentTasks)
	assert.Equal(t, types.AgentUnhealthy, drained.Status)
}

func TestCompleteTaskReleasesAgent(t *testing.T) {
	c := newTestCoordinator(0)
	agent, _ := c.Registry().Register(AgentRegistration{Name: "w", MaxConcurrentTasks: 1})
	task, _ := c.Queue().Submit(TaskRequest{TaskType: "t"})
	require.Equal(t, 1, c.DispatchPending())

	ch := c.Subscribe(task.TaskID)
	done, err := c.CompleteTask(task.TaskID, "ok", "")
	require.NoError(t, err)
	assert.Equal(t, types.RemoteCompleted, done.Status)

	freed, _ := c.Registry().GetAgent(agent.AgentID)
	assert.Equal(t, 0, freed.CurrentTasks)

	select {
	case note := <-ch:
		assert.Equal(t, types.RemoteCompleted, note.Status)
	default:
		t.Fatal("expected a completion notification")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	c := newTestCoordinator(0)
	task, _ := c.Queue().Submit(TaskRequest{TaskType: "t"})

	ch1 := c.Subscribe(task.TaskID)
	ch2 := c.Subscribe(task.TaskID)
	c.Unsubscribe(task.TaskID, ch1)

	// ch1 is closed, ch2 still receives.
	_, open := <-ch1
	assert.False(t, open)

	_, err := c.CancelTask(task.TaskID)
	require.NoError(t, err)
	select {
	case note := <-ch2:
		assert.Equal(t, types.RemoteCancelled, note.Status)
	default:
		t.Fatal("expected a cancellation notification")
	}
}

func TestStartStop(t *testing.T) {
	c := New(NewRegistry(NewMemoryKV(), 0), NewQueue(NewMemoryKV(), 0), Config{
		DispatchInterval:    10 * time.Millisecond,
		HealthCheckInterval: 10 * time.Millisecond,
	})
	require.NoError(t, c.Start())
	assert.Error(t, c.Start())

	time.Sleep(30 * time.Millisecond)
	c.Stop()
	// Stopping twice is safe.
	c.Stop()
}

func TestBackgroundDispatch(t *testing.T) {
	c := New(NewRegistry(NewMemoryKV(), 0), NewQueue(NewMemoryKV(), 0), Config{
		DispatchInterval: 10 * time.Millisecond,
	})
	c.Registry().Register(AgentRegistration{Name: "w", MaxConcurrentTasks: 1})
	task, err := c.Queue().Submit(TaskRequest{TaskType: "t"})
	require.NoError(t, err)

	require.NoError(t, c.Start())
	defer c.Stop()

	require.Eventually(t, func() bool {
		got, err := c.Queue().GetTask(task.TaskID)
		return err == nil && got.Status == types.RemoteRunning
	}, time.Second, 10*time.Millisecond)
}
