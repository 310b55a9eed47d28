package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/types"
)

// Config tunes the coordinator's background loops.
type Config struct {
	DispatchInterval    time.Duration `yaml:"dispatch_interval"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Coordinator drives dispatch and health monitoring over a Registry and
// Queue, and fans task state changes out to per-task subscribers.
type Coordinator struct {
	registry *Registry
	queue    *Queue
	cfg      Config

	mu          sync.Mutex
	subscribers map[string][]chan *types.TaskInfo
	started     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup

	logger zerolog.Logger
}

// OpenBackend opens the external KV backend at path, degrading to the
// in-memory backend when it cannot be opened.
func OpenBackend(path string) KV {
	logger := log.WithComponent("coordinator")
	if path == "" {
		return NewMemoryKV()
	}
	kv, err := NewBoltKV(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("kv backend unavailable, using in-memory store")
		return NewMemoryKV()
	}
	logger.Info().Str("path", path).Msg("kv backend opened")
	return kv
}

// New creates a Coordinator over an existing registry and queue.
func New(registry *Registry, queue *Queue, cfg Config) *Coordinator {
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 500 * time.Millisecond
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 5 * time.Second
	}
	return &Coordinator{
		registry:    registry,
		queue:       queue,
		cfg:         cfg,
		subscribers: make(map[string][]chan *types.TaskInfo),
		logger:      log.WithComponent("coordinator"),
	}
}

// Registry returns the underlying agent registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Queue returns the underlying task queue.
func (c *Coordinator) Queue() *Queue { return c.queue }

// Start launches the dispatcher and health monitor.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("%w: coordinator already started", types.ErrConflict)
	}
	c.started = true
	c.stopCh = make(chan struct{})

	c.wg.Add(2)
	go c.dispatchLoop()
	go c.healthLoop()
	c.logger.Info().
		Dur("dispatch_interval", c.cfg.DispatchInterval).
		Dur("health_check_interval", c.cfg.HealthCheckInterval).
		Msg("coordinator started")
	return nil
}

// Stop halts the background loops and waits for them to drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info().Msg("coordinator stopped")
}

func (c *Coordinator) dispatchLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.DispatchPending()
		}
	}
}

func (c *Coordinator) healthLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.RunHealthCheck()
		}
	}
}

// DispatchPending assigns queued tasks to available agents until the
// queue empties or no agent matches. Returns the number dispatched.
func (c *Coordinator) DispatchPending() int {
	dispatched := 0
	for {
		task, err := c.queue.GetNextTask()
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to pop task")
			return dispatched
		}
		if task == nil {
			return dispatched
		}

		// Selecting the agent and reserving its slot happen in one
		// registry critical section; concurrent dispatchers cannot
		// both claim the same capacity.
		agent, err := c.registry.ClaimAvailableAgent(task.RequiredCapabilities)
		if err != nil {
			// No capacity right now; put the task back for a later pass.
			if rqErr := c.queue.Requeue(task.TaskID); rqErr != nil {
				c.logger.Error().Err(rqErr).Str("task_id", task.TaskID).Msg("failed to requeue task")
			}
			return dispatched
		}

		if err := c.queue.AssignTask(task.TaskID, agent.AgentID); err != nil {
			c.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to assign task")
			if relErr := c.registry.AdjustCurrentTasks(agent.AgentID, -1); relErr != nil {
				c.logger.Error().Err(relErr).Str("agent_id", agent.AgentID).Msg("failed to release agent slot")
			}
			return dispatched
		}
		task.AssignedAgent = agent.AgentID
		metrics.TasksDispatched.Inc()
		dispatched++
		c.notify(task)
		c.logger.Debug().
			Str("task_id", task.TaskID).
			Str("agent_id", agent.AgentID).
			Msg("task dispatched")
	}
}

// RunHealthCheck marks stale agents unhealthy and re-queues their RUNNING
// tasks. Returns the newly unhealthy agent ids.
func (c *Coordinator) RunHealthCheck() []string {
	unhealthy, err := c.registry.CheckHealth()
	if err != nil {
		c.logger.Error().Err(err).Msg("health check failed")
		return nil
	}
	for _, agentID := range unhealthy {
		running, err := c.queue.ListTasks(types.RemoteRunning)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to list running tasks")
			continue
		}
		for _, task := range running {
			if task.AssignedAgent != agentID {
				continue
			}
			if err := c.queue.Requeue(task.TaskID); err != nil {
				c.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to requeue task")
				continue
			}
			if err := c.registry.AdjustCurrentTasks(agentID, -1); err != nil {
				c.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to drop agent load")
			}
			requeued, err := c.queue.GetTask(task.TaskID)
			if err == nil {
				c.notify(requeued)
			}
			c.logger.Warn().
				Str("task_id", task.TaskID).
				Str("agent_id", agentID).
				Msg("task re-queued from unhealthy agent")
		}
	}
	return unhealthy
}

// CompleteTask finishes a task on behalf of its agent, releasing the
// agent's slot and notifying subscribers.
func (c *Coordinator) CompleteTask(taskID string, result any, errMsg string) (*types.TaskInfo, error) {
	task, err := c.queue.CompleteTask(taskID, result, errMsg)
	if err != nil {
		return nil, err
	}
	if task.AssignedAgent != "" {
		if err := c.registry.AdjustCurrentTasks(task.AssignedAgent, -1); err != nil {
			c.logger.Warn().Err(err).Str("agent_id", task.AssignedAgent).Msg("failed to drop agent load")
		}
	}
	c.notify(task)
	return task, nil
}

// CancelTask cancels a task and notifies subscribers.
func (c *Coordinator) CancelTask(taskID string) (*types.TaskInfo, error) {
	task, err := c.queue.CancelTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedAgent != "" {
		if err := c.registry.AdjustCurrentTasks(task.AssignedAgent, -1); err != nil {
			c.logger.Warn().Err(err).Str("agent_id", task.AssignedAgent).Msg("failed to drop agent load")
		}
	}
	c.notify(task)
	return task, nil
}

// Subscribe returns a channel receiving state changes for one task.
func (c *Coordinator) Subscribe(taskID string) <-chan *types.TaskInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *types.TaskInfo, 16)
	c.subscribers[taskID] = append(c.subscribers[taskID], ch)
	return ch
}

// Unsubscribe removes one subscription channel, leaving others intact.
func (c *Coordinator) Unsubscribe(taskID string, ch <-chan *types.TaskInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subscribers[taskID]
	for i, s := range subs {
		if s == ch {
			close(s)
			c.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subscribers[taskID]) == 0 {
		delete(c.subscribers, taskID)
	}
}

// notify delivers a task snapshot to its subscribers without blocking.
func (c *Coordinator) notify(task *types.TaskInfo) {
	c.mu.Lock()
	subs := append([]chan *types.TaskInfo(nil), c.subscribers[task.TaskID]...)
	c.mu.Unlock()
	for _, ch := range subs {
		snapshot := *task
		select {
		case ch <- &snapshot:
		default:
			l := log.WithTaskID(task.TaskID)
			l.Warn().Msg("subscriber channel full, notification dropped")
		}
	}
}
