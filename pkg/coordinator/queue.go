package coordinator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/types"
)

const (
	tasksBucket   = "tasks"
	resultsBucket = "task_results"
	queueSet      = "task_queue"

	// DefaultMaxQueueSize bounds the number of queued tasks.
	DefaultMaxQueueSize = 10000
)

// TaskRequest is the payload for submitting a task.
type TaskRequest struct {
	TaskType             string             `json:"task_type"`
	Payload              map[string]any     `json:"payload,omitempty"`
	Priority             types.TaskPriority `json:"priority"`
	TimeoutSeconds       int                `json:"timeout_seconds,omitempty"`
	RequiredCapabilities []string           `json:"required_capabilities,omitempty"`
	Metadata             map[string]string  `json:"metadata,omitempty"`
}

// QueueStats summarizes queue contents by status and priority.
type QueueStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	Queued     int            `json:"queued"`
}

// Queue is a priority task queue over a KV backend. Pop order is priority
// descending, creation order ascending within a priority.
type Queue struct {
	mu      sync.Mutex
	kv      KV
	maxSize int
	logger  zerolog.Logger
}

// NewQueue creates a Queue. Non-positive maxSize uses the default.
func NewQueue(kv KV, maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxQueueSize
	}
	return &Queue{
		kv:      kv,
		maxSize: maxSize,
		logger:  log.WithComponent("queue"),
	}
}

func (q *Queue) putTask(task *types.TaskInfo) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	return q.kv.HSet(tasksBucket, task.TaskID, data)
}

func (q *Queue) getTask(taskID string) (*types.TaskInfo, error) {
	data, err := q.kv.HGet(tasksBucket, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s", types.ErrNotFound, taskID)
	}
	var task types.TaskInfo
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// Submit enqueues a task. A full queue is rejected.
func (q *Queue) Submit(req TaskRequest) (*types.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued, err := q.kv.ZRange(queueSet)
	if err != nil {
		return nil, err
	}
	if len(queued) >= q.maxSize {
		return nil, fmt.Errorf("%w: queue holds %d tasks", types.ErrQueueFull, len(queued))
	}

	task := &types.TaskInfo{
		TaskID:               uuid.New().String(),
		TaskType:             req.TaskType,
		Payload:              req.Payload,
		Priority:             req.Priority,
		Status:               types.RemoteQueued,
		CreatedAt:            time.Now(),
		TimeoutSeconds:       req.TimeoutSeconds,
		RequiredCapabilities: append([]string(nil), req.RequiredCapabilities...),
		Metadata:             req.Metadata,
	}
	if err := q.putTask(task); err != nil {
		return nil, err
	}
	if err := q.kv.ZAdd(queueSet, task.TaskID, float64(task.Priority)); err != nil {
		return nil, err
	}
	metrics.QueueDepth.WithLabelValues(strconv.Itoa(int(task.Priority))).Inc()
	q.logger.Debug().Str("task_id", task.TaskID).Int("priority", int(task.Priority)).Msg("task submitted")
	return task, nil
}

// GetNextTask atomically pops the best queued task and marks it RUNNING.
// Returns nil when the queue is empty.
func (q *Queue) GetNextTask() (*types.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (*types.TaskInfo, error) {
	queued, err := q.kv.ZRange(queueSet)
	if err != nil {
		return nil, err
	}
	if len(queued) == 0 {
		return nil, nil
	}
	taskID := queued[0]
	task, err := q.getTask(taskID)
	if err != nil {
		// Index entry without a record; drop it and move on.
		_ = q.kv.ZRem(queueSet, taskID)
		return q.popLocked()
	}

	if err := q.kv.ZRem(queueSet, taskID); err != nil {
		return nil, err
	}
	now := time.Now()
	task.Status = types.RemoteRunning
	task.StartedAt = &now
	if err := q.putTask(task); err != nil {
		return nil, err
	}
	metrics.QueueDepth.WithLabelValues(strconv.Itoa(int(task.Priority))).Dec()
	return task, nil
}

// AssignTask records the agent a task was handed to.
func (q *Queue) AssignTask(taskID, agentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.getTask(taskID)
	if err != nil {
		return err
	}
	task.AssignedAgent = agentID
	return q.putTask(task)
}

// CompleteTask finishes a RUNNING task: COMPLETED without an error
// message, FAILED with one. The result is stored for later retrieval.
func (q *Queue) CompleteTask(taskID string, result any, errMsg string) (*types.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != types.RemoteRunning {
		return nil, fmt.Errorf("%w: task %s is %s, not RUNNING", types.ErrConflict, taskID, task.Status)
	}
	now := time.Now()
	task.CompletedAt = &now
	task.Result = result
	task.Error = errMsg
	if errMsg == "" {
		task.Status = types.RemoteCompleted
	} else {
		task.Status = types.RemoteFailed
	}

	resultData, err := json.Marshal(map[string]any{
		"task_id":      taskID,
		"result":       result,
		"error":        errMsg,
		"completed_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := q.kv.HSet(resultsBucket, taskID, resultData); err != nil {
		return nil, err
	}
	if err := q.putTask(task); err != nil {
		return nil, err
	}
	metrics.TasksCompleted.WithLabelValues(string(task.Status)).Inc()
	return task, nil
}

// CancelTask transitions a non-terminal task to CANCELLED and removes it
// from the queue index.
func (q *Queue) CancelTask(taskID string) (*types.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.getTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s already %s", types.ErrConflict, taskID, task.Status)
	}
	wasQueued := task.Status == types.RemoteQueued
	now := time.Now()
	task.Status = types.RemoteCancelled
	task.CompletedAt = &now
	if err := q.kv.ZRem(queueSet, taskID); err != nil {
		return nil, err
	}
	if err := q.putTask(task); err != nil {
		return nil, err
	}
	if wasQueued {
		metrics.QueueDepth.WithLabelValues(strconv.Itoa(int(task.Priority))).Dec()
	}
	metrics.TasksCompleted.WithLabelValues(string(types.RemoteCancelled)).Inc()
	return task, nil
}

// Requeue puts a RUNNING task back in the queue, clearing assignment and
// start time.
func (q *Queue) Requeue(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, err := q.getTask(taskID)
	if err != nil {
		return err
	}
	task.Status = types.RemoteQueued
	task.AssignedAgent = ""
	task.StartedAt = nil
	if err := q.putTask(task); err != nil {
		return err
	}
	if err := q.kv.ZAdd(queueSet, taskID, float64(task.Priority)); err != nil {
		return err
	}
	metrics.QueueDepth.WithLabelValues(strconv.Itoa(int(task.Priority))).Inc()
	return nil
}

// GetTask returns one task record.
func (q *Queue) GetTask(taskID string) (*types.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getTask(taskID)
}

// ListTasks returns tasks, optionally filtered by status, ordered by
// creation time.
func (q *Queue) ListTasks(status types.RemoteTaskStatus) ([]*types.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.kv.HGetAll(tasksBucket)
	if err != nil {
		return nil, err
	}
	var out []*types.TaskInfo
	for id, data := range records {
		var task types.TaskInfo
		if err := json.Unmarshal(data, &task); err != nil {
			q.logger.Warn().Err(err).Str("task_id", id).Msg("skipping corrupt task record")
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, &task)
	}
	sortTasksByCreation(out)
	return out, nil
}

// GetResult returns the stored completion record for a task.
func (q *Queue) GetResult(taskID string) (map[string]any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := q.kv.HGet(resultsBucket, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: result for task %s", types.ErrNotFound, taskID)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return result, nil
}

// Stats summarizes the queue.
func (q *Queue) Stats() (*QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.kv.HGetAll(tasksBucket)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for _, data := range records {
		var task types.TaskInfo
		if err := json.Unmarshal(data, &task); err != nil {
			continue
		}
		stats.Total++
		stats.ByStatus[string(task.Status)]++
		stats.ByPriority[strconv.Itoa(int(task.Priority))]++
		if task.Status == types.RemoteQueued {
			stats.Queued++
		}
	}
	return stats, nil
}

func sortTasksByCreation(tasks []*types.TaskInfo) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
