package types

import (
	"time"
)

// Fingerprint summarizes a file's content so drift can be detected without
// retaining the content itself.
type Fingerprint struct {
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	ModTime   time.Time `json:"mtime"`
	Size      int64     `json:"size"`
	LineCount int       `json:"line_count"`
}

// DriftStatus reports the outcome of a drift check.
type DriftStatus string

const (
	DriftNone       DriftStatus = "no_drift"
	DriftDetected   DriftStatus = "drifted"
	DriftNotTracked DriftStatus = "not_tracked"
)

// DriftReport carries the old and new fingerprints when drift is detected.
type DriftReport struct {
	Status DriftStatus  `json:"status"`
	Old    *Fingerprint `json:"old,omitempty"`
	New    *Fingerprint `json:"new,omitempty"`
}

// ChunkReference is a stored piece of content retrievable by a short id
// until its TTL expires.
type ChunkReference struct {
	ID          string            `json:"id"`
	ReferenceID string            `json:"reference_id"`
	Content     string            `json:"content"`
	Source      string            `json:"source"`
	TotalLines  int               `json:"total_lines"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChunkType classifies a semantic chunk.
type ChunkType string

const (
	ChunkFunction  ChunkType = "function"
	ChunkClass     ChunkType = "class"
	ChunkMethod    ChunkType = "method"
	ChunkImport    ChunkType = "import"
	ChunkDocstring ChunkType = "docstring"
	ChunkTextBlock ChunkType = "text_block"
)

// CodeChunk is a contiguous, semantically meaningful slice of a source file.
// Content equals the source slice implied by [StartLine, EndLine].
type CodeChunk struct {
	Content   string            `json:"content"`
	Type      ChunkType         `json:"chunk_type"`
	Name      string            `json:"name"`
	StartLine int               `json:"start_line"`
	EndLine   int               `json:"end_line"`
	Language  string            `json:"language"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FileState is the indexer's per-file record, replaced atomically on re-index.
type FileState struct {
	Path         string
	ContentHash  string
	Tree         any // parser-owned; opaque to everything else
	Chunks       []CodeChunk
	LastModified time.Time
}

// FileEventType classifies a watcher event.
type FileEventType string

const (
	FileCreated  FileEventType = "created"
	FileModified FileEventType = "modified"
	FileDeleted  FileEventType = "deleted"
)

// FileEvent is a single debounced filesystem change observed by a watch.
type FileEvent struct {
	Type      FileEventType `json:"type"`
	Path      string        `json:"path"`
	Timestamp time.Time     `json:"timestamp"`
}

// TaskState represents the lifecycle state of a task-list task.
type TaskState string

const (
	TaskNotStarted TaskState = "NOT_STARTED"
	TaskInProgress TaskState = "IN_PROGRESS"
	TaskComplete   TaskState = "COMPLETE"
	TaskCancelled  TaskState = "CANCELLED"
)

// Task is a node in the task-list hierarchy. Each task has at most one
// parent; the dependency graph over task ids is acyclic.
type Task struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	State        TaskState         `json:"state"`
	ParentID     string            `json:"parent_id,omitempty"`
	Children     []string          `json:"children"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Order        int               `json:"order"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AgentStatus represents the liveness state of a remote agent.
type AgentStatus string

const (
	AgentOnline    AgentStatus = "ONLINE"
	AgentBusy      AgentStatus = "BUSY"
	AgentUnhealthy AgentStatus = "UNHEALTHY"
	AgentOffline   AgentStatus = "OFFLINE"
)

// AgentInfo describes a registered remote agent.
// Invariant: CurrentTasks <= MaxConcurrentTasks.
type AgentInfo struct {
	AgentID            string            `json:"agent_id"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	Status             AgentStatus       `json:"status"`
	CurrentTasks       int               `json:"current_tasks"`
	MaxConcurrentTasks int               `json:"max_concurrent_tasks"`
	LastHeartbeat      time.Time         `json:"last_heartbeat"`
	Endpoint           string            `json:"endpoint,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// HasCapability reports whether the agent declares the given capability.
func (a *AgentInfo) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// TaskPriority orders queued work. Higher values dispatch first.
type TaskPriority int

const (
	PriorityLow    TaskPriority = 0
	PriorityNormal TaskPriority = 1
	PriorityHigh   TaskPriority = 2
	PriorityUrgent TaskPriority = 3
)

// RemoteTaskStatus represents the lifecycle state of a dispatched task.
type RemoteTaskStatus string

const (
	RemotePending   RemoteTaskStatus = "PENDING"
	RemoteQueued    RemoteTaskStatus = "QUEUED"
	RemoteRunning   RemoteTaskStatus = "RUNNING"
	RemoteCompleted RemoteTaskStatus = "COMPLETED"
	RemoteFailed    RemoteTaskStatus = "FAILED"
	RemoteCancelled RemoteTaskStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are possible.
func (s RemoteTaskStatus) IsTerminal() bool {
	return s == RemoteCompleted || s == RemoteFailed || s == RemoteCancelled
}

// TaskInfo describes a unit of work flowing through the coordinator.
type TaskInfo struct {
	TaskID               string            `json:"task_id"`
	TaskType             string            `json:"task_type"`
	Payload              map[string]any    `json:"payload,omitempty"`
	Priority             TaskPriority      `json:"priority"`
	Status               RemoteTaskStatus  `json:"status"`
	CreatedAt            time.Time         `json:"created_at"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	TimeoutSeconds       int               `json:"timeout_seconds,omitempty"`
	RequiredCapabilities []string          `json:"required_capabilities,omitempty"`
	AssignedAgent        string            `json:"assigned_agent,omitempty"`
	Result               any               `json:"result,omitempty"`
	Error                string            `json:"error,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// ProcessState represents the lifecycle state of a supervised subprocess.
type ProcessState string

const (
	ProcessRunning   ProcessState = "RUNNING"
	ProcessCompleted ProcessState = "COMPLETED"
	ProcessFailed    ProcessState = "FAILED"
	ProcessKilled    ProcessState = "KILLED"
	ProcessTimeout   ProcessState = "TIMEOUT"
)

// StreamLine is a single line captured from a streamed subprocess.
type StreamLine struct {
	Text       string    `json:"text"`
	LineNumber int       `json:"line_number"`
	Timestamp  time.Time `json:"timestamp"`
}

// Severity grades a diagnostic finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// DiagnosticResult is one finding produced by the diagnostic agent.
type DiagnosticResult struct {
	Passed    bool           `json:"passed"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// OperationMetrics tracks resource consumption of a long-running operation,
// checked against configured maxima by the diagnostic agent.
type OperationMetrics struct {
	ToolCalls      int `json:"tool_calls"`
	Revisions      int `json:"revisions"`
	TokensUsed     int `json:"tokens_used"`
	FilesAccessed  int `json:"files_accessed"`
	LoopIterations int `json:"loop_iterations"`
}
