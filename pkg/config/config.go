package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TasksFileName is the default task-list location relative to the
// workspace root.
const TasksFileName = ".contextforge/tasks.json"

// Config holds all tunable limits for the engine. Zero values are replaced
// by defaults in Load and Default.
type Config struct {
	WorkspaceRoot string `yaml:"workspace_root"`

	// Viewer / editor limits
	MaxFileSize    int64 `yaml:"max_file_size"`
	MaxOutputLines int   `yaml:"max_output_lines"`

	// Content store
	MaxReferences    int           `yaml:"max_references"`
	ReferenceTTL     time.Duration `yaml:"reference_ttl"`
	MaxSearchResults int           `yaml:"max_search_results"`

	// Watcher
	DebounceSeconds float64       `yaml:"debounce_seconds"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	// Streams
	RingBufferSize int `yaml:"ring_buffer_size"`

	// Coordinator
	MaxQueueSize        int           `yaml:"max_queue_size"`
	HeartbeatTimeout    time.Duration `yaml:"heartbeat_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	DispatchInterval    time.Duration `yaml:"dispatch_interval"`
	KVPath              string        `yaml:"kv_path"`

	// Task list
	UndoHistory int    `yaml:"undo_history"`
	TasksPath   string `yaml:"tasks_path"`
	AutoLoad    bool   `yaml:"auto_load"`

	// Editor backups
	BackupRetention time.Duration `yaml:"backup_retention"`

	// Chunker
	MaxChunkSize int `yaml:"max_chunk_size"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns a Config populated with the standard limits.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		WorkspaceRoot:       cwd,
		MaxFileSize:         10 * 1024 * 1024,
		MaxOutputLines:      1000,
		MaxReferences:       100,
		ReferenceTTL:        time.Hour,
		MaxSearchResults:    100,
		DebounceSeconds:     0.5,
		PollInterval:        time.Second,
		RingBufferSize:      10000,
		MaxQueueSize:        10000,
		HeartbeatTimeout:    30 * time.Second,
		HealthCheckInterval: 10 * time.Second,
		DispatchInterval:    time.Second,
		UndoHistory:         50,
		BackupRetention:     7 * 24 * time.Hour,
		MaxChunkSize:        4000,
		LogLevel:            "info",
	}
}

// Load reads a YAML config file, fills unset fields with defaults, and then
// applies environment overrides. A missing file is not an error; defaults
// are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	root, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	cfg.WorkspaceRoot = root

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = def.WorkspaceRoot
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.MaxOutputLines == 0 {
		cfg.MaxOutputLines = def.MaxOutputLines
	}
	if cfg.MaxReferences == 0 {
		cfg.MaxReferences = def.MaxReferences
	}
	if cfg.ReferenceTTL == 0 {
		cfg.ReferenceTTL = def.ReferenceTTL
	}
	if cfg.MaxSearchResults == 0 {
		cfg.MaxSearchResults = def.MaxSearchResults
	}
	if cfg.DebounceSeconds == 0 {
		cfg.DebounceSeconds = def.DebounceSeconds
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RingBufferSize == 0 {
		cfg.RingBufferSize = def.RingBufferSize
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.DispatchInterval == 0 {
		cfg.DispatchInterval = def.DispatchInterval
	}
	if cfg.UndoHistory == 0 {
		cfg.UndoHistory = def.UndoHistory
	}
	if cfg.BackupRetention == 0 {
		cfg.BackupRetention = def.BackupRetention
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = def.MaxChunkSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
}

// applyEnv overrides limits from CONTEXTFORGE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CONTEXTFORGE_WORKSPACE_ROOT"); v != "" {
		cfg.WorkspaceRoot = v
	}
	if v := os.Getenv("CONTEXTFORGE_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxFileSize = n
		}
	}
	if v := os.Getenv("CONTEXTFORGE_MAX_OUTPUT_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOutputLines = n
		}
	}
	if v := os.Getenv("CONTEXTFORGE_MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxQueueSize = n
		}
	}
	if v := os.Getenv("CONTEXTFORGE_DEBOUNCE_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.DebounceSeconds = f
		}
	}
	if v := os.Getenv("CONTEXTFORGE_HEARTBEAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HeartbeatTimeout = d
		}
	}
	if v := os.Getenv("CONTEXTFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
