package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Indexing metrics
	FilesIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextforge_files_indexed_total",
			Help: "Total number of file index operations by kind (full, incremental, noop)",
		},
		[]string{"kind"},
	)

	ChunksProduced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contextforge_chunks_produced_total",
			Help: "Total number of chunks produced by the chunker",
		},
	)

	IndexedVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "contextforge_indexed_vectors",
			Help: "Current number of vectors in the index",
		},
	)

	// Watcher metrics
	WatchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextforge_watch_events_total",
			Help: "Total number of file events emitted by type",
		},
		[]string{"type"},
	)

	// Process supervision metrics
	ProcessesLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contextforge_processes_launched_total",
			Help: "Total number of subprocesses launched",
		},
	)

	ProcessesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contextforge_processes",
			Help: "Number of supervised processes by state",
		},
		[]string{"state"},
	)

	StreamLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contextforge_stream_lines_total",
			Help: "Total number of lines read from streamed processes",
		},
	)

	// Coordinator metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contextforge_queue_depth",
			Help: "Queued tasks by priority",
		},
		[]string{"priority"},
	)

	TasksDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contextforge_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to agents",
		},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contextforge_tasks_completed_total",
			Help: "Total number of finished tasks by outcome",
		},
		[]string{"outcome"},
	)

	AgentsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contextforge_agents",
			Help: "Registered agents by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(FilesIndexed)
	prometheus.MustRegister(ChunksProduced)
	prometheus.MustRegister(IndexedVectors)
	prometheus.MustRegister(WatchEvents)
	prometheus.MustRegister(ProcessesLaunched)
	prometheus.MustRegister(ProcessesByState)
	prometheus.MustRegister(StreamLines)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TasksDispatched)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(AgentsByStatus)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
