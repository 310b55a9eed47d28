package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

// Config describes a single watch.
type Config struct {
	Root            string
	Recursive       bool
	Patterns        []string // shell globs on basename; empty means all files
	IgnorePatterns  []string
	PollInterval    time.Duration // default 1s
	DebounceSeconds float64       // suppress repeat (path, type) emissions
	MaxQueuedEvents int           // default 10000
}

// Watcher manages polling watches over directory trees.
type Watcher struct {
	mu      sync.Mutex
	watches map[string]*watch
	logger  zerolog.Logger
}

type watch struct {
	id     string
	cfg    Config
	logger zerolog.Logger
	stopCh chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	known    map[string]time.Time  // path -> mtime from last scan
	lastEmit map[emitKey]time.Time // debounce bookkeeping
	queue    []types.FileEvent
}

type emitKey struct {
	path string
	typ  types.FileEventType
}

// New creates a Watcher.
func New() *Watcher {
	return &Watcher{
		watches: make(map[string]*watch),
		logger:  log.WithComponent("watcher"),
	}
}

// StartWatch begins polling under cfg.Root and returns the watch id.
func (w *Watcher) StartWatch(cfg Config) (string, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: watch root %s is not a directory", types.ErrValidation, cfg.Root)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxQueuedEvents <= 0 {
		cfg.MaxQueuedEvents = 10000
	}

	wt := &watch{
		id:       uuid.New().String(),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		known:    make(map[string]time.Time),
		lastEmit: make(map[emitKey]time.Time),
	}
	wt.logger = log.WithWatchID(wt.id)

	// Initial scan establishes the baseline; no events are emitted for
	// files that already exist.
	wt.known = wt.scan()

	w.mu.Lock()
	w.watches[wt.id] = wt
	w.mu.Unlock()

	go wt.run()

	w.logger.Info().
		Str("watch_id", wt.id).
		Str("root", cfg.Root).
		Bool("recursive", cfg.Recursive).
		Msg("watch started")

	return wt.id, nil
}

// StopWatch stops a watch and waits for its poll loop to exit.
func (w *Watcher) StopWatch(watchID string) error {
	w.mu.Lock()
	wt, ok := w.watches[watchID]
	if ok {
		delete(w.watches, watchID)
	}
	w.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: watch %s", types.ErrNotFound, watchID)
	}

	close(wt.stopCh)
	<-wt.done
	w.logger.Info().Str("watch_id", watchID).Msg("watch stopped")
	return nil
}

// GetEvents drains up to max queued events without blocking. max <= 0
// drains everything.
func (w *Watcher) GetEvents(watchID string, max int) ([]types.FileEvent, error) {
	w.mu.Lock()
	wt, ok := w.watches[watchID]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: watch %s", types.ErrNotFound, watchID)
	}

	wt.mu.Lock()
	defer wt.mu.Unlock()

	n := len(wt.queue)
	if max > 0 && max < n {
		n = max
	}
	events := make([]types.FileEvent, n)
	copy(events, wt.queue[:n])
	wt.queue = wt.queue[n:]
	return events, nil
}

// StopAll stops every active watch.
func (w *Watcher) StopAll() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.watches))
	for id := range w.watches {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		_ = w.StopWatch(id)
	}
}

// run is the poll loop for one watch.
func (wt *watch) run() {
	defer close(wt.done)

	ticker := time.NewTicker(wt.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			wt.poll()
		case <-wt.stopCh:
			return
		}
	}
}

// poll rescans the tree and enqueues debounced change events.
func (wt *watch) poll() {
	current := wt.scan()
	now := time.Now()

	wt.mu.Lock()
	defer wt.mu.Unlock()

	for path, mtime := range current {
		prev, existed := wt.known[path]
		switch {
		case !existed:
			wt.emitLocked(types.FileEvent{Type: types.FileCreated, Path: path, Timestamp: now})
		case mtime.After(prev):
			wt.emitLocked(types.FileEvent{Type: types.FileModified, Path: path, Timestamp: now})
		}
	}
	for path := range wt.known {
		if _, still := current[path]; !still {
			wt.emitLocked(types.FileEvent{Type: types.FileDeleted, Path: path, Timestamp: now})
		}
	}

	wt.known = current
}

// emitLocked applies debouncing and appends to the queue, dropping the
// oldest event when the queue is full.
func (wt *watch) emitLocked(ev types.FileEvent) {
	key := emitKey{path: ev.Path, typ: ev.Type}
	if wt.cfg.DebounceSeconds > 0 {
		window := time.Duration(wt.cfg.DebounceSeconds * float64(time.Second))
		if last, ok := wt.lastEmit[key]; ok && ev.Timestamp.Sub(last) < window {
			return
		}
	}
	wt.lastEmit[key] = ev.Timestamp

	if len(wt.queue) >= wt.cfg.MaxQueuedEvents {
		wt.logger.Warn().Str("path", wt.queue[0].Path).Msg("event queue full, dropping oldest event")
		wt.queue = wt.queue[1:]
	}
	wt.queue = append(wt.queue, ev)
}

// scan walks the watch root and returns {path -> mtime} for files matching
// the configured patterns. Transient I/O errors skip the entry; the next
// poll retries naturally.
func (wt *watch) scan() map[string]time.Time {
	result := make(map[string]time.Time)

	walk := func(path string, info os.FileInfo) {
		if info.IsDir() {
			return
		}
		base := filepath.Base(path)
		if matchesAny(base, wt.cfg.IgnorePatterns) {
			return
		}
		if len(wt.cfg.Patterns) > 0 && !matchesAny(base, wt.cfg.Patterns) {
			return
		}
		result[path] = info.ModTime()
	}

	if wt.cfg.Recursive {
		_ = filepath.Walk(wt.cfg.Root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() && matchesAny(filepath.Base(path), wt.cfg.IgnorePatterns) && path != wt.cfg.Root {
				return filepath.SkipDir
			}
			walk(path, info)
			return nil
		})
		return result
	}

	entries, err := os.ReadDir(wt.cfg.Root)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		walk(filepath.Join(wt.cfg.Root, entry.Name()), info)
	}
	return result
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
