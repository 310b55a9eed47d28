package indexer

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/chunker"
	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/types"
	"github.com/contextforge/contextforge/pkg/watcher"
)

// UpdateFunc is invoked after each successful live index update.
type UpdateFunc func(event types.FileEventType, path, language string, chunks []types.CodeChunk)

// LiveIndexer binds a file watch to the incremental indexer: created and
// modified files are (re)indexed, deleted files are dropped. Events for
// unsupported languages are skipped silently.
type LiveIndexer struct {
	indexer  *Indexer
	watcher  *watcher.Watcher
	watchID  string
	onUpdate UpdateFunc

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewLive starts a watch with cfg and begins applying its events to the
// indexer. The watch is owned by the LiveIndexer and stopped on Stop.
func NewLive(ix *Indexer, w *watcher.Watcher, cfg watcher.Config, onUpdate UpdateFunc) (*LiveIndexer, error) {
	watchID, err := w.StartWatch(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start watch: %w", err)
	}

	li := &LiveIndexer{
		indexer:  ix,
		watcher:  w,
		watchID:  watchID,
		onUpdate: onUpdate,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		logger:   log.WithComponent("live-indexer"),
	}
	go li.run()
	return li, nil
}

// Stop halts event processing and the underlying watch.
func (li *LiveIndexer) Stop() {
	li.once.Do(func() {
		close(li.stopCh)
		<-li.done
		_ = li.watcher.StopWatch(li.watchID)
	})
}

// WatchID returns the underlying watch id.
func (li *LiveIndexer) WatchID() string {
	return li.watchID
}

func (li *LiveIndexer) run() {
	defer close(li.done)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			events, err := li.watcher.GetEvents(li.watchID, 0)
			if err != nil {
				return
			}
			for _, ev := range events {
				li.apply(ev)
			}
		case <-li.stopCh:
			return
		}
	}
}

// apply processes one file event. Failures are logged and skipped; the
// next event for the path will retry naturally.
func (li *LiveIndexer) apply(ev types.FileEvent) {
	metrics.WatchEvents.WithLabelValues(string(ev.Type)).Inc()

	if ev.Type == types.FileDeleted {
		if err := li.indexer.RemoveFile(ev.Path); err != nil {
			li.logger.Debug().Err(err).Str("path", ev.Path).Msg("remove skipped")
			return
		}
		if li.onUpdate != nil {
			li.onUpdate(ev.Type, ev.Path, "", nil)
		}
		return
	}

	content, err := os.ReadFile(ev.Path)
	if err != nil {
		li.logger.Warn().Err(err).Str("path", ev.Path).Msg("failed to read changed file")
		return
	}

	language := chunker.DetectLanguage(ev.Path, content)
	if language == "" {
		return
	}

	chunks, err := li.indexer.IndexFile(ev.Path, string(content), language)
	if err != nil {
		li.logger.Error().Err(err).Str("path", ev.Path).Msg("live index failed")
		return
	}

	if li.onUpdate != nil {
		li.onUpdate(ev.Type, ev.Path, language, chunks)
	}
}
