package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/chunker"
	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
	"github.com/contextforge/contextforge/pkg/types"
	"github.com/contextforge/contextforge/pkg/vectorindex"
)

// Indexer keeps per-file state and maintains the vector index
// incrementally. Operations on the same path are serialized; the
// state map is guarded by a single mutex.
type Indexer struct {
	mu      sync.Mutex
	states  map[string]*types.FileState
	chunker *chunker.Chunker
	index   vectorindex.Index
	logger  zerolog.Logger
}

// New creates an Indexer writing to the given vector index.
func New(c *chunker.Chunker, index vectorindex.Index) *Indexer {
	return &Indexer{
		states:  make(map[string]*types.FileState),
		chunker: c,
		index:   index,
		logger:  log.WithComponent("indexer"),
	}
}

// IndexFile indexes content for path. The first sighting of a path is a
// full index; later calls compare content hashes and only touch the
// vector index when chunks actually changed. For the same final content,
// the resulting index state is identical to a clean full index.
func (ix *Indexer) IndexFile(path, content, language string) ([]types.CodeChunk, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	newHash := hashString(content)
	old, tracked := ix.states[path]

	if tracked && old.ContentHash == newHash {
		metrics.FilesIndexed.WithLabelValues("noop").Inc()
		return old.Chunks, nil
	}

	chunks := ix.chunker.ChunkContent(content, language)
	metrics.ChunksProduced.Add(float64(len(chunks)))

	if !tracked {
		if err := ix.insertChunks(path, chunks); err != nil {
			return nil, err
		}
		ix.states[path] = &types.FileState{
			Path:         path,
			ContentHash:  newHash,
			Chunks:       chunks,
			LastModified: time.Now(),
		}
		metrics.FilesIndexed.WithLabelValues("full").Inc()
		ix.logger.Debug().Str("path", path).Int("chunks", len(chunks)).Msg("full index")
		return chunks, nil
	}

	// Incremental: diff chunk sets by (start, end, content hash). Added
	// chunks are upserted alone; any removal or modification replaces the
	// file's slice of the index wholesale, which keeps index state equal
	// to a clean re-index.
	oldKeys := chunkKeySet(old.Chunks)
	newKeys := chunkKeySet(chunks)

	var added []types.CodeChunk
	for i, c := range chunks {
		if _, ok := oldKeys[chunkKey(c)]; !ok {
			added = append(added, chunks[i])
		}
	}
	removed := 0
	for key := range oldKeys {
		if _, ok := newKeys[key]; !ok {
			removed++
		}
	}

	switch {
	case removed > 0:
		if err := ix.index.DeleteByPath(path); err != nil {
			return nil, fmt.Errorf("failed to delete stale chunks for %s: %w", path, err)
		}
		if err := ix.insertChunks(path, chunks); err != nil {
			return nil, err
		}
	case len(added) > 0:
		if err := ix.insertChunks(path, added); err != nil {
			return nil, err
		}
	}

	ix.states[path] = &types.FileState{
		Path:         path,
		ContentHash:  newHash,
		Chunks:       chunks,
		LastModified: time.Now(),
	}
	metrics.FilesIndexed.WithLabelValues("incremental").Inc()
	ix.logger.Debug().
		Str("path", path).
		Int("added", len(added)).
		Int("removed", removed).
		Msg("incremental index")
	return chunks, nil
}

// RemoveFile drops a path's chunks from the vector index and forgets its
// state.
func (ix *Indexer) RemoveFile(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.states[path]; !ok {
		return fmt.Errorf("%w: %s is not indexed", types.ErrNotFound, path)
	}
	if err := ix.index.DeleteByPath(path); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", path, err)
	}
	delete(ix.states, path)
	ix.logger.Debug().Str("path", path).Msg("file removed from index")
	return nil
}

// State returns the tracked file state for path, if any.
func (ix *Indexer) State(path string) (*types.FileState, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	st, ok := ix.states[path]
	return st, ok
}

// TrackedFiles returns the number of files under management.
func (ix *Indexer) TrackedFiles() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.states)
}

func (ix *Indexer) insertChunks(path string, chunks []types.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	inputs := make([]vectorindex.ChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = vectorindex.ChunkInput{
			Text: c.Content,
			Meta: map[string]string{
				"file_path":    path,
				"start_line":   strconv.Itoa(c.StartLine),
				"end_line":     strconv.Itoa(c.EndLine),
				"content_hash": hashString(c.Content),
				"chunk_type":   string(c.Type),
				"language":     c.Language,
				"name":         c.Name,
			},
		}
	}
	if _, err := ix.index.Insert(inputs); err != nil {
		return fmt.Errorf("failed to upsert chunks for %s: %w", path, err)
	}
	if stats, err := ix.index.Stats(); err == nil {
		metrics.IndexedVectors.Set(float64(stats.TotalVectors))
	}
	return nil
}

func chunkKey(c types.CodeChunk) string {
	return fmt.Sprintf("%d:%d:%s", c.StartLine, c.EndLine, hashString(c.Content))
}

func chunkKeySet(chunks []types.CodeChunk) map[string]struct{} {
	set := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		set[chunkKey(c)] = struct{}{}
	}
	return set
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
