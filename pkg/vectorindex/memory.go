package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// chunkID derives the stable upsert id for a chunk.
func chunkID(meta map[string]string) string {
	if id, ok := meta["chunk_id"]; ok && id != "" {
		return id
	}
	return fmt.Sprintf("%s:%s-%s:%s",
		meta["file_path"], meta["start_line"], meta["end_line"], meta["content_hash"])
}

type entry struct {
	text   string
	vector []float32
	meta   map[string]string
}

// Memory is an in-process cosine-similarity KNN index. It is the default
// Index implementation and the reference for backend parity.
type Memory struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  map[string]*entry
}

// NewMemory creates a Memory index over the given embedder.
func NewMemory(embedder Embedder) *Memory {
	return &Memory{
		embedder: embedder,
		entries:  make(map[string]*entry),
	}
}

// Insert embeds and upserts chunks keyed by their stable chunk id.
func (m *Memory) Insert(chunks []ChunkInput) (*InsertResult, error) {
	result := &InsertResult{ChunksProcessed: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := m.embedder.Encode(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range chunks {
		m.entries[chunkID(c.Meta)] = &entry{
			text:   c.Text,
			vector: vectors[i],
			meta:   c.Meta,
		}
		result.ChunksIndexed++
	}
	return result, nil
}

// Search embeds the query and returns the topK entries by cosine
// similarity, scores non-increasing.
func (m *Memory) Search(query string, topK int) ([]SearchHit, error) {
	vectors, err := m.embedder.Encode([]string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv := vectors[0]

	m.mu.RLock()
	hits := make([]SearchHit, 0, len(m.entries))
	for _, e := range m.entries {
		hits = append(hits, SearchHit{
			Text:  e.text,
			Score: cosine(qv, e.vector),
			Meta:  e.meta,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// DeleteByPath removes every entry whose file_path meta equals path.
func (m *Memory) DeleteByPath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.meta["file_path"] == path {
			delete(m.entries, id)
		}
	}
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
	return nil
}

// Stats reports the index size and dimension.
func (m *Memory) Stats() (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		TotalVectors: len(m.entries),
		Dimension:    m.embedder.Dimension(),
		Backend:      "memory",
	}, nil
}

// Entries returns a snapshot of ids currently indexed. Used by parity
// checks and tests.
func (m *Memory) Entries() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for id, e := range m.entries {
		out[id] = e.text
	}
	return out
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
