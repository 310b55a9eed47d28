package vectorindex

// ChunkInput is one chunk to embed and upsert.
type ChunkInput struct {
	Text string            `json:"text"`
	Meta map[string]string `json:"meta"`
}

// SearchHit is one KNN result. Score decreases (or stays equal) with rank.
type SearchHit struct {
	Text  string            `json:"text"`
	Score float32           `json:"score"`
	Meta  map[string]string `json:"meta"`
	Rank  int               `json:"rank"`
}

// InsertResult reports how many chunks were handled by an insert.
type InsertResult struct {
	ChunksProcessed int `json:"chunks_processed"`
	ChunksIndexed   int `json:"chunks_indexed"`
}

// Stats describes the backing index.
type Stats struct {
	TotalVectors int    `json:"total_vectors"`
	Dimension    int    `json:"dimension"`
	Backend      string `json:"backend"`
}

// Index is the KNN contract the engine depends on. Any vector store that
// satisfies it can back the indexer.
type Index interface {
	// Insert embeds each chunk's text and upserts it under a stable id
	// derived from meta (chunk_id, or file_path/start_line/end_line/
	// content_hash).
	Insert(chunks []ChunkInput) (*InsertResult, error)

	// Search returns the topK nearest chunks for the query.
	Search(query string, topK int) ([]SearchHit, error)

	// DeleteByPath removes all chunks whose meta file_path equals path.
	DeleteByPath(path string) error

	Clear() error
	Stats() (*Stats, error)
}

// Embedder converts texts to fixed-dimension float32 vectors. The same
// input must produce numerically identical output.
type Embedder interface {
	Encode(texts []string) ([][]float32, error)
	Dimension() int
}
