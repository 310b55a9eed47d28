package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex() *Memory {
	return NewMemory(NewHashEmbedder(128))
}

func chunk(path, startLine, hash, text string) ChunkInput {
	return ChunkInput{
		Text: text,
		Meta: map[string]string{
			"file_path":    path,
			"start_line":   startLine,
			"end_line":     startLine,
			"content_hash": hash,
		},
	}
}

func TestInsertAndStats(t *testing.T) {
	idx := testIndex()

	res, err := idx.Insert([]ChunkInput{
		chunk("a.go", "1", "h1", "func ReadFile()"),
		chunk("a.go", "5", "h2", "func WriteFile()"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunksProcessed)
	assert.Equal(t, 2, res.ChunksIndexed)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, 128, stats.Dimension)
	assert.Equal(t, "memory", stats.Backend)
}

func TestUpsertStableID(t *testing.T) {
	idx := testIndex()

	_, err := idx.Insert([]ChunkInput{chunk("a.go", "1", "h1", "original text")})
	require.NoError(t, err)
	_, err = idx.Insert([]ChunkInput{chunk("a.go", "1", "h1", "replaced text")})
	require.NoError(t, err)

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)
}

func TestSearchOrdering(t *testing.T) {
	idx := testIndex()

	_, err := idx.Insert([]ChunkInput{
		chunk("a.go", "1", "h1", "parse json configuration file"),
		chunk("b.go", "1", "h2", "open tcp network connection"),
		chunk("c.go", "1", "h3", "json encode response payload"),
	})
	require.NoError(t, err)

	hits, err := idx.Search("json parsing", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score, "scores must not increase")
		assert.Equal(t, i+1, hits[i].Rank)
	}
	assert.Contains(t, hits[0].Text, "json")
}

func TestDeleteByPath(t *testing.T) {
	idx := testIndex()

	_, err := idx.Insert([]ChunkInput{
		chunk("keep.go", "1", "h1", "alpha"),
		chunk("drop.go", "1", "h2", "beta"),
		chunk("drop.go", "9", "h3", "gamma"),
	})
	require.NoError(t, err)

	require.NoError(t, idx.DeleteByPath("drop.go"))

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)
}

func TestClear(t *testing.T) {
	idx := testIndex()
	_, err := idx.Insert([]ChunkInput{chunk("a.go", "1", "h1", "text")})
	require.NoError(t, err)

	require.NoError(t, idx.Clear())
	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalVectors)
}

func TestEmbedderDeterminism(t *testing.T) {
	e := NewHashEmbedder(64)
	v1, err := e.Encode([]string{"the same input"})
	require.NoError(t, err)
	v2, err := e.Encode([]string{"the same input"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1[0], 64)
}
