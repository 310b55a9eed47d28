package coordinator

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/types"
)

// backends returns both KV implementations so every contract test runs
// against each.
func backends(t *testing.T) map[string]KV {
	t.Helper()
	boltKV, err := NewBoltKV(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { boltKV.Close() })
	return map[string]KV{
		"memory": NewMemoryKV(),
		"bolt":   boltKV,
	}
}

func TestKVHashOps(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.HSet("agents", "a1", []byte("one")))
			require.NoError(t, kv.HSet("agents", "a2", []byte("two")))

			v, err := kv.HGet("agents", "a1")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), v)

			_, err = kv.HGet("agents", "missing")
			assert.True(t, errors.Is(err, types.ErrNotFound))
			_, err = kv.HGet("nosuchbucket", "a1")
			assert.True(t, errors.Is(err, types.ErrNotFound))

			all, err := kv.HGetAll("agents")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, kv.HDel("agents", "a1"))
			_, err = kv.HGet("agents", "a1")
			assert.True(t, errors.Is(err, types.ErrNotFound))

			// Overwrite keeps a single record.
			require.NoError(t, kv.HSet("agents", "a2", []byte("TWO")))
			v, err = kv.HGet("agents", "a2")
			require.NoError(t, err)
			assert.Equal(t, []byte("TWO"), v)
		})
	}
}

func TestKVSortedSetOrdering(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Insert out of order; expect score desc, FIFO within score.
			require.NoError(t, kv.ZAdd("q", "low-1", 0))
			require.NoError(t, kv.ZAdd("q", "high-1", 2))
			require.NoError(t, kv.ZAdd("q", "high-2", 2))
			require.NoError(t, kv.ZAdd("q", "normal-1", 1))

			members, err := kv.ZRange("q")
			require.NoError(t, err)
			assert.Equal(t, []string{"high-1", "high-2", "normal-1", "low-1"}, members)

			require.NoError(t, kv.ZRem("q", "high-1"))
			members, err = kv.ZRange("q")
			require.NoError(t, err)
			assert.Equal(t, []string{"high-2", "normal-1", "low-1"}, members)

			// Removing a missing member is a no-op.
			require.NoError(t, kv.ZRem("q", "ghost"))
			require.NoError(t, kv.ZRem("empty", "x"))

			members, err = kv.ZRange("empty")
			require.NoError(t, err)
			assert.Empty(t, members)
		})
	}
}

func TestOpenBackendDegradesToMemory(t *testing.T) {
	// A directory path cannot be opened as a bolt file.
	kv := OpenBackend(t.TempDir())
	defer kv.Close()
	_, ok := kv.(*MemoryKV)
	assert.True(t, ok)

	kv = OpenBackend("")
	_, ok = kv.(*MemoryKV)
	assert.True(t, ok)

	path := filepath.Join(t.TempDir(), "kv.db")
	kv = OpenBackend(path)
	defer kv.Close()
	_, ok = kv.(*BoltKV)
	assert.True(t, ok)
}
