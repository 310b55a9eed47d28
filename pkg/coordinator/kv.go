package coordinator

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/contextforge/contextforge/pkg/types"
)

// KV is the key-value backend contract. Hash operations store agent and
// task records; sorted-set operations keep the priority index. ZRange
// returns members ordered by score descending, FIFO within equal scores.
type KV interface {
	HSet(bucket, field string, value []byte) error
	HGet(bucket, field string) ([]byte, error)
	HDel(bucket, field string) error
	HGetAll(bucket string) (map[string][]byte, error)

	ZAdd(set, member string, score float64) error
	ZRange(set string) ([]string, error)
	ZRem(set, member string) error

	Close() error
}

type zsetEntry struct {
	member string
	score  float64
	seq    uint64
}

// MemoryKV is the in-memory KV backend.
type MemoryKV struct {
	mu      sync.RWMutex
	hashes  map[string]map[string][]byte
	zsets   map[string][]zsetEntry
	nextSeq uint64
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		hashes: make(map[string]map[string][]byte),
		zsets:  make(map[string][]zsetEntry),
	}
}

func (m *MemoryKV) HSet(bucket, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[bucket]
	if !ok {
		h = make(map[string][]byte)
		m.hashes[bucket] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) HGet(bucket, field string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.hashes[bucket][field]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, fmt.Errorf("%w: %s/%s", types.ErrNotFound, bucket, field)
}

func (m *MemoryKV) HDel(bucket, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes[bucket], field)
	return nil
}

func (m *MemoryKV) HGetAll(bucket string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.hashes[bucket]))
	for k, v := range m.hashes[bucket] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemoryKV) ZAdd(set, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.zsets[set]
	for i := range entries {
		if entries[i].member == member {
			entries[i].score = score
			return nil
		}
	}
	m.nextSeq++
	m.zsets[set] = append(entries, zsetEntry{member: member, score: score, seq: m.nextSeq})
	return nil
}

func (m *MemoryKV) ZRange(set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := append([]zsetEntry(nil), m.zsets[set]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.member
	}
	return out, nil
}

func (m *MemoryKV) ZRem(set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.zsets[set]
	kept := entries[:0]
	for _, e := range entries {
		if e.member != member {
			kept = append(kept, e)
		}
	}
	m.zsets[set] = kept
	return nil
}

func (m *MemoryKV) Close() error { return nil }

// BoltKV is the external KV backend, persisting to a bbolt file. Sorted
// sets encode (inverted score, sequence) into the key so a forward cursor
// walk yields score-descending FIFO order.
type BoltKV struct {
	db *bolt.DB
}

const zsetPrefix = "zset:"

// NewBoltKV opens (creating if needed) a bbolt-backed KV at path.
func NewBoltKV(path string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store: %w", err)
	}
	return &BoltKV{db: db}, nil
}

func (b *BoltKV) HSet(bucket, field string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return bk.Put([]byte(field), value)
	})
}

func (b *BoltKV) HGet(bucket, field string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return fmt.Errorf("%w: %s/%s", types.ErrNotFound, bucket, field)
		}
		v := bk.Get([]byte(field))
		if v == nil {
			return fmt.Errorf("%w: %s/%s", types.ErrNotFound, bucket, field)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (b *BoltKV) HDel(bucket, field string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		return bk.Delete([]byte(field))
	})
}

func (b *BoltKV) HGetAll(bucket string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			out[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})
	return out, err
}

// zsetKey encodes an order-preserving key: higher scores sort first,
// lower sequence numbers first within a score. Scores must be
// non-negative for the bit inversion to preserve order.
func zsetKey(score float64, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], math.MaxUint64-math.Float64bits(score))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func (b *BoltKV) ZAdd(set, member string, score float64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists([]byte(zsetPrefix + set))
		if err != nil {
			return err
		}
		// Update in place if the member already exists.
		c := bk.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(v) == member {
				if err := bk.Delete(k); err != nil {
					return err
				}
				break
			}
		}
		seq, err := bk.NextSequence()
		if err != nil {
			return err
		}
		return bk.Put(zsetKey(score, seq), []byte(member))
	})
}

func (b *BoltKV) ZRange(set string) ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(zsetPrefix + set))
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(_, v []byte) error {
			out = append(out, string(v))
			return nil
		})
	})
	return out, err
}

func (b *BoltKV) ZRem(set, member string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(zsetPrefix + set))
		if bk == nil {
			return nil
		}
		c := bk.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(v) == member {
				return bk.Delete(k)
			}
		}
		return nil
	})
}

func (b *BoltKV) Close() error { return b.db.Close() }
