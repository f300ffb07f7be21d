// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapreduce

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pdiddy/pubrun/internal/alg"
	"github.com/pdiddy/pubrun/internal/codec"
	"github.com/pdiddy/pubrun/internal/fsutil"
	"github.com/pdiddy/pubrun/pkg/types"
)

// Store holds the merged partition outputs during a reduction.
type Store interface {
	alg.MergedData

	// Append extends the value list of key.
	Append(key string, values []any) error

	// Close releases the store and any files it created.
	Close() error
}

// NewStore returns the store kind selects. Bolt stores keep their database
// in a temporary file under tempDir.
func NewStore(kind types.ReduceStore, tempDir string) (Store, error) {
	switch kind {
	case types.ReduceStoreMemory, "":
		return NewMemoryStore(), nil
	case types.ReduceStoreBolt:
		path, err := fsutil.TempFile(tempDir, "pubRunReduce*.db")
		if err != nil {
			return nil, err
		}
		return NewBoltStore(path)
	}
	return nil, fmt.Errorf("%w: unknown reduce store %q", alg.ErrConfig, kind)
}

// MemoryStore keeps merged values in memory.
type MemoryStore struct {
	data map[string][]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]any, 1000)}
}

func (s *MemoryStore) Append(key string, values []any) error {
	s.data[key] = append(s.data[key], values...)
	return nil
}

// Keys returns the keys in sorted order.
func (s *MemoryStore) Keys() ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Values(key string) ([]any, error) {
	return s.data[key], nil
}

func (s *MemoryStore) Len() int { return len(s.data) }

func (s *MemoryStore) Close() error {
	s.data = nil
	return nil
}

var mergedBucket = []byte("merged")

// keyPrefix is prepended to every stored key; bbolt rejects empty keys and
// algorithms may emit "". It does not change the byte order of keys.
const keyPrefix = 'k'

func boltKey(key string) []byte {
	b := make([]byte, 0, len(key)+1)
	b = append(b, keyPrefix)
	return append(b, key...)
}

// BoltStore keeps merged values in a bbolt database, for reductions whose
// merged data does not fit in memory. Values are stored msgpack-encoded.
type BoltStore struct {
	db *bbolt.DB
	n  int
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 30 * time.Second, NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("create bolt store: %w", err)
	}
	s := &BoltStore{db: db}
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(mergedBucket)
		if err != nil {
			return err
		}
		s.n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt store: %w", err)
	}
	return s, nil
}

func (s *BoltStore) Append(key string, values []any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(mergedBucket)
		vals, err := boltGet(b, key)
		if err != nil {
			return err
		}
		if vals == nil {
			s.n++
		}
		data, err := codec.Marshal(append(vals, values...))
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		return b.Put(boltKey(key), data)
	})
}

// Keys returns the keys in byte order.
func (s *BoltStore) Keys() ([]string, error) {
	keys := make([]string, 0, s.n)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(mergedBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k[1:]))
		}
		return nil
	})
	return keys, err
}

func (s *BoltStore) Values(key string) ([]any, error) {
	var vals []any
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		vals, err = boltGet(tx.Bucket(mergedBucket), key)
		return err
	})
	return vals, err
}

func (s *BoltStore) Len() int { return s.n }

// Close closes the database and removes its file.
func (s *BoltStore) Close() error {
	path := s.db.Path()
	if err := s.db.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func boltGet(b *bbolt.Bucket, key string) ([]any, error) {
	data := b.Get(boltKey(key))
	if len(data) == 0 {
		return nil, nil
	}
	var vals []any
	if err := codec.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	return vals, nil
}
