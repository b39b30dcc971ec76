// Package bbolt provides a BoltDB-backed kv.Store.
package bbolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/timeouts"
	"go.etcd.io/bbolt"
)

// Store adapts a BoltDB file to kv.Store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: timeouts.StorageOpen})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureBuckets creates the named buckets when they are missing.
func (s *Store) EnsureBuckets(ctx context.Context, names ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// View runs fn in a BoltDB read transaction.
func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(tx{btx: btx})
	})
}

// Update runs fn in a BoltDB write transaction. BoltDB allows a single writer
// at a time and rolls back when fn returns an error.
func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(tx{btx: btx})
	})
}

type tx struct {
	btx *bbolt.Tx
}

func (t tx) Bucket(name string) (kv.Bucket, error) {
	b := t.btx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%s: %w", name, kv.ErrBucketNotFound)
	}
	return bucket{b: b, writable: t.btx.Writable()}, nil
}

type bucket struct {
	b        *bbolt.Bucket
	writable bool
}

func (b bucket) Get(key []byte) ([]byte, error) {
	value := b.b.Get(key)
	if value == nil {
		return nil, kv.ErrNotFound
	}
	return value, nil
}

func (b bucket) Has(key []byte) (bool, error) {
	return b.b.Get(key) != nil, nil
}

func (b bucket) Put(key []byte, value []byte) error {
	if !b.writable {
		return kv.ErrTxNotWritable
	}
	if value == nil {
		value = []byte{}
	}
	return b.b.Put(key, value)
}

func (b bucket) Delete(key []byte) error {
	if !b.writable {
		return kv.ErrTxNotWritable
	}
	return b.b.Delete(key)
}

func (b bucket) ForEach(fn func(key []byte, value []byte) error) error {
	return b.b.ForEach(fn)
}
