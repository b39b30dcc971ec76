// Package memory provides an in-process kv.Store for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/louisbranch/townsquare/internal/platform/kv"
)

// Store keeps buckets in maps guarded by a single RWMutex. Update stages its
// writes and applies them only when the callback succeeds.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	closed  bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{buckets: make(map[string]map[string][]byte)}
}

// EnsureBuckets creates the named buckets when they are missing.
func (s *Store) EnsureBuckets(ctx context.Context, names ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	for _, name := range names {
		if _, ok := s.buckets[name]; !ok {
			s.buckets[name] = make(map[string][]byte)
		}
	}
	return nil
}

// View runs fn against a read-only snapshot of the store.
func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrClosed
	}
	return fn(&tx{store: s})
}

// Update runs fn in a serialized write transaction.
func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	t := &tx{store: s, writable: true, staged: make(map[string]map[string]*[]byte)}
	if err := fn(t); err != nil {
		return err
	}
	for name, writes := range t.staged {
		bucket := s.buckets[name]
		for key, value := range writes {
			if value == nil {
				delete(bucket, key)
				continue
			}
			bucket[key] = *value
		}
	}
	return nil
}

// Close marks the store closed; later calls fail with kv.ErrClosed.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	store    *Store
	writable bool
	// staged maps bucket -> key -> value; a nil value marks a delete.
	staged map[string]map[string]*[]byte
}

func (t *tx) Bucket(name string) (kv.Bucket, error) {
	if _, ok := t.store.buckets[name]; !ok {
		return nil, kv.ErrBucketNotFound
	}
	return &bucket{tx: t, name: name}, nil
}

type bucket struct {
	tx   *tx
	name string
}

func (b *bucket) lookup(key string) ([]byte, bool) {
	if writes, ok := b.tx.staged[b.name]; ok {
		if value, ok := writes[key]; ok {
			if value == nil {
				return nil, false
			}
			return *value, true
		}
	}
	value, ok := b.tx.store.buckets[b.name][key]
	return value, ok
}

func (b *bucket) Get(key []byte) ([]byte, error) {
	value, ok := b.lookup(string(key))
	if !ok {
		return nil, kv.ErrNotFound
	}
	return kv.CloneBytes(value), nil
}

func (b *bucket) Has(key []byte) (bool, error) {
	_, ok := b.lookup(string(key))
	return ok, nil
}

func (b *bucket) Put(key []byte, value []byte) error {
	if !b.tx.writable {
		return kv.ErrTxNotWritable
	}
	stored := kv.CloneBytes(value)
	if stored == nil {
		stored = []byte{}
	}
	b.stage(string(key), &stored)
	return nil
}

func (b *bucket) Delete(key []byte) error {
	if !b.tx.writable {
		return kv.ErrTxNotWritable
	}
	b.stage(string(key), nil)
	return nil
}

func (b *bucket) stage(key string, value *[]byte) {
	writes, ok := b.tx.staged[b.name]
	if !ok {
		writes = make(map[string]*[]byte)
		b.tx.staged[b.name] = writes
	}
	writes[key] = value
}

func (b *bucket) ForEach(fn func(key []byte, value []byte) error) error {
	seen := make(map[string]struct{})
	keys := make([]string, 0, len(b.tx.store.buckets[b.name]))
	for key := range b.tx.store.buckets[b.name] {
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for key := range b.tx.staged[b.name] {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, ok := b.lookup(key)
		if !ok {
			continue
		}
		if err := fn([]byte(key), kv.CloneBytes(value)); err != nil {
			return err
		}
	}
	return nil
}
