// Package kv defines the bucketed key-value contract behind every durable store.
//
// A Store exposes read transactions (View) and write transactions (Update).
// Update calls are serialized and atomic: when the callback returns an error,
// none of its bucket writes become visible. View callbacks never observe a
// partially applied Update. Backends live in subpackages (bbolt, sqlite, memory).
package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a key is missing from a bucket.
	ErrNotFound = errors.New("key not found")
	// ErrBucketNotFound indicates a bucket was never created.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrTxNotWritable indicates a write inside a View transaction.
	ErrTxNotWritable = errors.New("transaction is read-only")
	// ErrClosed indicates the store was already closed.
	ErrClosed = errors.New("store is closed")
)

// Bucket is one ordered key space inside a transaction. Returned slices are
// only valid until the transaction ends.
type Bucket interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// ForEach visits entries in ascending byte order of their keys.
	ForEach(fn func(key []byte, value []byte) error) error
}

// Tx resolves buckets inside one transaction.
type Tx interface {
	Bucket(name string) (Bucket, error)
}

// Store is a durable bucketed key-value database.
type Store interface {
	// EnsureBuckets creates the named buckets when they are missing.
	EnsureBuckets(ctx context.Context, names ...string) error
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Buckets resolves several buckets at once, in order.
func Buckets(tx Tx, names ...string) ([]Bucket, error) {
	buckets := make([]Bucket, 0, len(names))
	for _, name := range names {
		bucket, err := tx.Bucket(name)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// GetJSON decodes the JSON value stored under key.
func GetJSON[T any](bucket Bucket, key []byte) (T, error) {
	payload, err := bucket.Get(key)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := DecodeJSON[T](payload)
	if err != nil {
		return out, fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return out, nil
}

// DecodeJSON decodes one stored value, typically inside ForEach.
func DecodeJSON[T any](payload []byte) (T, error) {
	var out T
	err := json.Unmarshal(payload, &out)
	return out, err
}

// PutJSON encodes value as JSON and stores it under key.
func PutJSON(bucket Bucket, key []byte, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return bucket.Put(key, payload)
}

// Uint64Key encodes v as an 8-byte big-endian key so numeric order matches byte order.
func Uint64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}

// ParseUint64Key decodes a key written by Uint64Key.
func ParseUint64Key(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("uint64 key must be 8 bytes, got %d", len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}

// CloneBytes returns a copy of b that outlives the transaction.
func CloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
