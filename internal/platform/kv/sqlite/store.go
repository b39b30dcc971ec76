// Package sqlite provides a SQLite-backed kv.Store.
//
// Buckets are rows in kv_buckets and entries live in a single kv_entries table
// keyed by (bucket, key). SQLite orders BLOB keys with memcmp, which matches
// the byte order the kv contract promises for ForEach.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/kv/sqlite/migrations"
	"github.com/louisbranch/townsquare/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/townsquare/internal/platform/timeouts"
	_ "modernc.org/sqlite"
)

// Store persists buckets in SQLite. Writers are serialized in-process so
// Update transactions never interleave.
type Store struct {
	sqlDB   *sql.DB
	writeMu sync.Mutex
}

// Open opens a SQLite key-value store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.StorageOpen)
	defer cancel()
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// EnsureBuckets registers the named buckets when they are missing.
func (s *Store) EnsureBuckets(ctx context.Context, names ...string) error {
	return s.update(ctx, names, func(kv.Tx) error { return nil })
}

// View runs fn in a SQL transaction that rejects bucket writes and is always rolled back.
func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&tx{ctx: ctx, sqlTx: sqlTx})
}

// Update runs fn in a write transaction and commits only when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	return s.update(ctx, nil, fn)
}

func (s *Store) update(ctx context.Context, ensure []string, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}
	for _, name := range ensure {
		if _, err := sqlTx.ExecContext(ctx, `INSERT OR IGNORE INTO kv_buckets (name) VALUES (?)`, name); err != nil {
			_ = sqlTx.Rollback()
			return fmt.Errorf("create %s bucket: %w", name, err)
		}
	}
	if err := fn(&tx{ctx: ctx, sqlTx: sqlTx, writable: true}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit write transaction: %w", err)
	}
	return nil
}

type tx struct {
	ctx      context.Context
	sqlTx    *sql.Tx
	writable bool
}

func (t *tx) Bucket(name string) (kv.Bucket, error) {
	var found int
	err := t.sqlTx.QueryRowContext(t.ctx, `SELECT 1 FROM kv_buckets WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, kv.ErrBucketNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s bucket: %w", name, err)
	}
	return &bucket{tx: t, name: name}, nil
}

type bucket struct {
	tx   *tx
	name string
}

func (b *bucket) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.tx.sqlTx.QueryRowContext(
		b.tx.ctx,
		`SELECT value FROM kv_entries WHERE bucket = ? AND key = ?`,
		b.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s entry: %w", b.name, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (b *bucket) Has(key []byte) (bool, error) {
	var found int
	err := b.tx.sqlTx.QueryRowContext(
		b.tx.ctx,
		`SELECT 1 FROM kv_entries WHERE bucket = ? AND key = ?`,
		b.name, key,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s entry: %w", b.name, err)
	}
	return true, nil
}

func (b *bucket) Put(key []byte, value []byte) error {
	if !b.tx.writable {
		return kv.ErrTxNotWritable
	}
	if value == nil {
		value = []byte{}
	}
	_, err := b.tx.sqlTx.ExecContext(
		b.tx.ctx,
		`INSERT INTO kv_entries (bucket, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value`,
		b.name, key, value,
	)
	if err != nil {
		return fmt.Errorf("put %s entry: %w", b.name, err)
	}
	return nil
}

func (b *bucket) Delete(key []byte) error {
	if !b.tx.writable {
		return kv.ErrTxNotWritable
	}
	if _, err := b.tx.sqlTx.ExecContext(
		b.tx.ctx,
		`DELETE FROM kv_entries WHERE bucket = ? AND key = ?`,
		b.name, key,
	); err != nil {
		return fmt.Errorf("delete %s entry: %w", b.name, err)
	}
	return nil
}

// ForEach loads the bucket before invoking fn so callbacks may issue further
// statements on the same transaction.
func (b *bucket) ForEach(fn func(key []byte, value []byte) error) error {
	rows, err := b.tx.sqlTx.QueryContext(
		b.tx.ctx,
		`SELECT key, value FROM kv_entries WHERE bucket = ? ORDER BY key`,
		b.name,
	)
	if err != nil {
		return fmt.Errorf("scan %s entries: %w", b.name, err)
	}
	type entry struct{ key, value []byte }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan %s entry: %w", b.name, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate %s entries: %w", b.name, err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close %s rows: %w", b.name, err)
	}
	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}
