// Package kvtest holds a conformance suite shared by every kv.Store backend.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/louisbranch/townsquare/internal/platform/kv"
)

// Run exercises the kv.Store contract against stores produced by open.
// Each subtest gets a fresh store, closed on cleanup.
func Run(t *testing.T, open func(t *testing.T) kv.Store) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s kv.Store)
	}{
		{"PutGetDelete", testPutGetDelete},
		{"ForEachOrdered", testForEachOrdered},
		{"UpdateSeesOwnWrites", testUpdateSeesOwnWrites},
		{"RollbackOnError", testRollbackOnError},
		{"ViewIsReadOnly", testViewIsReadOnly},
		{"UnknownBucket", testUnknownBucket},
		{"CanceledContext", testCanceledContext},
		{"ConcurrentUpdatesSerialize", testConcurrentUpdatesSerialize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			if err := s.EnsureBuckets(context.Background(), "alpha", "beta"); err != nil {
				t.Fatalf("ensure buckets: %v", err)
			}
			tc.fn(t, s)
		})
	}
}

func put(t *testing.T, s kv.Store, bucket, key, value string) {
	t.Helper()
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket(bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		t.Fatalf("put %s/%s: %v", bucket, key, err)
	}
}

func get(t *testing.T, s kv.Store, bucket, key string) (string, error) {
	t.Helper()
	var out string
	err := s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket(bucket)
		if err != nil {
			return err
		}
		value, err := b.Get([]byte(key))
		if err != nil {
			return err
		}
		out = string(value)
		return nil
	})
	return out, err
}

func testPutGetDelete(t *testing.T, s kv.Store) {
	put(t, s, "alpha", "k1", "v1")
	got, err := get(t, s, "alpha", "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v1" {
		t.Fatalf("get = %q, want v1", got)
	}
	if _, err := get(t, s, "beta", "k1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected buckets to be isolated, got %v", err)
	}

	put(t, s, "alpha", "k1", "v2")
	if got, _ := get(t, s, "alpha", "k1"); got != "v2" {
		t.Fatalf("overwrite = %q, want v2", got)
	}

	err = s.Update(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		if err := b.Delete([]byte("k1")); err != nil {
			return err
		}
		return b.Delete([]byte("never-written"))
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := get(t, s, "alpha", "k1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	err = s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		ok, err := b.Has([]byte("k1"))
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("expected k1 to be absent")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("has: %v", err)
	}
}

func testForEachOrdered(t *testing.T, s kv.Store) {
	for _, key := range []string{"c", "a", "b\x00z", "b"} {
		put(t, s, "alpha", key, "v-"+key)
	}
	var keys []string
	err := s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		return b.ForEach(func(key, value []byte) error {
			if string(value) != "v-"+string(key) {
				return fmt.Errorf("value for %q = %q", key, value)
			}
			keys = append(keys, string(key))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("for each: %v", err)
	}
	want := []string{"a", "b", "b\x00z", "c"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Fatalf("keys = %q, want %q", keys, want)
	}

	stop := errors.New("stop")
	visited := 0
	err = s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		return b.ForEach(func([]byte, []byte) error {
			visited++
			return stop
		})
	})
	if !errors.Is(err, stop) || visited != 1 {
		t.Fatalf("expected early stop after one entry, got err=%v visited=%d", err, visited)
	}
}

func testUpdateSeesOwnWrites(t *testing.T, s kv.Store) {
	put(t, s, "alpha", "gone", "x")
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		if err := b.Put([]byte("fresh"), []byte("1")); err != nil {
			return err
		}
		if err := b.Delete([]byte("gone")); err != nil {
			return err
		}
		value, err := b.Get([]byte("fresh"))
		if err != nil {
			return fmt.Errorf("read own write: %w", err)
		}
		if string(value) != "1" {
			return fmt.Errorf("own write = %q", value)
		}
		if ok, _ := b.Has([]byte("gone")); ok {
			return fmt.Errorf("deleted key still visible")
		}
		var keys []string
		if err := b.ForEach(func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		}); err != nil {
			return err
		}
		if fmt.Sprint(keys) != "[fresh]" {
			return fmt.Errorf("for each in tx = %q", keys)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func testRollbackOnError(t *testing.T, s kv.Store) {
	put(t, s, "alpha", "keep", "original")
	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, "alpha", "beta")
		if err != nil {
			return err
		}
		if err := buckets[0].Put([]byte("keep"), []byte("changed")); err != nil {
			return err
		}
		if err := buckets[1].Put([]byte("new"), []byte("value")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got, _ := get(t, s, "alpha", "keep"); got != "original" {
		t.Fatalf("keep = %q, want original", got)
	}
	if _, err := get(t, s, "beta", "new"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected rolled back write to be absent, got %v", err)
	}
}

func testViewIsReadOnly(t *testing.T, s kv.Store) {
	err := s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		return b.Put([]byte("k"), []byte("v"))
	})
	if !errors.Is(err, kv.ErrTxNotWritable) {
		t.Fatalf("expected ErrTxNotWritable, got %v", err)
	}
}

func testUnknownBucket(t *testing.T, s kv.Store) {
	err := s.View(context.Background(), func(tx kv.Tx) error {
		_, err := tx.Bucket("missing")
		return err
	})
	if !errors.Is(err, kv.ErrBucketNotFound) {
		t.Fatalf("expected ErrBucketNotFound, got %v", err)
	}
}

func testCanceledContext(t *testing.T, s kv.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Update(ctx, func(kv.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("expected callback to be skipped")
	}
}

func testConcurrentUpdatesSerialize(t *testing.T, s kv.Store) {
	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := s.Update(context.Background(), func(tx kv.Tx) error {
					b, err := tx.Bucket("alpha")
					if err != nil {
						return err
					}
					var n uint64
					value, err := b.Get([]byte("counter"))
					switch {
					case errors.Is(err, kv.ErrNotFound):
					case err != nil:
						return err
					default:
						if n, err = kv.ParseUint64Key(value); err != nil {
							return err
						}
					}
					return b.Put([]byte("counter"), kv.Uint64Key(n+1))
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	var got uint64
	err := s.View(context.Background(), func(tx kv.Tx) error {
		b, err := tx.Bucket("alpha")
		if err != nil {
			return err
		}
		value, err := b.Get([]byte("counter"))
		if err != nil {
			return err
		}
		got, err = kv.ParseUint64Key(value)
		return err
	})
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if got != workers*perWorker {
		t.Fatalf("counter = %d, want %d", got, workers*perWorker)
	}
}
