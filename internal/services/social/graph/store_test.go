package graph

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/kv/memory"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
)

func newTestStore(t *testing.T) (*Store, kv.Store) {
	t.Helper()
	db := memory.New()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, err := New(context.Background(), db, func() time.Time { return fixed })
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, db
}

func mustFollow(t *testing.T, s *Store, follower, followee identity.Identity) {
	t.Helper()
	if _, err := s.Follow(context.Background(), follower, followee); err != nil {
		t.Fatalf("follow %s -> %s: %v", follower, followee, err)
	}
}

func TestFollowScenario(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	edge, err := s.Follow(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if edge.Follower != "alice" || edge.Following != "bob" || edge.CreatedAt.IsZero() {
		t.Fatalf("unexpected edge %+v", edge)
	}
	if _, err := s.Follow(ctx, "alice", "bob"); !apperrors.HasCode(err, apperrors.CodeAlreadyFollowing) {
		t.Fatalf("expected ALREADY_FOLLOWING, got %v", err)
	}

	stats, err := s.SocialStats(ctx, "bob")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.FollowersCount != 1 || stats.FollowingCount != 0 {
		t.Fatalf("bob stats = %+v", stats)
	}

	if err := s.Unfollow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	mutual, err := s.MutualFollowers(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("mutual: %v", err)
	}
	if len(mutual) != 0 {
		t.Fatalf("expected no mutual followers, got %v", mutual)
	}
	if err := s.Verify(ctx); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestFollowErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name               string
		follower, followee identity.Identity
		code               apperrors.Code
	}{
		{"anonymous follower", identity.Anonymous, "bob", apperrors.CodeUnauthenticated},
		{"anonymous followee", "alice", identity.Anonymous, apperrors.CodeNotFound},
		{"self", "alice", "alice", apperrors.CodeSelfFollow},
		{"separator in followee", "alice", "b\x00ob", apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Follow(ctx, tt.follower, tt.followee); !apperrors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	if err := s.Unfollow(ctx, identity.Anonymous, "bob"); !apperrors.HasCode(err, apperrors.CodeUnauthenticated) {
		t.Fatalf("expected UNAUTHENTICATED, got %v", err)
	}
	if err := s.Unfollow(ctx, "alice", "bob"); !apperrors.HasCode(err, apperrors.CodeNotFollowing) {
		t.Fatalf("expected NOT_FOLLOWING, got %v", err)
	}
}

func TestIndexesTrackEdges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustFollow(t, s, "alice", "bob")
	mustFollow(t, s, "carol", "bob")
	mustFollow(t, s, "alice", "carol")

	followers, err := s.Followers(ctx, "bob")
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	if diff := cmp.Diff([]identity.Identity{"alice", "carol"}, followers); diff != "" {
		t.Fatalf("followers mismatch (-want +got):\n%s", diff)
	}
	following, err := s.Following(ctx, "alice")
	if err != nil {
		t.Fatalf("following: %v", err)
	}
	if diff := cmp.Diff([]identity.Identity{"bob", "carol"}, following); diff != "" {
		t.Fatalf("following mismatch (-want +got):\n%s", diff)
	}
	nobody, err := s.Followers(ctx, "dave")
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	if nobody == nil || len(nobody) != 0 {
		t.Fatalf("expected empty non-nil followers, got %#v", nobody)
	}

	if err := s.Unfollow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	followers, _ = s.Followers(ctx, "bob")
	if diff := cmp.Diff([]identity.Identity{"carol"}, followers); diff != "" {
		t.Fatalf("followers after unfollow mismatch (-want +got):\n%s", diff)
	}
	ok, err := s.IsFollowing(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("is following: %v", err)
	}
	if ok {
		t.Fatal("expected edge to be gone")
	}
}

func TestEdgeIndexConsistencyUnderInterleaving(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	people := []identity.Identity{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewPCG(7, 11))

	for step := 0; step < 300; step++ {
		follower := people[rng.IntN(len(people))]
		followee := people[rng.IntN(len(people))]
		if rng.IntN(2) == 0 {
			_, _ = s.Follow(ctx, follower, followee)
		} else {
			_ = s.Unfollow(ctx, follower, followee)
		}

		for _, x := range people {
			following, err := s.Following(ctx, x)
			if err != nil {
				t.Fatalf("following: %v", err)
			}
			for _, y := range people {
				followers, err := s.Followers(ctx, y)
				if err != nil {
					t.Fatalf("followers: %v", err)
				}
				edge, err := s.IsFollowing(ctx, x, y)
				if err != nil {
					t.Fatalf("is following: %v", err)
				}
				forward := slices.Contains(following, y)
				reverse := slices.Contains(followers, x)
				if edge != forward || edge != reverse {
					t.Fatalf("step %d: %s->%s edge=%v following=%v followers=%v", step, x, y, edge, forward, reverse)
				}
			}
		}
	}
	if err := s.Verify(ctx); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestMutualFollowers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, f := range []identity.Identity{"carol", "dave", "erin"} {
		mustFollow(t, s, f, "alice")
	}
	for _, f := range []identity.Identity{"erin", "carol", "frank"} {
		mustFollow(t, s, f, "bob")
	}

	got, err := s.MutualFollowers(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("mutual: %v", err)
	}
	if diff := cmp.Diff([]identity.Identity{"carol", "erin"}, got); diff != "" {
		t.Fatalf("mutual mismatch (-want +got):\n%s", diff)
	}
}

func TestFollowSuggestions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	// me follows a and b; a follows c, me, d; b follows d, e, a.
	mustFollow(t, s, "me", "a")
	mustFollow(t, s, "me", "b")
	mustFollow(t, s, "a", "c")
	mustFollow(t, s, "a", "me")
	mustFollow(t, s, "a", "d")
	mustFollow(t, s, "b", "d")
	mustFollow(t, s, "b", "e")
	mustFollow(t, s, "b", "a")

	tests := []struct {
		limit int
		want  []identity.Identity
	}{
		{10, []identity.Identity{"c", "d", "e"}},
		{2, []identity.Identity{"c", "d"}},
		{1, []identity.Identity{"c"}},
		{0, []identity.Identity{}},
		{-3, []identity.Identity{}},
	}
	for _, tt := range tests {
		got, err := s.FollowSuggestions(ctx, "me", tt.limit)
		if err != nil {
			t.Fatalf("suggestions(%d): %v", tt.limit, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("suggestions(%d) mismatch (-want +got):\n%s", tt.limit, diff)
		}
	}

	lonely, err := s.FollowSuggestions(ctx, "nobody", 5)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(lonely) != 0 {
		t.Fatalf("expected no suggestions, got %v", lonely)
	}
}

type countingStore struct {
	kv.Store
	reads map[string]int
}

func (s *countingStore) View(ctx context.Context, fn func(kv.Tx) error) error {
	return s.Store.View(ctx, func(tx kv.Tx) error {
		return fn(countingTx{Tx: tx, reads: s.reads})
	})
}

type countingTx struct {
	kv.Tx
	reads map[string]int
}

func (t countingTx) Bucket(name string) (kv.Bucket, error) {
	b, err := t.Tx.Bucket(name)
	if err != nil {
		return nil, err
	}
	return countingBucket{Bucket: b, reads: t.reads}, nil
}

type countingBucket struct {
	kv.Bucket
	reads map[string]int
}

func (b countingBucket) Get(key []byte) ([]byte, error) {
	b.reads[string(key)]++
	return b.Bucket.Get(key)
}

func TestFollowSuggestionsStopsOuterLoopAtLimit(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	writer, err := New(ctx, db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	mustFollow(t, writer, "me", "a")
	mustFollow(t, writer, "me", "b")
	mustFollow(t, writer, "a", "c")
	mustFollow(t, writer, "b", "d")

	counting := &countingStore{Store: db, reads: map[string]int{}}
	reader, err := New(ctx, counting, nil)
	if err != nil {
		t.Fatalf("new counting store: %v", err)
	}
	got, err := reader.FollowSuggestions(ctx, "me", 1)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if diff := cmp.Diff([]identity.Identity{"c"}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if counting.reads["b"] != 0 {
		t.Fatalf("expected b's following list to stay unread, got %d reads", counting.reads["b"])
	}
}

type failingStore struct {
	kv.Store
	failBucket string
}

func (s failingStore) Update(ctx context.Context, fn func(kv.Tx) error) error {
	return s.Store.Update(ctx, func(tx kv.Tx) error {
		return fn(failingTx{Tx: tx, failBucket: s.failBucket})
	})
}

type failingTx struct {
	kv.Tx
	failBucket string
}

func (t failingTx) Bucket(name string) (kv.Bucket, error) {
	b, err := t.Tx.Bucket(name)
	if err != nil || name != t.failBucket {
		return b, err
	}
	return failingBucket{Bucket: b}, nil
}

type failingBucket struct {
	kv.Bucket
}

var errWriteFailed = errors.New("write failed")

func (failingBucket) Put([]byte, []byte) error { return errWriteFailed }

func TestFollowRollsBackWhenReverseIndexFails(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	broken, err := New(ctx, failingStore{Store: db, failBucket: followersBucket}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := broken.Follow(ctx, "alice", "bob"); !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected write failure, got %v", err)
	}

	clean, err := New(ctx, db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ok, err := clean.IsFollowing(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("is following: %v", err)
	}
	if ok {
		t.Fatal("expected edge write to roll back")
	}
	following, _ := clean.Following(ctx, "alice")
	if len(following) != 0 {
		t.Fatalf("expected following index to roll back, got %v", following)
	}
	if err := clean.Verify(ctx); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyDetectsDivergence(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	mustFollow(t, s, "alice", "bob")

	err := db.Update(ctx, func(tx kv.Tx) error {
		followers, err := tx.Bucket(followersBucket)
		if err != nil {
			return err
		}
		return followers.Delete([]byte("bob"))
	})
	if err != nil {
		t.Fatalf("corrupt index: %v", err)
	}
	if err := s.Verify(ctx); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if _, err := s.Followers(context.Background(), "alice"); !errors.Is(err, ErrStoreNotConfigured) {
		t.Fatalf("expected ErrStoreNotConfigured, got %v", err)
	}
}
