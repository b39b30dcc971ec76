// Package graph owns directed follow edges and their adjacency indexes.
//
// Each edge is stored three ways: the edge record keyed by
// follower NUL following, the follower's entry in the following index and the
// followee's entry in the followers index. Follow and Unfollow rewrite all
// three inside one kv transaction.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
)

const (
	followsBucket   = "follows"
	followersBucket = "followers"
	followingBucket = "following"

	edgeSeparator = "\x00"
)

// ErrStoreNotConfigured indicates the store is missing its kv backend.
var ErrStoreNotConfigured = errors.New("graph store is not configured")

// Follow is one directed edge.
type Follow struct {
	Follower  identity.Identity `json:"follower"`
	Following identity.Identity `json:"following"`
	CreatedAt time.Time         `json:"created_at"`
}

// SocialStats counts an identity's adjacency.
type SocialStats struct {
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
}

// Store persists the follow graph.
type Store struct {
	db    kv.Store
	clock func() time.Time
}

// New prepares the graph buckets in db.
func New(ctx context.Context, db kv.Store, clock func() time.Time) (*Store, error) {
	if db == nil {
		return nil, ErrStoreNotConfigured
	}
	if clock == nil {
		clock = time.Now
	}
	if err := db.EnsureBuckets(ctx, followsBucket, followersBucket, followingBucket); err != nil {
		return nil, fmt.Errorf("ensure graph buckets: %w", err)
	}
	return &Store{db: db, clock: clock}, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

// Follow creates the edge follower -> followee.
func (s *Store) Follow(ctx context.Context, follower, followee identity.Identity) (Follow, error) {
	if err := s.ready(ctx); err != nil {
		return Follow{}, err
	}
	if err := identity.RequireOwner(follower); err != nil {
		return Follow{}, err
	}
	if err := identity.RequireOwner(followee); err != nil {
		return Follow{}, apperrors.WithMetadata(apperrors.CodeNotFound, "followee not found", map[string]string{"Resource": "user"})
	}
	if follower == followee {
		return Follow{}, apperrors.New(apperrors.CodeSelfFollow, "cannot follow self")
	}

	edge := Follow{Follower: follower, Following: followee, CreatedAt: s.clock().UTC()}
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, followsBucket, followersBucket, followingBucket)
		if err != nil {
			return err
		}
		follows, followers, following := buckets[0], buckets[1], buckets[2]

		exists, err := follows.Has(edgeKey(follower, followee))
		if err != nil {
			return err
		}
		if exists {
			return apperrors.New(apperrors.CodeAlreadyFollowing, "already following")
		}
		if err := kv.PutJSON(follows, edgeKey(follower, followee), edge); err != nil {
			return err
		}
		if err := addMember(following, follower, followee); err != nil {
			return err
		}
		return addMember(followers, followee, follower)
	})
	if err != nil {
		return Follow{}, fmt.Errorf("follow: %w", err)
	}
	return edge, nil
}

// Unfollow removes the edge follower -> followee.
func (s *Store) Unfollow(ctx context.Context, follower, followee identity.Identity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := identity.RequireOwner(follower); err != nil {
		return err
	}
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, followsBucket, followersBucket, followingBucket)
		if err != nil {
			return err
		}
		follows, followers, following := buckets[0], buckets[1], buckets[2]

		exists, err := follows.Has(edgeKey(follower, followee))
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.New(apperrors.CodeNotFollowing, "not following")
		}
		if err := follows.Delete(edgeKey(follower, followee)); err != nil {
			return err
		}
		if err := removeMember(following, follower, followee); err != nil {
			return err
		}
		return removeMember(followers, followee, follower)
	})
	if err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

// IsFollowing reports whether the edge follower -> followee exists.
func (s *Store) IsFollowing(ctx context.Context, follower, followee identity.Identity) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if !validEndpoint(follower) || !validEndpoint(followee) {
		return false, nil
	}
	var exists bool
	err := s.db.View(ctx, func(tx kv.Tx) error {
		follows, err := tx.Bucket(followsBucket)
		if err != nil {
			return err
		}
		exists, err = follows.Has(edgeKey(follower, followee))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("is following: %w", err)
	}
	return exists, nil
}

// Followers lists who follows id, in follow order.
func (s *Store) Followers(ctx context.Context, id identity.Identity) ([]identity.Identity, error) {
	return s.readIndex(ctx, "followers", followersBucket, id)
}

// Following lists who id follows, in follow order.
func (s *Store) Following(ctx context.Context, id identity.Identity) ([]identity.Identity, error) {
	return s.readIndex(ctx, "following", followingBucket, id)
}

func (s *Store) readIndex(ctx context.Context, op, bucket string, id identity.Identity) ([]identity.Identity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var members []identity.Identity
	err := s.db.View(ctx, func(tx kv.Tx) error {
		index, err := tx.Bucket(bucket)
		if err != nil {
			return err
		}
		members, err = indexMembers(index, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return members, nil
}

// SocialStats counts followers and followees of id.
func (s *Store) SocialStats(ctx context.Context, id identity.Identity) (SocialStats, error) {
	if err := s.ready(ctx); err != nil {
		return SocialStats{}, err
	}
	var stats SocialStats
	err := s.db.View(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, followersBucket, followingBucket)
		if err != nil {
			return err
		}
		followers, err := indexMembers(buckets[0], id)
		if err != nil {
			return err
		}
		following, err := indexMembers(buckets[1], id)
		if err != nil {
			return err
		}
		stats = SocialStats{FollowersCount: len(followers), FollowingCount: len(following)}
		return nil
	})
	if err != nil {
		return SocialStats{}, fmt.Errorf("social stats: %w", err)
	}
	return stats, nil
}

// MutualFollowers returns the identities following both a and b, in a's
// followers order.
func (s *Store) MutualFollowers(ctx context.Context, a, b identity.Identity) ([]identity.Identity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var mutual []identity.Identity
	err := s.db.View(ctx, func(tx kv.Tx) error {
		followers, err := tx.Bucket(followersBucket)
		if err != nil {
			return err
		}
		ofA, err := indexMembers(followers, a)
		if err != nil {
			return err
		}
		ofB, err := indexMembers(followers, b)
		if err != nil {
			return err
		}
		inB := identity.Set(ofB)
		seen := make(map[identity.Identity]struct{}, len(ofA))
		mutual = make([]identity.Identity, 0)
		for _, candidate := range ofA {
			if _, ok := inB[candidate]; !ok {
				continue
			}
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			mutual = append(mutual, candidate)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mutual followers: %w", err)
	}
	return mutual, nil
}

// FollowSuggestions walks two hops out from id and returns up to limit
// identities that id does not follow yet, in first-seen order.
func (s *Store) FollowSuggestions(ctx context.Context, id identity.Identity, limit int) ([]identity.Identity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	suggestions := make([]identity.Identity, 0)
	if limit <= 0 {
		return suggestions, nil
	}
	err := s.db.View(ctx, func(tx kv.Tx) error {
		following, err := tx.Bucket(followingBucket)
		if err != nil {
			return err
		}
		direct, err := indexMembers(following, id)
		if err != nil {
			return err
		}
		followed := identity.Set(direct)
		collected := make(map[identity.Identity]struct{})

		for _, hop := range direct {
			second, err := indexMembers(following, hop)
			if err != nil {
				return err
			}
			for _, candidate := range second {
				if candidate == id {
					continue
				}
				if _, ok := followed[candidate]; ok {
					continue
				}
				if _, ok := collected[candidate]; ok {
					continue
				}
				collected[candidate] = struct{}{}
				suggestions = append(suggestions, candidate)
				if len(suggestions) >= limit {
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("follow suggestions: %w", err)
	}
	return suggestions, nil
}

// ErrInconsistent reports divergence between edges and adjacency indexes.
var ErrInconsistent = errors.New("follow graph is inconsistent")

// Verify checks that every edge appears in both indexes and that every index
// member is backed by an edge. It returns an error wrapping ErrInconsistent
// that describes the first divergence found.
func (s *Store) Verify(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.View(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, followsBucket, followersBucket, followingBucket)
		if err != nil {
			return err
		}
		follows, followers, following := buckets[0], buckets[1], buckets[2]

		edges := 0
		err = follows.ForEach(func(key, _ []byte) error {
			follower, followee, ok := parseEdgeKey(key)
			if !ok {
				return fmt.Errorf("%w: malformed edge key %q", ErrInconsistent, key)
			}
			edges++
			forward, err := indexMembers(following, follower)
			if err != nil {
				return err
			}
			if !slices.Contains(forward, followee) {
				return fmt.Errorf("%w: %s -> %s missing from following index", ErrInconsistent, follower, followee)
			}
			reverse, err := indexMembers(followers, followee)
			if err != nil {
				return err
			}
			if !slices.Contains(reverse, follower) {
				return fmt.Errorf("%w: %s -> %s missing from followers index", ErrInconsistent, follower, followee)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, side := range []struct {
			name    string
			index   kv.Bucket
			forward bool
		}{
			{followingBucket, following, true},
			{followersBucket, followers, false},
		} {
			entries := 0
			err := side.index.ForEach(func(key, value []byte) error {
				members, err := kv.DecodeJSON[[]identity.Identity](value)
				if err != nil {
					return fmt.Errorf("decode %s entry %q: %w", side.name, key, err)
				}
				owner := identity.Identity(key)
				for _, member := range members {
					entries++
					edge := edgeKey(member, owner)
					if side.forward {
						edge = edgeKey(owner, member)
					}
					exists, err := follows.Has(edge)
					if err != nil {
						return err
					}
					if !exists {
						return fmt.Errorf("%w: %s entry %s/%s has no edge", ErrInconsistent, side.name, owner, member)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if entries != edges {
				return fmt.Errorf("%w: %s index holds %d entries for %d edges", ErrInconsistent, side.name, entries, edges)
			}
		}
		return nil
	})
}

func validEndpoint(id identity.Identity) bool {
	return identity.RequireOwner(id) == nil
}

func edgeKey(follower, followee identity.Identity) []byte {
	return []byte(string(follower) + edgeSeparator + string(followee))
}

// parseEdgeKey splits a follows key into its endpoints.
func parseEdgeKey(key []byte) (identity.Identity, identity.Identity, bool) {
	follower, followee, ok := strings.Cut(string(key), edgeSeparator)
	if !ok {
		return identity.Anonymous, identity.Anonymous, false
	}
	return identity.Identity(follower), identity.Identity(followee), true
}

func indexMembers(index kv.Bucket, id identity.Identity) ([]identity.Identity, error) {
	if id.IsAnonymous() {
		return []identity.Identity{}, nil
	}
	members, err := kv.GetJSON[[]identity.Identity](index, []byte(id))
	if errors.Is(err, kv.ErrNotFound) || (err == nil && members == nil) {
		return []identity.Identity{}, nil
	}
	return members, err
}

func addMember(index kv.Bucket, owner, member identity.Identity) error {
	members, err := indexMembers(index, owner)
	if err != nil {
		return err
	}
	if slices.Contains(members, member) {
		return nil
	}
	return kv.PutJSON(index, []byte(owner), append(members, member))
}

func removeMember(index kv.Bucket, owner, member identity.Identity) error {
	members, err := indexMembers(index, owner)
	if err != nil {
		return err
	}
	remaining := slices.DeleteFunc(members, func(id identity.Identity) bool { return id == member })
	if len(remaining) == 0 {
		return index.Delete([]byte(owner))
	}
	return kv.PutJSON(index, []byte(owner), remaining)
}
