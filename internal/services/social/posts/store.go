// Package posts owns posts, the per-author post index and the id counter.
package posts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/pagination"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/profile"
)

const (
	postsBucket     = "posts"
	userPostsBucket = "user_posts"
	metaBucket      = "post_meta"

	maxContentLength = 2000
	maxMediaURLs     = 4
)

var counterKey = []byte("counter")

// ErrStoreNotConfigured indicates the store is missing its kv backend.
var ErrStoreNotConfigured = errors.New("post store is not configured")

// Post is one authored message with its like set.
type Post struct {
	ID        uint64              `json:"id"`
	Author    identity.Identity   `json:"author"`
	Content   string              `json:"content"`
	MediaURLs []string            `json:"media_urls"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Likes     []identity.Identity `json:"likes"`
	LikeCount int                 `json:"like_count"`
}

// LikedBy reports whether id is in the post's like set.
func (p Post) LikedBy(id identity.Identity) bool {
	return slices.Contains(p.Likes, id)
}

// CreatePostInput carries the fields of a new post.
type CreatePostInput struct {
	Content   string
	MediaURLs []string
}

// UpdatePostInput carries optional post changes. Nil fields are left as is.
type UpdatePostInput struct {
	Content   *string
	MediaURLs *[]string
}

// Store persists posts.
type Store struct {
	db    kv.Store
	clock func() time.Time
}

// New prepares the post buckets in db.
func New(ctx context.Context, db kv.Store, clock func() time.Time) (*Store, error) {
	if db == nil {
		return nil, ErrStoreNotConfigured
	}
	if clock == nil {
		clock = time.Now
	}
	if err := db.EnsureBuckets(ctx, postsBucket, userPostsBucket, metaBucket); err != nil {
		return nil, fmt.Errorf("ensure post buckets: %w", err)
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

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// CreatePost stores a new post under the next counter id and indexes it for
// its author.
func (s *Store) CreatePost(ctx context.Context, caller identity.Identity, input CreatePostInput) (Post, error) {
	if err := s.ready(ctx); err != nil {
		return Post{}, err
	}
	if err := identity.RequireOwner(caller); err != nil {
		return Post{}, err
	}
	content, err := normalizeContent(input.Content)
	if err != nil {
		return Post{}, err
	}
	media, err := normalizeMedia(input.MediaURLs)
	if err != nil {
		return Post{}, err
	}

	var created Post
	err = s.db.Update(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, postsBucket, userPostsBucket, metaBucket)
		if err != nil {
			return err
		}
		posts, index, meta := buckets[0], buckets[1], buckets[2]

		id, err := nextID(meta)
		if err != nil {
			return err
		}
		now := s.now()
		created = Post{
			ID:        id,
			Author:    caller,
			Content:   content,
			MediaURLs: media,
			CreatedAt: now,
			UpdatedAt: now,
			Likes:     []identity.Identity{},
		}
		if err := kv.PutJSON(posts, kv.Uint64Key(id), created); err != nil {
			return err
		}
		ids, err := authorIndex(index, caller)
		if err != nil {
			return err
		}
		return kv.PutJSON(index, []byte(caller), append(ids, id))
	})
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	return created, nil
}

// UpdatePost changes the supplied fields of a post owned by caller.
func (s *Store) UpdatePost(ctx context.Context, caller identity.Identity, postID uint64, input UpdatePostInput) (Post, error) {
	if err := s.ready(ctx); err != nil {
		return Post{}, err
	}
	if err := identity.RequireOwner(caller); err != nil {
		return Post{}, err
	}
	var updated Post
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		posts, err := tx.Bucket(postsBucket)
		if err != nil {
			return err
		}
		post, err := getPost(posts, postID)
		if err != nil {
			return err
		}
		if post.Author != caller {
			return forbidden()
		}
		if input.Content != nil {
			if post.Content, err = normalizeContent(*input.Content); err != nil {
				return err
			}
		}
		if input.MediaURLs != nil {
			if post.MediaURLs, err = normalizeMedia(*input.MediaURLs); err != nil {
				return err
			}
		}
		post.UpdatedAt = s.now()
		if err := kv.PutJSON(posts, kv.Uint64Key(postID), post); err != nil {
			return err
		}
		updated = post
		return nil
	})
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	return updated, nil
}

// DeletePost removes a post owned by caller and drops it from the author index.
func (s *Store) DeletePost(ctx context.Context, caller identity.Identity, postID uint64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := identity.RequireOwner(caller); err != nil {
		return err
	}
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, postsBucket, userPostsBucket)
		if err != nil {
			return err
		}
		posts, index := buckets[0], buckets[1]

		post, err := getPost(posts, postID)
		if err != nil {
			return err
		}
		if post.Author != caller {
			return forbidden()
		}
		if err := posts.Delete(kv.Uint64Key(postID)); err != nil {
			return err
		}

		ids, err := authorIndex(index, post.Author)
		if err != nil {
			return err
		}
		remaining := slices.DeleteFunc(ids, func(id uint64) bool { return id == postID })
		if len(remaining) == 0 {
			return index.Delete([]byte(post.Author))
		}
		return kv.PutJSON(index, []byte(post.Author), remaining)
	})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// LikePost adds caller to the post's like set. Liking twice is a no-op.
func (s *Store) LikePost(ctx context.Context, caller identity.Identity, postID uint64) (Post, error) {
	return s.mutateLikes(ctx, "like post", caller, postID, func(likes []identity.Identity) []identity.Identity {
		if slices.Contains(likes, caller) {
			return likes
		}
		return append(likes, caller)
	})
}

// UnlikePost removes caller from the post's like set. Unliking a post that was
// never liked is a no-op.
func (s *Store) UnlikePost(ctx context.Context, caller identity.Identity, postID uint64) (Post, error) {
	return s.mutateLikes(ctx, "unlike post", caller, postID, func(likes []identity.Identity) []identity.Identity {
		return slices.DeleteFunc(likes, func(id identity.Identity) bool { return id == caller })
	})
}

func (s *Store) mutateLikes(
	ctx context.Context,
	op string,
	caller identity.Identity,
	postID uint64,
	apply func([]identity.Identity) []identity.Identity,
) (Post, error) {
	if err := s.ready(ctx); err != nil {
		return Post{}, err
	}
	if err := identity.RequireOwner(caller); err != nil {
		return Post{}, err
	}
	var result Post
	err := s.db.Update(ctx, func(tx kv.Tx) error {
		posts, err := tx.Bucket(postsBucket)
		if err != nil {
			return err
		}
		post, err := getPost(posts, postID)
		if err != nil {
			return err
		}
		before := len(post.Likes)
		post.Likes = apply(slices.Clone(post.Likes))
		post.LikeCount = len(post.Likes)
		result = post
		if len(post.Likes) == before {
			return nil
		}
		return kv.PutJSON(posts, kv.Uint64Key(postID), post)
	})
	if err != nil {
		return Post{}, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetPost returns the post with postID.
func (s *Store) GetPost(ctx context.Context, postID uint64) (Post, error) {
	if err := s.ready(ctx); err != nil {
		return Post{}, err
	}
	var post Post
	err := s.db.View(ctx, func(tx kv.Tx) error {
		posts, err := tx.Bucket(postsBucket)
		if err != nil {
			return err
		}
		post, err = getPost(posts, postID)
		return err
	})
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// ListPostsByUser returns the author's posts in index order, skipping ids
// whose post record is gone.
func (s *Store) ListPostsByUser(ctx context.Context, author identity.Identity) ([]Post, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var out []Post
	err := s.db.View(ctx, func(tx kv.Tx) error {
		buckets, err := kv.Buckets(tx, postsBucket, userPostsBucket)
		if err != nil {
			return err
		}
		out, err = postsForAuthor(buckets[0], buckets[1], author)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list posts by user: %w", err)
	}
	return out, nil
}

// ListRecentPosts pages through every post, newest first.
func (s *Store) ListRecentPosts(ctx context.Context, limit, offset int) ([]Post, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var all []Post
	err := s.db.View(ctx, func(tx kv.Tx) error {
		posts, err := tx.Bucket(postsBucket)
		if err != nil {
			return err
		}
		return posts.ForEach(func(key, value []byte) error {
			post, err := kv.DecodeJSON[Post](value)
			if err != nil {
				return fmt.Errorf("decode post %x: %w", key, err)
			}
			all = append(all, post)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	SortNewestFirst(all)
	return pagination.Slice(all, limit, offset), nil
}

// ListPostsByUsers pages through the posts of every listed author, newest
// first. Repeated authors are only counted once. Posts are read from the
// primary map so a missing author index entry never hides a post.
func (s *Store) ListPostsByUsers(ctx context.Context, authors []identity.Identity, limit, offset int) ([]Post, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	wanted := identity.Set(authors)
	delete(wanted, identity.Anonymous)
	var all []Post
	err := s.db.View(ctx, func(tx kv.Tx) error {
		posts, err := tx.Bucket(postsBucket)
		if err != nil {
			return err
		}
		return posts.ForEach(func(key, value []byte) error {
			post, err := kv.DecodeJSON[Post](value)
			if err != nil {
				return fmt.Errorf("decode post %x: %w", key, err)
			}
			if _, ok := wanted[post.Author]; ok {
				all = append(all, post)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list posts by users: %w", err)
	}
	SortNewestFirst(all)
	return pagination.Slice(all, limit, offset), nil
}

// SortNewestFirst orders posts by CreatedAt descending, breaking ties by the
// higher id.
func SortNewestFirst(posts []Post) {
	slices.SortFunc(posts, func(a, b Post) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})
}

func postsForAuthor(posts, index kv.Bucket, author identity.Identity) ([]Post, error) {
	if author.IsAnonymous() {
		return nil, nil
	}
	ids, err := authorIndex(index, author)
	if err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(ids))
	for _, id := range ids {
		post, err := getPost(posts, id)
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	return out, nil
}

func nextID(meta kv.Bucket) (uint64, error) {
	var last uint64
	value, err := meta.Get(counterKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		if last, err = kv.ParseUint64Key(value); err != nil {
			return 0, fmt.Errorf("decode post counter: %w", err)
		}
	}
	next := last + 1
	if err := meta.Put(counterKey, kv.Uint64Key(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func authorIndex(index kv.Bucket, author identity.Identity) ([]uint64, error) {
	ids, err := kv.GetJSON[[]uint64](index, []byte(author))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

func getPost(posts kv.Bucket, postID uint64) (Post, error) {
	post, err := kv.GetJSON[Post](posts, kv.Uint64Key(postID))
	if errors.Is(err, kv.ErrNotFound) {
		return Post{}, apperrors.WithMetadata(apperrors.CodeNotFound, "post not found", map[string]string{"Resource": "post"})
	}
	if err != nil {
		return Post{}, err
	}
	if post.Likes == nil {
		post.Likes = []identity.Identity{}
	}
	post.LikeCount = len(post.Likes)
	return post, nil
}

func normalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", invalidContent("is empty")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", invalidContent("is too long")
	}
	return content, nil
}

func normalizeMedia(raw []string) ([]string, error) {
	if len(raw) > maxMediaURLs {
		return nil, invalidContent("has too many media attachments")
	}
	media := make([]string, 0, len(raw))
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if !profile.IsWebURL(value) {
			return nil, invalidContent("has an invalid media url")
		}
		media = append(media, value)
	}
	return media, nil
}

func invalidContent(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidContent, "content "+reason, map[string]string{"Reason": reason})
}

func forbidden() error {
	return apperrors.WithMetadata(apperrors.CodeForbidden, "caller is not the author", map[string]string{"Resource": "post"})
}
