// Package timeline joins users, posts and the follow graph into caller-facing
// read models. It never writes and never copies foreign data into stored
// records.
package timeline

import (
	"context"
	"fmt"
	"slices"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/services/social/graph"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/posts"
	"github.com/louisbranch/townsquare/internal/services/social/users"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/louisbranch/townsquare/internal/services/social/timeline"

// UserReader reads profiles.
type UserReader interface {
	GetUser(ctx context.Context, id identity.Identity) (users.UserProfile, error)
}

// PostReader reads posts.
type PostReader interface {
	GetPost(ctx context.Context, postID uint64) (posts.Post, error)
	ListPostsByUser(ctx context.Context, author identity.Identity) ([]posts.Post, error)
	ListRecentPosts(ctx context.Context, limit, offset int) ([]posts.Post, error)
	ListPostsByUsers(ctx context.Context, authors []identity.Identity, limit, offset int) ([]posts.Post, error)
}

// GraphReader reads the follow graph.
type GraphReader interface {
	Following(ctx context.Context, id identity.Identity) ([]identity.Identity, error)
	IsFollowing(ctx context.Context, follower, followee identity.Identity) (bool, error)
	SocialStats(ctx context.Context, id identity.Identity) (graph.SocialStats, error)
	FollowSuggestions(ctx context.Context, id identity.Identity, limit int) ([]identity.Identity, error)
}

// AuthorSummary is the slice of a profile shown next to a post.
type AuthorSummary struct {
	Identity    identity.Identity `json:"identity"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name"`
	AvatarURL   string            `json:"avatar_url"`
	IsVerified  bool              `json:"is_verified"`
}

// PostView pairs a post with its author. Author is nil when the author has
// no profile.
type PostView struct {
	Post   posts.Post     `json:"post"`
	Author *AuthorSummary `json:"author"`
}

// UserCard is a profile seen from a viewer's perspective.
type UserCard struct {
	Profile       users.UserProfile `json:"profile"`
	Stats         graph.SocialStats `json:"stats"`
	IsFollowing   bool              `json:"is_following"`
	FollowsViewer bool              `json:"follows_viewer"`
}

// Service answers cross-store queries.
type Service struct {
	users  UserReader
	posts  PostReader
	graph  GraphReader
	tracer trace.Tracer
}

// Option customizes a Service.
type Option func(*Service)

// WithTracerProvider sets the provider used for query spans.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *Service) {
		if provider != nil {
			s.tracer = provider.Tracer(instrumentationName)
		}
	}
}

// NewService builds a query service over the three stores.
func NewService(userReader UserReader, postReader PostReader, graphReader GraphReader, opts ...Option) *Service {
	s := &Service{
		users:  userReader,
		posts:  postReader,
		graph:  graphReader,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "timeline."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	span.End()
}

// GetPost returns one post with its author.
func (s *Service) GetPost(ctx context.Context, postID uint64) (view PostView, err error) {
	ctx, span := s.start(ctx, "GetPost", attribute.Int64("post.id", int64(postID)))
	defer func() { finish(span, err) }()

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return PostView{}, err
	}
	views, err := s.attachAuthors(ctx, []posts.Post{post})
	if err != nil {
		return PostView{}, err
	}
	return views[0], nil
}

// RecentPosts pages through every post, newest first.
func (s *Service) RecentPosts(ctx context.Context, limit, offset int) (views []PostView, err error) {
	ctx, span := s.start(ctx, "RecentPosts", attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer func() { finish(span, err) }()

	page, err := s.posts.ListRecentPosts(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.attachAuthors(ctx, page)
}

// UserPosts lists an author's posts, newest first.
func (s *Service) UserPosts(ctx context.Context, author identity.Identity) (views []PostView, err error) {
	ctx, span := s.start(ctx, "UserPosts")
	defer func() { finish(span, err) }()

	authored, err := s.posts.ListPostsByUser(ctx, author)
	if err != nil {
		return nil, err
	}
	posts.SortNewestFirst(authored)
	return s.attachAuthors(ctx, authored)
}

// HomeTimeline pages through the posts of caller and everyone caller follows.
func (s *Service) HomeTimeline(ctx context.Context, caller identity.Identity, limit, offset int) (views []PostView, err error) {
	ctx, span := s.start(ctx, "HomeTimeline", attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer func() { finish(span, err) }()

	if err := identity.RequireOwner(caller); err != nil {
		return nil, err
	}
	following, err := s.graph.Following(ctx, caller)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("following.count", len(following)))
	authors := append(slices.Clone(following), caller)
	page, err := s.posts.ListPostsByUsers(ctx, authors, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.attachAuthors(ctx, page)
}

// CurrentUser returns the caller's own profile.
func (s *Service) CurrentUser(ctx context.Context, caller identity.Identity) (profile users.UserProfile, err error) {
	ctx, span := s.start(ctx, "CurrentUser")
	defer func() { finish(span, err) }()

	if err := identity.RequireOwner(caller); err != nil {
		return users.UserProfile{}, err
	}
	return s.users.GetUser(ctx, caller)
}

// UserCard describes target as seen by viewer. Anonymous viewers see both
// relationship flags as false.
func (s *Service) UserCard(ctx context.Context, viewer, target identity.Identity) (card UserCard, err error) {
	ctx, span := s.start(ctx, "UserCard")
	defer func() { finish(span, err) }()

	return s.card(ctx, viewer, target)
}

// Suggestions resolves follow suggestions for caller into cards, skipping
// identities that have no profile.
func (s *Service) Suggestions(ctx context.Context, caller identity.Identity, limit int) (cards []UserCard, err error) {
	ctx, span := s.start(ctx, "Suggestions", attribute.Int("limit", limit))
	defer func() { finish(span, err) }()

	if err := identity.RequireOwner(caller); err != nil {
		return nil, err
	}
	candidates, err := s.graph.FollowSuggestions(ctx, caller, limit)
	if err != nil {
		return nil, err
	}
	cards = make([]UserCard, 0, len(candidates))
	for _, candidate := range candidates {
		card, err := s.card(ctx, caller, candidate)
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (s *Service) card(ctx context.Context, viewer, target identity.Identity) (UserCard, error) {
	profile, err := s.users.GetUser(ctx, target)
	if err != nil {
		return UserCard{}, err
	}
	stats, err := s.graph.SocialStats(ctx, target)
	if err != nil {
		return UserCard{}, err
	}
	card := UserCard{Profile: profile, Stats: stats}
	if viewer.IsAnonymous() || viewer == target {
		return card, nil
	}
	if card.IsFollowing, err = s.graph.IsFollowing(ctx, viewer, target); err != nil {
		return UserCard{}, err
	}
	if card.FollowsViewer, err = s.graph.IsFollowing(ctx, target, viewer); err != nil {
		return UserCard{}, err
	}
	return card, nil
}

// attachAuthors looks up each distinct author once.
func (s *Service) attachAuthors(ctx context.Context, page []posts.Post) ([]PostView, error) {
	authors := make(map[identity.Identity]*AuthorSummary)
	views := make([]PostView, 0, len(page))
	for _, post := range page {
		summary, ok := authors[post.Author]
		if !ok {
			profile, err := s.users.GetUser(ctx, post.Author)
			switch {
			case err == nil:
				summary = &AuthorSummary{
					Identity:    profile.Identity,
					Username:    profile.Username,
					DisplayName: profile.DisplayName,
					AvatarURL:   profile.AvatarURL,
					IsVerified:  profile.IsVerified,
				}
			case apperrors.HasCode(err, apperrors.CodeNotFound):
			default:
				return nil, fmt.Errorf("load author %s: %w", post.Author, err)
			}
			authors[post.Author] = summary
		}
		views = append(views, PostView{Post: post, Author: summary})
	}
	return views, nil
}
