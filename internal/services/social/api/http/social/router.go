// Package social exposes the social stores over a JSON HTTP API.
package social

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/louisbranch/townsquare/internal/platform/authn"
	"github.com/louisbranch/townsquare/internal/platform/pagination"
	"github.com/louisbranch/townsquare/internal/platform/telemetry/metrics"
	"github.com/louisbranch/townsquare/internal/platform/timeouts"
	"github.com/louisbranch/townsquare/internal/services/social/graph"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/posts"
	"github.com/louisbranch/townsquare/internal/services/social/timeline"
	"github.com/louisbranch/townsquare/internal/services/social/users"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	listPageSize       = pagination.PageSizeConfig{Default: 20, Max: 100}
	suggestionPageSize = pagination.PageSizeConfig{Default: 10, Max: 50}
)

// UserStore is the profile surface used by the HTTP API.
type UserStore interface {
	CreateUser(ctx context.Context, caller identity.Identity, input users.CreateUserInput) (users.UserProfile, error)
	UpdateUser(ctx context.Context, caller identity.Identity, input users.UpdateUserInput) (users.UserProfile, error)
	GetUserByUsername(ctx context.Context, name string) (users.UserProfile, error)
	UsernameAvailable(ctx context.Context, name string) (bool, error)
	ListUsers(ctx context.Context) ([]users.UserProfile, error)
}

// PostStore is the post mutation surface used by the HTTP API.
type PostStore interface {
	CreatePost(ctx context.Context, caller identity.Identity, input posts.CreatePostInput) (posts.Post, error)
	UpdatePost(ctx context.Context, caller identity.Identity, postID uint64, input posts.UpdatePostInput) (posts.Post, error)
	DeletePost(ctx context.Context, caller identity.Identity, postID uint64) error
	LikePost(ctx context.Context, caller identity.Identity, postID uint64) (posts.Post, error)
	UnlikePost(ctx context.Context, caller identity.Identity, postID uint64) (posts.Post, error)
}

// GraphStore is the follow graph surface used by the HTTP API.
type GraphStore interface {
	Follow(ctx context.Context, follower, followee identity.Identity) (graph.Follow, error)
	Unfollow(ctx context.Context, follower, followee identity.Identity) error
	IsFollowing(ctx context.Context, follower, followee identity.Identity) (bool, error)
	Followers(ctx context.Context, id identity.Identity) ([]identity.Identity, error)
	Following(ctx context.Context, id identity.Identity) ([]identity.Identity, error)
	SocialStats(ctx context.Context, id identity.Identity) (graph.SocialStats, error)
	MutualFollowers(ctx context.Context, a, b identity.Identity) ([]identity.Identity, error)
}

// Timeline is the read model used by the HTTP API.
type Timeline interface {
	GetPost(ctx context.Context, postID uint64) (timeline.PostView, error)
	RecentPosts(ctx context.Context, limit, offset int) ([]timeline.PostView, error)
	UserPosts(ctx context.Context, author identity.Identity) ([]timeline.PostView, error)
	HomeTimeline(ctx context.Context, caller identity.Identity, limit, offset int) ([]timeline.PostView, error)
	CurrentUser(ctx context.Context, caller identity.Identity) (users.UserProfile, error)
	UserCard(ctx context.Context, viewer, target identity.Identity) (timeline.UserCard, error)
	Suggestions(ctx context.Context, caller identity.Identity, limit int) ([]timeline.UserCard, error)
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (authn.Claims, error)
}

// Deps collects the collaborators of the HTTP API. Metrics and Logger are optional.
type Deps struct {
	Users    UserStore
	Posts    PostStore
	Graph    GraphStore
	Timeline Timeline
	Tokens   TokenVerifier
	Metrics  *metrics.HTTP
	Logger   *zap.Logger
}

type handler struct {
	users    UserStore
	posts    PostStore
	graph    GraphStore
	timeline Timeline
	tokens   TokenVerifier
	logger   *zap.Logger
}

// NewRouter builds the HTTP router with every social route.
func NewRouter(deps Deps) http.Handler {
	h := &handler{
		users:    deps.Users,
		posts:    deps.Posts,
		graph:    deps.Graph,
		timeline: deps.Timeline,
		tokens:   deps.Tokens,
		logger:   deps.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeouts.Request))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/users", h.listUsers)
		r.Post("/users", h.createUser)
		r.Get("/users/me", h.currentUser)
		r.Patch("/users/me", h.updateCurrentUser)
		r.Get("/users/{identity}", h.userCard)
		r.Get("/users/{identity}/posts", h.userPosts)
		r.Get("/users/{identity}/followers", h.followers)
		r.Get("/users/{identity}/following", h.following)
		r.Get("/users/{identity}/stats", h.socialStats)
		r.Get("/users/{identity}/mutual-followers", h.mutualFollowers)
		r.Get("/users/{identity}/is-following/{target}", h.isFollowing)
		r.Put("/users/{identity}/follow", h.follow)
		r.Delete("/users/{identity}/follow", h.unfollow)

		r.Get("/usernames/{username}", h.userByUsername)
		r.Get("/usernames/{username}/availability", h.usernameAvailability)

		r.Get("/posts", h.recentPosts)
		r.Post("/posts", h.createPost)
		r.Get("/posts/{id}", h.getPost)
		r.Patch("/posts/{id}", h.updatePost)
		r.Delete("/posts/{id}", h.deletePost)
		r.Put("/posts/{id}/like", h.likePost)
		r.Delete("/posts/{id}/like", h.unlikePost)

		r.Get("/timeline", h.homeTimeline)
		r.Get("/suggestions", h.suggestions)
	})

	return otelhttp.NewHandler(r, "social.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
