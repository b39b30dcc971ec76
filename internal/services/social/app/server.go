// Package server wires the social runtime: storage, HTTP API and gRPC health.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/louisbranch/townsquare/internal/platform/authn"
	platformgrpc "github.com/louisbranch/townsquare/internal/platform/grpc"
	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/telemetry/metrics"
	"github.com/louisbranch/townsquare/internal/platform/timeouts"
	socialhttp "github.com/louisbranch/townsquare/internal/services/social/api/http/social"
	"github.com/louisbranch/townsquare/internal/services/social/graph"
	"github.com/louisbranch/townsquare/internal/services/social/posts"
	"github.com/louisbranch/townsquare/internal/services/social/storage"
	"github.com/louisbranch/townsquare/internal/services/social/timeline"
	"github.com/louisbranch/townsquare/internal/services/social/users"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
)

// HealthService is the gRPC health service name reported by the social server.
const HealthService = "townsquare.social"

// Config describes one social server instance.
type Config struct {
	HTTPAddr      string
	HealthAddr    string
	StorageDriver storage.Driver
	DBPath        string
	Tokens        authn.Config
	Logger        *zap.Logger
}

// Stores groups the social stores sharing one key-value backend.
type Stores struct {
	Users *users.Store
	Posts *posts.Store
	Graph *graph.Store
}

// OpenStores prepares every social store on db.
func OpenStores(ctx context.Context, db kv.Store) (Stores, error) {
	userStore, err := users.New(ctx, db, nil)
	if err != nil {
		return Stores{}, err
	}
	postStore, err := posts.New(ctx, db, nil)
	if err != nil {
		return Stores{}, err
	}
	graphStore, err := graph.New(ctx, db, nil)
	if err != nil {
		return Stores{}, err
	}
	return Stores{Users: userStore, Posts: postStore, Graph: graphStore}, nil
}

// Server hosts the social HTTP API, the gRPC health service and the store.
type Server struct {
	httpListener   net.Listener
	healthListener net.Listener
	httpServer     *http.Server
	health         *platformgrpc.HealthServer
	store          kv.Store
	logger         *zap.Logger
}

// New opens storage and binds both listeners.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens, err := authn.New(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("configure tokens: %w", err)
	}

	db, err := storage.Open(cfg.StorageDriver, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	stores, err := OpenStores(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := stores.Graph.Verify(ctx); err != nil {
		logger.Warn("follow graph indexes diverge from edges", zap.Error(err))
	}

	httpMetrics, err := metrics.NewHTTP("social", nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	router := socialhttp.NewRouter(socialhttp.Deps{
		Users:    stores.Users,
		Posts:    stores.Posts,
		Graph:    stores.Graph,
		Timeline: timeline.NewService(stores.Users, stores.Posts, stores.Graph),
		Tokens:   tokens,
		Metrics:  httpMetrics,
		Logger:   logger,
	})

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	healthListener, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		_ = httpListener.Close()
		_ = db.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HealthAddr, err)
	}

	return &Server{
		httpListener:   httpListener,
		healthListener: healthListener,
		httpServer: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		health: platformgrpc.NewHealthServer(HealthService),
		store:  db,
		logger: logger,
	}, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Run creates and serves a social server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs both servers until ctx is canceled or either server fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.logger.Info("social server listening",
		zap.String("http_addr", s.Addr()),
		zap.String("health_addr", s.HealthAddr()),
	)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()
	healthErr := make(chan error, 1)
	go func() {
		healthErr <- s.health.Server().Serve(s.healthListener)
	}()
	s.health.SetServing(true)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve HTTP: %w", err)
		}
	case err := <-healthErr:
		if err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
			serveErr = fmt.Errorf("serve gRPC health: %w", err)
		}
	}

	s.health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("shutdown HTTP server", zap.Error(err))
	}
	s.health.Shutdown()
	return serveErr
}

// Close releases listeners and storage.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Server().Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.healthListener != nil {
		_ = s.healthListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close social store", zap.Error(err))
		}
	}
}
