// Package social parses social service flags and launches the service.
package social

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/townsquare/internal/platform/authn"
	entrypoint "github.com/louisbranch/townsquare/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/townsquare/internal/platform/grpc"
	"github.com/louisbranch/townsquare/internal/platform/logging"
	server "github.com/louisbranch/townsquare/internal/services/social/app"
	"github.com/louisbranch/townsquare/internal/services/social/storage"
)

// insecureDevSecret signs tokens when -insecure-dev-secret is set. Never use it
// outside local development.
const insecureDevSecret = "townsquare-insecure-development-secret"

const probeTimeout = 3 * time.Second

// TokenSettings holds the bearer token settings shared by the social commands.
type TokenSettings struct {
	Secret string        `env:"TOWNSQUARE_SOCIAL_TOKEN_SECRET"`
	Issuer string        `env:"TOWNSQUARE_SOCIAL_TOKEN_ISSUER" envDefault:"townsquare"`
	TTL    time.Duration `env:"TOWNSQUARE_SOCIAL_TOKEN_TTL" envDefault:"24h"`

	InsecureDevSecret bool
}

// RegisterFlags binds the token flags to fs.
func (s *TokenSettings) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&s.InsecureDevSecret, "insecure-dev-secret", s.InsecureDevSecret, "Sign tokens with a fixed development secret")
}

// Config resolves the settings into a token codec configuration.
func (s TokenSettings) Config() (authn.Config, error) {
	secret := strings.TrimSpace(s.Secret)
	if secret == "" {
		if !s.InsecureDevSecret {
			return authn.Config{}, errors.New("TOWNSQUARE_SOCIAL_TOKEN_SECRET is required (or pass -insecure-dev-secret)")
		}
		secret = insecureDevSecret
	}
	return authn.Config{
		Secret: []byte(secret),
		Issuer: s.Issuer,
		TTL:    s.TTL,
	}, nil
}

// StorageSettings holds the storage backend settings shared by the social commands.
type StorageSettings struct {
	Driver string `env:"TOWNSQUARE_SOCIAL_STORAGE_DRIVER" envDefault:"bbolt"`
	DBPath string `env:"TOWNSQUARE_SOCIAL_DB_PATH" envDefault:"data/social.db"`
}

// RegisterFlags binds the storage flags to fs.
func (s *StorageSettings) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.Driver, "storage", s.Driver, "Storage driver (bbolt, sqlite, memory)")
	fs.StringVar(&s.DBPath, "db", s.DBPath, "Storage file path")
}

// Config holds social command configuration.
type Config struct {
	Port       int    `env:"TOWNSQUARE_SOCIAL_PORT" envDefault:"8090"`
	HealthPort int    `env:"TOWNSQUARE_SOCIAL_HEALTH_PORT" envDefault:"8091"`
	LogLevel   string `env:"TOWNSQUARE_LOG_LEVEL" envDefault:"info"`
	Storage    StorageSettings
	Tokens     TokenSettings

	// Probe checks the health port of a running server instead of serving.
	Probe bool

	driver storage.Driver
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The social HTTP API port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The social gRPC health port")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Probe, "probe", false, "Check the health of a local server and exit")
	cfg.Storage.RegisterFlags(fs)
	cfg.Tokens.RegisterFlags(fs)
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	driver, err := storage.ParseDriver(cfg.Storage.Driver)
	if err != nil {
		return Config{}, err
	}
	cfg.driver = driver
	return cfg, nil
}

// Run starts the social service, or probes a running one when cfg.Probe is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Probe {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.HealthPort)
		return platformgrpc.Probe(ctx, addr, server.HealthService, probeTimeout)
	}

	tokens, err := cfg.Tokens.Config()
	if err != nil {
		return err
	}
	logger, err := logging.New(entrypoint.ServiceSocial, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Tokens.InsecureDevSecret && strings.TrimSpace(cfg.Tokens.Secret) == "" {
		logger.Warn("signing tokens with the insecure development secret")
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSocial, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:      fmt.Sprintf(":%d", cfg.Port),
			HealthAddr:    fmt.Sprintf(":%d", cfg.HealthPort),
			StorageDriver: cfg.driver,
			DBPath:        cfg.Storage.DBPath,
			Tokens:        tokens,
			Logger:        logger,
		})
	})
}
