package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-session/internal/config"
	"github.com/tendant/simple-session/internal/logging"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/cache"
	"github.com/tendant/simple-session/pkg/repository"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	db           *sql.DB
	redis        *redis.Client
	sessionsRepo *repository.SessionsRepository
	usersRepo    *repository.UsersRepository
	cache        auth.SessionCache
	redisCache   *cache.SessionCache
	manager      *auth.SessionManager
	users        *auth.UserDirectory
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := repository.NewDB(ctx, cfg.DBConfig(), logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	logger.Info("connected to database", "driver", cfg.DBDriver)

	a.sessionsRepo = repository.NewSessionsRepository(db)
	a.usersRepo = repository.NewUsersRepository(db)

	// Without Redis every lookup goes to the store.
	a.cache = cache.NoopCache{}
	if cfg.HasRedis() {
		client, err := cache.Connect(ctx, cfg.RedisURL, cfg.RedisConnectAttempts, cfg.RedisConnectInterval)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		a.redisCache = cache.NewSessionCacheWithConfig(client, cache.DefaultPrefix, cfg.CacheTTL)
		a.cache = a.redisCache
		logger.Info("session cache enabled")
	} else {
		logger.Warn("REDIS_URL not set, session cache disabled")
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.SessionSecret), cfg.SessionIssuer)
	if err != nil {
		a.Close()
		return nil, err
	}
	hasher, err := auth.NewTokenHasher([]byte(cfg.SessionSecret))
	if err != nil {
		a.Close()
		return nil, err
	}

	sessionCfg := cfg.SessionConfig()
	a.manager = auth.NewSessionManager(sessionCfg, codec, hasher, a.sessionsRepo, a.cache, logger)
	a.users = auth.NewUserDirectory(a.usersRepo, a.cache, sessionCfg, logger)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
