package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/pkg/domain"
)

// UserDirectory records the identities the authenticator hands over and
// serves user-by-id lookups through the cache.
type UserDirectory struct {
	users    UserStore
	cache    SessionCache
	cacheTTL     time.Duration
	timeout      time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewUserDirectory creates a new user directory.
func NewUserDirectory(users UserStore, cache SessionCache, cfg SessionConfig, logger *slog.Logger) *UserDirectory {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheTimeout == 0 {
		cfg.CacheTimeout = DefaultCacheTimeout
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserDirectory{
		users:    users,
		cache:    cache,
		cacheTTL:     cfg.CacheTTL,
		timeout:      cfg.CacheTimeout,
		storeTimeout: cfg.StoreTimeout,
		logger:       logger,
	}
}

// Remember upserts the user and refreshes its cached copy.
func (d *UserDirectory) Remember(ctx context.Context, id uuid.UUID, email, name string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if id == uuid.Nil || email == "" {
		return nil, fmt.Errorf("%w: user id and email are required", domain.ErrInvalidRequest)
	}

	u := &domain.User{ID: id, Email: email}
	if name = CleanText(name, MaxNameLen); name != "" {
		u.Name = &name
	}
	sctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	err := d.users.Upsert(sctx, u)
	cancel()
	if err != nil {
		return nil, storeError("upsert user", err)
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if res := d.cache.PutUser(cctx, u, d.cacheTTL); res.Status == CacheSkipped && res.Err != nil {
		d.logger.Warn("user cache write skipped", "op", "put_user", "user_id", id, "error", res.Err)
	}
	return u, nil
}

// Get returns the user, from the cache when possible.
func (d *UserDirectory) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	cached, res := d.cache.GetUser(cctx, id)
	cancel()
	if res.Status == CacheHit && cached != nil {
		return cached, nil
	}

	sctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	u, err := d.users.GetByID(sctx, id)
	cancel()
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storeError("get user", err)
	}

	cctx, cancel = context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if res := d.cache.PutUser(cctx, u, d.cacheTTL); res.Status == CacheSkipped && res.Err != nil {
		d.logger.Warn("user cache write skipped", "op", "put_user", "user_id", id, "error", res.Err)
	}
	return u, nil
}
