package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/domain"
)

// NoopCache is used when no Redis is configured. Reads miss and writes are
// skipped without an error.
type NoopCache struct{}

var _ auth.SessionCache = NoopCache{}

func (NoopCache) Put(context.Context, string, *domain.Session, time.Duration) auth.CacheResult {
	return auth.Skipped(nil)
}

func (NoopCache) Get(context.Context, string) (*domain.Session, auth.CacheResult) {
	return nil, auth.ResultMiss
}

func (NoopCache) Invalidate(context.Context, string) auth.CacheResult {
	return auth.Skipped(nil)
}

func (NoopCache) Revoke(context.Context, string) auth.CacheResult {
	return auth.Skipped(nil)
}

func (NoopCache) InvalidateAllForUser(context.Context, uuid.UUID) auth.CacheResult {
	return auth.Skipped(nil)
}

func (NoopCache) PutUser(context.Context, *domain.User, time.Duration) auth.CacheResult {
	return auth.Skipped(nil)
}

func (NoopCache) GetUser(context.Context, uuid.UUID) (*domain.User, auth.CacheResult) {
	return nil, auth.ResultMiss
}

func (NoopCache) Ping(context.Context) error {
	return nil
}
