package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/pkg/domain"
)

// SessionStore is the durable record of sessions. It is the source of
// truth; every invalidation writes through to it.
type SessionStore interface {
	// CreateSingle invalidates the user's active sessions in the slot
	// selected by scope and inserts s, as one atomic unit. It returns the
	// sessions it invalidated.
	CreateSingle(ctx context.Context, s *domain.Session, scope domain.SlotScope) ([]domain.InvalidatedSession, error)
	Insert(ctx context.Context, s *domain.Session) error
	// FindByTokenHash returns domain.ErrSessionNotFound if no session,
	// in any status, has the hash.
	FindByTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	// FindActiveByUser returns active, unexpired sessions, most recent first.
	FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) (int64, error)
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID, except *uuid.UUID) ([]domain.InvalidatedSession, error)
	// UpdateExpiry returns false if the session is missing, invalidated,
	// or already expires at or after newExpiresAt.
	UpdateExpiry(ctx context.Context, id uuid.UUID, newExpiresAt time.Time) (bool, error)
}

// UserStore persists the identities handed over by the authenticator.
type UserStore interface {
	Upsert(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// CacheStatus is the outcome of a cache call.
type CacheStatus int

const (
	CacheMiss CacheStatus = iota
	CacheHit
	CacheStored
	// CacheSkipped means the call did not take effect; Err says why when
	// the cause was a failure rather than a policy decision.
	CacheSkipped
)

func (s CacheStatus) String() string {
	switch s {
	case CacheHit:
		return "hit"
	case CacheStored:
		return "stored"
	case CacheSkipped:
		return "skipped"
	default:
		return "miss"
	}
}

// CacheResult reports what a cache call did. Cache failures never reach
// the caller as errors; they show up here as CacheSkipped or CacheMiss
// with Err set.
type CacheResult struct {
	Status CacheStatus
	Err    error
}

// Cache result constructors.
var (
	ResultHit    = CacheResult{Status: CacheHit}
	ResultMiss   = CacheResult{Status: CacheMiss}
	ResultStored = CacheResult{Status: CacheStored}
)

// Skipped returns a CacheSkipped result carrying err.
func Skipped(err error) CacheResult {
	return CacheResult{Status: CacheSkipped, Err: err}
}

// MissWith returns a CacheMiss result caused by err.
func MissWith(err error) CacheResult {
	return CacheResult{Status: CacheMiss, Err: err}
}

// ErrCacheRevoked is carried by a skipped Put for a hash that was revoked.
var ErrCacheRevoked = errors.New("session hash revoked")

// SessionCache is a best-effort, time-bounded mirror of store lookups.
type SessionCache interface {
	// Put stores s under hash unless the hash was revoked, in which case
	// it returns a CacheSkipped result carrying ErrCacheRevoked.
	Put(ctx context.Context, hash string, s *domain.Session, ttl time.Duration) CacheResult
	Get(ctx context.Context, hash string) (*domain.Session, CacheResult)
	// Invalidate drops the entry for a session that is still alive.
	Invalidate(ctx context.Context, hash string) CacheResult
	// Revoke drops the entry for a dead session and refuses later Puts of
	// the hash for at least the cache's maximum TTL.
	Revoke(ctx context.Context, hash string) CacheResult
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID) CacheResult
	PutUser(ctx context.Context, u *domain.User, ttl time.Duration) CacheResult
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, CacheResult)
}
