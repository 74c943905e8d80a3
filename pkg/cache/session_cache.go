// Package cache mirrors session and user lookups in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/domain"
)

const (
	// DefaultPrefix is the Redis key prefix for every key this package writes.
	DefaultPrefix = "session:"
	// DefaultMaxTTL bounds entry lifetimes and the per-user index.
	DefaultMaxTTL = 15 * time.Minute
)

var errNonPositiveTTL = errors.New("cache ttl must be positive")

// putSessionScript caches a session unless its hash carries a revocation
// marker, so a stale read cannot resurrect a session revoked meanwhile.
// KEYS[1] = token key, KEYS[2] = user index key, KEYS[3] = revocation key
// ARGV[1] = session JSON, ARGV[2] = entry TTL in ms, ARGV[3] = index TTL in ms,
// ARGV[4] = token hash
// Returns 1 if stored, 0 if the hash is revoked
var putSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
    return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[4])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

var _ auth.SessionCache = (*SessionCache)(nil)

// SessionCache stores sessions by token hash, a per-user index of those
// hashes for bulk purges, revocation markers, and user profiles by id.
type SessionCache struct {
	client *redis.Client
	prefix string
	maxTTL time.Duration
}

// NewSessionCache creates a new session cache.
func NewSessionCache(client *redis.Client) *SessionCache {
	return NewSessionCacheWithConfig(client, DefaultPrefix, DefaultMaxTTL)
}

// NewSessionCacheWithConfig creates a new cache with custom config
func NewSessionCacheWithConfig(client *redis.Client, prefix string, maxTTL time.Duration) *SessionCache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	return &SessionCache{
		client: client,
		prefix: prefix,
		maxTTL: maxTTL,
	}
}

func (c *SessionCache) tokenKey(hash string) string {
	return c.prefix + "token:" + hash
}

func (c *SessionCache) userKey(userID uuid.UUID) string {
	return c.prefix + "user:" + userID.String()
}

func (c *SessionCache) revokedKey(hash string) string {
	return c.prefix + "revoked:" + hash
}

func (c *SessionCache) profileKey(userID uuid.UUID) string {
	return c.prefix + "profile:" + userID.String()
}

// Put caches s under hash for ttl, capped at the configured maximum, and
// records hash in the user's index. Revoked hashes are not cached.
func (c *SessionCache) Put(ctx context.Context, hash string, s *domain.Session, ttl time.Duration) auth.CacheResult {
	if ttl <= 0 {
		return auth.Skipped(errNonPositiveTTL)
	}
	ttl = min(ttl, c.maxTTL)

	data, err := json.Marshal(s)
	if err != nil {
		return auth.Skipped(fmt.Errorf("failed to marshal session: %w", err))
	}

	keys := []string{c.tokenKey(hash), c.userKey(s.UserID), c.revokedKey(hash)}
	// Entries never outlive maxTTL, so neither does the index need to.
	stored, err := putSessionScript.Run(ctx, c.client, keys,
		string(data), ttl.Milliseconds(), c.maxTTL.Milliseconds(), hash).Int()
	if err != nil {
		return auth.Skipped(fmt.Errorf("failed to cache session: %w", err))
	}
	if stored == 0 {
		return auth.Skipped(auth.ErrCacheRevoked)
	}
	return auth.ResultStored
}

// Get returns the cached session for hash. Entries that fail to decode or
// validate are reported as misses.
func (c *SessionCache) Get(ctx context.Context, hash string) (*domain.Session, auth.CacheResult) {
	data, err := c.client.Get(ctx, c.tokenKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ResultMiss
	}
	if err != nil {
		return nil, auth.MissWith(fmt.Errorf("failed to read session: %w", err))
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, auth.MissWith(fmt.Errorf("failed to unmarshal session: %w", err))
	}
	if err := s.Validate(); err != nil {
		return nil, auth.MissWith(err)
	}
	return &s, auth.ResultHit
}

// Invalidate drops the entry for hash.
func (c *SessionCache) Invalidate(ctx context.Context, hash string) auth.CacheResult {
	if err := c.client.Del(ctx, c.tokenKey(hash)).Err(); err != nil {
		return auth.Skipped(fmt.Errorf("failed to delete session: %w", err))
	}
	return auth.ResultStored
}

// Revoke drops the entry for hash and marks the hash revoked for maxTTL,
// the longest any entry written before the mark could live.
func (c *SessionCache) Revoke(ctx context.Context, hash string) auth.CacheResult {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.revokedKey(hash), 1, c.maxTTL)
		pipe.Del(ctx, c.tokenKey(hash))
		return nil
	})
	if err != nil {
		return auth.Skipped(fmt.Errorf("failed to revoke session: %w", err))
	}
	return auth.ResultStored
}

// InvalidateAllForUser drops every entry indexed under the user.
func (c *SessionCache) InvalidateAllForUser(ctx context.Context, userID uuid.UUID) auth.CacheResult {
	userKey := c.userKey(userID)
	hashes, err := c.client.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return auth.Skipped(fmt.Errorf("failed to read user index: %w", err))
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, c.tokenKey(h))
	}
	keys = append(keys, userKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return auth.Skipped(fmt.Errorf("failed to delete user sessions: %w", err))
	}
	return auth.ResultStored
}

// PutUser caches the user profile.
func (c *SessionCache) PutUser(ctx context.Context, u *domain.User, ttl time.Duration) auth.CacheResult {
	if ttl <= 0 {
		return auth.Skipped(errNonPositiveTTL)
	}
	data, err := json.Marshal(u)
	if err != nil {
		return auth.Skipped(fmt.Errorf("failed to marshal user: %w", err))
	}
	if err := c.client.Set(ctx, c.profileKey(u.ID), data, min(ttl, c.maxTTL)).Err(); err != nil {
		return auth.Skipped(fmt.Errorf("failed to cache user: %w", err))
	}
	return auth.ResultStored
}

// GetUser returns the cached user profile.
func (c *SessionCache) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, auth.CacheResult) {
	data, err := c.client.Get(ctx, c.profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ResultMiss
	}
	if err != nil {
		return nil, auth.MissWith(fmt.Errorf("failed to read user: %w", err))
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, auth.MissWith(fmt.Errorf("failed to unmarshal user: %w", err))
	}
	return &u, auth.ResultHit
}

// Ping checks that Redis answers.
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
