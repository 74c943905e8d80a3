package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/pkg/domain"
	"golang.org/x/sync/singleflight"
)

// Default session lifetimes and timeouts.
const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultRememberMeTTL = 30 * 24 * time.Hour
	DefaultCacheTTL      = 15 * time.Minute
	DefaultStoreTimeout  = 2 * time.Second
	DefaultCacheTimeout  = 150 * time.Millisecond
	DefaultMaxExtend     = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	DefaultTTL    time.Duration
	RememberMeTTL time.Duration
	// SingleSession invalidates a user's other sessions on login.
	SingleSession bool
	SlotScope     domain.SlotScope
	CacheTTL      time.Duration
	StoreTimeout  time.Duration
	CacheTimeout  time.Duration
	MaxExtend     time.Duration
}

// DefaultSessionConfig returns the configuration used when nothing is
// overridden.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultTTL:    DefaultSessionTTL,
		RememberMeTTL: DefaultRememberMeTTL,
		SingleSession: true,
		SlotScope:     domain.SlotScopeAll,
		CacheTTL:      DefaultCacheTTL,
		StoreTimeout:  DefaultStoreTimeout,
		CacheTimeout:  DefaultCacheTimeout,
		MaxExtend:     DefaultMaxExtend,
	}
}

// SessionManager implements the session lifecycle on top of a store and a
// cache. It keeps no session state of its own and is safe for concurrent
// use.
type SessionManager struct {
	config SessionConfig
	codec  *TokenCodec
	hasher *TokenHasher
	store  SessionStore
	cache  SessionCache
	logger *slog.Logger
	now    func() time.Time

	// coalesces concurrent store reads for the same token hash
	reads singleflight.Group
	// hashes whose cache revocation has not gone through yet
	unpurged purgeBacklog
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithClock overrides the manager clock.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a new session manager.
func NewSessionManager(config SessionConfig, codec *TokenCodec, hasher *TokenHasher, store SessionStore, cache SessionCache, logger *slog.Logger, opts ...ManagerOption) *SessionManager {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = DefaultSessionTTL
	}
	if config.RememberMeTTL == 0 {
		config.RememberMeTTL = DefaultRememberMeTTL
	}
	if config.SlotScope == "" {
		config.SlotScope = domain.SlotScopeAll
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.StoreTimeout == 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	if config.CacheTimeout == 0 {
		config.CacheTimeout = DefaultCacheTimeout
	}
	if config.MaxExtend == 0 {
		config.MaxExtend = DefaultMaxExtend
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &SessionManager{
		config: config,
		codec:  codec,
		hasher: hasher,
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *SessionManager) Config() SessionConfig {
	return m.config
}

// TTL returns the session lifetime for the remember-me choice.
func (m *SessionManager) TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return m.config.RememberMeTTL
	}
	return m.config.DefaultTTL
}

// CreateSessionInput is the identity resolved by the authenticator plus
// the request details captured at login.
type CreateSessionInput struct {
	UserID     uuid.UUID
	Email      string
	Name       string
	Device     domain.DeviceInfo
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// CreateSessionResult is returned by CreateSingleSession.
type CreateSessionResult struct {
	SessionID        uuid.UUID
	SessionToken     string
	ExpiresAt        time.Time
	InvalidatedCount int
}

// CreateSingleSession issues a new session for the user. In single-session
// mode the user's other active sessions are invalidated in the same
// atomic store operation that inserts the new one.
func (m *SessionManager) CreateSingleSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", domain.ErrInvalidRequest)
	}

	ttl := m.TTL(in.RememberMe)
	sessionID := uuid.New()
	token, err := m.codec.Sign(TokenClaims{
		Subject:   in.UserID.String(),
		SessionID: sessionID.String(),
	}, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	hash := m.hasher.Hash(token)

	device := in.Device
	if device.Browser == "" || device.Platform == "" {
		device = domain.UnknownDevice
	}
	ip := in.IPAddress
	if ip == "" {
		ip = UnknownIP
	}

	now := m.now()
	session := &domain.Session{
		ID:         sessionID,
		UserID:     in.UserID,
		TokenHash:  hash,
		Device:     device,
		IPAddress:  ip,
		UserAgent:  in.UserAgent,
		RememberMe: in.RememberMe,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Status:     domain.SessionActive,
	}

	var invalidated []domain.InvalidatedSession
	err = m.withStore(ctx, func(ctx context.Context) error {
		if !m.config.SingleSession {
			return m.store.Insert(ctx, session)
		}
		var err error
		invalidated, err = m.store.CreateSingle(ctx, session, m.config.SlotScope)
		return err
	})
	if err != nil {
		return nil, storeError("create session", err)
	}

	for _, old := range invalidated {
		m.cacheRevoke(ctx, old.TokenHash)
	}
	m.cachePut(ctx, hash, session)

	m.logger.Info("session created",
		"user_id", in.UserID,
		"session_id", sessionID,
		"remember_me", in.RememberMe,
		"invalidated_count", len(invalidated),
	)

	return &CreateSessionResult{
		SessionID:        sessionID,
		SessionToken:     token,
		ExpiresAt:        session.ExpiresAt,
		InvalidatedCount: len(invalidated),
	}, nil
}

// ValidationResult is returned by ValidateSession. UserID, SessionID and
// Session are set only when Valid is true.
type ValidationResult struct {
	Valid     bool
	UserID    uuid.UUID
	SessionID uuid.UUID
	Session   *domain.Session
}

// ValidateSession checks a bearer token against the codec and the session
// record. A session store failure is returned as domain.ErrStoreUnavailable;
// every other rejection is a result with Valid false.
func (m *SessionManager) ValidateSession(ctx context.Context, token string) (ValidationResult, error) {
	if token == "" {
		return ValidationResult{}, nil
	}

	claims, err := m.codec.Verify(token)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTokenExpired):
		// The store's expires_at is authoritative once ExtendSession has
		// moved it past the token's exp.
	default:
		m.logger.Debug("session token rejected", "error", err)
		return ValidationResult{}, nil
	}

	hash := m.hasher.Hash(token)
	session, fromStore, err := m.lookup(ctx, hash)
	if err == nil && !fromStore && !session.IsActive(m.now()) {
		// A cached copy can predate an extend; the store decides.
		m.cacheInvalidate(ctx, hash)
		session, err = m.load(ctx, hash)
		fromStore = true
	}
	if errors.Is(err, domain.ErrSessionNotFound) {
		return ValidationResult{}, nil
	}
	if err != nil {
		return ValidationResult{}, err
	}

	if !session.IsActive(m.now()) {
		return ValidationResult{}, nil
	}
	if claims != nil && (claims.Subject != session.UserID.String() || claims.SessionID != session.ID.String()) {
		m.logger.Warn("session token does not match its record",
			"session_id", session.ID,
			"hash_prefix", hashPrefix(hash),
		)
		return ValidationResult{}, nil
	}

	if fromStore {
		m.cachePut(ctx, hash, session)
	}

	return ValidationResult{
		Valid:     true,
		UserID:    session.UserID,
		SessionID: session.ID,
		Session:   session,
	}, nil
}

// ExtendResult is returned by ExtendSession. ExtendedBy is in minutes and
// is zero when the session already outlived the requested expiry.
type ExtendResult struct {
	ExtendedBy   int
	NewExpiresAt time.Time
}

// ExtendSession moves the session's expiry to now plus extendMinutes.
// Expiry never moves backwards.
func (m *SessionManager) ExtendSession(ctx context.Context, token string, extendMinutes int) (*ExtendResult, error) {
	extendBy := time.Duration(extendMinutes) * time.Minute
	if extendMinutes < 1 || extendBy > m.config.MaxExtend {
		return nil, fmt.Errorf("%w: extend minutes must be between 1 and %d", domain.ErrInvalidRequest, int(m.config.MaxExtend/time.Minute))
	}

	res, err := m.ValidateSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, domain.ErrInvalidSession
	}

	newExpiresAt := m.now().Add(extendBy)
	var updated bool
	err = m.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = m.store.UpdateExpiry(ctx, res.SessionID, newExpiresAt)
		return err
	})
	if err != nil {
		return nil, storeError("extend session", err)
	}

	hash := m.hasher.Hash(token)
	m.cacheInvalidate(ctx, hash)

	if updated {
		m.logger.Info("session extended", "session_id", res.SessionID, "new_expires_at", newExpiresAt)
		return &ExtendResult{ExtendedBy: extendMinutes, NewExpiresAt: newExpiresAt}, nil
	}

	// Not updated: either the session died in the meantime or its
	// expiry is already later than requested.
	var current *domain.Session
	err = m.withStore(ctx, func(ctx context.Context) error {
		var err error
		current, err = m.store.FindByTokenHash(ctx, hash)
		return err
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.ErrInvalidSession
	}
	if err != nil {
		return nil, storeError("extend session", err)
	}
	if !current.IsActive(m.now()) {
		return nil, domain.ErrInvalidSession
	}
	return &ExtendResult{ExtendedBy: 0, NewExpiresAt: current.ExpiresAt}, nil
}

// InvalidateSession marks the token's session invalidated. It reports
// whether an active session was found. Tokens that no longer verify are
// still resolved by hash so expired sessions can be logged out.
func (m *SessionManager) InvalidateSession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	hash := m.hasher.Hash(token)

	var session *domain.Session
	err := m.withStore(ctx, func(ctx context.Context) error {
		var err error
		session, err = m.store.FindByTokenHash(ctx, hash)
		return err
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		m.cacheRevoke(ctx, hash)
		return false, nil
	}
	if err != nil {
		return false, storeError("invalidate session", err)
	}

	if session.Status != domain.SessionActive {
		m.cacheRevoke(ctx, hash)
		return false, nil
	}

	var n int64
	err = m.withStore(ctx, func(ctx context.Context) error {
		var err error
		n, err = m.store.UpdateStatus(ctx, session.ID, domain.SessionInvalidated)
		return err
	})
	if err != nil {
		return false, storeError("invalidate session", err)
	}
	m.cacheRevoke(ctx, hash)

	m.logger.Info("session invalidated", "session_id", session.ID, "user_id", session.UserID)
	return n > 0, nil
}

// InvalidateUserSessions invalidates every active session of the user
// except the one exceptToken belongs to, if given. It returns the number
// of sessions invalidated.
func (m *SessionManager) InvalidateUserSessions(ctx context.Context, userID uuid.UUID, exceptToken string) (int, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("%w: missing user id", domain.ErrInvalidRequest)
	}

	var except *uuid.UUID
	if exceptToken != "" {
		var keep *domain.Session
		err := m.withStore(ctx, func(ctx context.Context) error {
			var err error
			keep, err = m.store.FindByTokenHash(ctx, m.hasher.Hash(exceptToken))
			return err
		})
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
		case err != nil:
			return 0, storeError("invalidate user sessions", err)
		case keep.UserID == userID:
			except = &keep.ID
		}
	}

	var invalidated []domain.InvalidatedSession
	err := m.withStore(ctx, func(ctx context.Context) error {
		var err error
		invalidated, err = m.store.InvalidateAllForUser(ctx, userID, except)
		return err
	})
	if err != nil {
		return 0, storeError("invalidate user sessions", err)
	}

	for _, s := range invalidated {
		m.cacheRevoke(ctx, s.TokenHash)
	}
	if except == nil {
		m.cacheInvalidateUser(ctx, userID)
	}

	m.logger.Info("user sessions invalidated",
		"user_id", userID,
		"kept_current", except != nil,
		"invalidated_count", len(invalidated),
	)
	return len(invalidated), nil
}

// GetUserActiveSessions lists the user's active sessions, most recent
// first. It always reads the store.
func (m *SessionManager) GetUserActiveSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := m.withStore(ctx, func(ctx context.Context) error {
		var err error
		sessions, err = m.store.FindActiveByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, storeError("list sessions", err)
	}

	now := m.now()
	active := make([]*domain.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsActive(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// lookup resolves a token hash through the cache, then the store. The
// second return value reports whether the record came from the store.
// Hashes with a failed revocation skip the cache.
func (m *SessionManager) lookup(ctx context.Context, hash string) (*domain.Session, bool, error) {
	if m.unpurged.pending(hash, m.now()) {
		m.cacheRevoke(ctx, hash)
		s, err := m.load(ctx, hash)
		return s, true, err
	}

	cctx, cancel := context.WithTimeout(ctx, m.config.CacheTimeout)
	cached, res := m.cache.Get(cctx, hash)
	cancel()
	if res.Status == CacheHit && cached != nil {
		return cached, false, nil
	}
	if res.Err != nil {
		m.logger.Warn("session cache read failed", "op", "get", "hash_prefix", hashPrefix(hash), "error", res.Err)
	}

	s, err := m.load(ctx, hash)
	return s, true, err
}

// load reads the session for hash from the store.
func (m *SessionManager) load(ctx context.Context, hash string) (*domain.Session, error) {
	v, err, _ := m.reads.Do(hash, func() (any, error) {
		// Detached from the first caller's cancellation since its
		// result is shared; still bounded by the store timeout.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.StoreTimeout)
		defer cancel()
		return m.store.FindByTokenHash(sctx, hash)
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storeError("validate session", err)
	}

	// Callers of a shared flight get their own copy.
	session := *v.(*domain.Session)
	return &session, nil
}

func (m *SessionManager) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

// cacheTTL is the configured TTL capped at the session's remaining
// lifetime.
func (m *SessionManager) cacheTTL(s *domain.Session) time.Duration {
	remaining := s.ExpiresAt.Sub(m.now())
	if remaining < m.config.CacheTTL {
		return remaining
	}
	return m.config.CacheTTL
}

func (m *SessionManager) cachePut(ctx context.Context, hash string, s *domain.Session) {
	ttl := m.cacheTTL(s)
	if ttl <= 0 || m.unpurged.pending(hash, m.now()) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.CacheTimeout)
	defer cancel()
	m.logSkipped(m.cache.Put(ctx, hash, s, ttl), "put", "hash_prefix", hashPrefix(hash))
}

func (m *SessionManager) cacheInvalidate(ctx context.Context, hash string) {
	ctx, cancel := context.WithTimeout(ctx, m.config.CacheTimeout)
	defer cancel()
	m.logSkipped(m.cache.Invalidate(ctx, hash), "invalidate", "hash_prefix", hashPrefix(hash))
}

// cacheRevoke purges a dead session's hash from the cache. If the cache
// cannot confirm the purge the hash goes on the backlog, and lookups keep
// going to the store until a later revoke succeeds or the entry lapses.
func (m *SessionManager) cacheRevoke(ctx context.Context, hash string) {
	cctx, cancel := context.WithTimeout(ctx, m.config.CacheTimeout)
	defer cancel()
	res := m.cache.Revoke(cctx, hash)
	if res.Status == CacheSkipped && res.Err != nil {
		m.unpurged.add(hash, m.now(), m.config.CacheTTL)
	} else {
		m.unpurged.remove(hash)
	}
	m.logSkipped(res, "revoke", "hash_prefix", hashPrefix(hash))
}

func (m *SessionManager) cacheInvalidateUser(ctx context.Context, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, m.config.CacheTimeout)
	defer cancel()
	m.logSkipped(m.cache.InvalidateAllForUser(ctx, userID), "invalidate_user", "user_id", userID)
}

// logSkipped records a cache call that did not take effect. Failures are
// warnings; skips by policy (no cache configured) are debug noise.
func (m *SessionManager) logSkipped(res CacheResult, op string, attrs ...any) {
	if res.Status != CacheSkipped {
		return
	}
	attrs = append([]any{"op", op}, attrs...)
	if res.Err == nil || errors.Is(res.Err, ErrCacheRevoked) {
		m.logger.Debug("session cache skipped", attrs...)
		return
	}
	m.logger.Warn("session cache skipped", append(attrs, "error", res.Err)...)
}

// storeError classifies a store failure. Anything other than a missing
// session or a rejected record means the store could not answer.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrInvalidSessionRecord):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStoreUnavailable, err))
	}
}

func hashPrefix(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
