package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/pkg/domain"
)

const sessionColumns = `id, user_id, token_hash, browser, platform, ip_address, user_agent,
		       remember_me, created_at, updated_at, expires_at, status, invalidated_at`

// SessionsRepository handles session persistence.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func insertSession(ctx context.Context, db execer, s *domain.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := db.ExecContext(ctx, query,
		s.ID, s.UserID, s.TokenHash, s.Device.Browser, s.Device.Platform, s.IPAddress, s.UserAgent,
		s.RememberMe, s.CreatedAt, s.UpdatedAt, s.ExpiresAt, string(s.Status), s.InvalidatedAt,
	)
	return err
}

func scanSession(row rowScanner) (*domain.Session, error) {
	s := &domain.Session{}
	var status string
	err := row.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.Device.Browser, &s.Device.Platform, &s.IPAddress, &s.UserAgent,
		&s.RememberMe, &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt, &status, &s.InvalidatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	return s, nil
}

// Insert persists a new session.
func (r *SessionsRepository) Insert(ctx context.Context, s *domain.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := insertSession(ctx, r.db, s); err != nil {
		return storeErr("insert session", err)
	}
	return nil
}

// CreateSingle invalidates the user's active sessions and inserts s in one
// transaction. A transaction-scoped advisory lock on the user id makes
// concurrent logins for the same user take turns, so exactly one of them
// ends up active.
func (r *SessionsRepository) CreateSingle(ctx context.Context, s *domain.Session, scope domain.SlotScope) ([]domain.InvalidatedSession, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown slot scope %q", domain.ErrInvalidRequest, scope)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin create session", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "session:"+s.UserID.String()); err != nil {
		return nil, storeErr("lock user sessions", err)
	}

	query := `
		UPDATE sessions
		SET status = 'invalidated', invalidated_at = $2, updated_at = $2
		WHERE user_id = $1 AND status = 'active'
		RETURNING id, token_hash
	`
	args := []any{s.UserID, s.CreatedAt}
	if scope == domain.SlotScopeRememberMe {
		query = `
		UPDATE sessions
		SET status = 'invalidated', invalidated_at = $2, updated_at = $2
		WHERE user_id = $1 AND status = 'active' AND remember_me = $3
		RETURNING id, token_hash
	`
		args = append(args, s.RememberMe)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("invalidate user sessions", err)
	}
	invalidated, err := scanInvalidated(rows)
	if err != nil {
		return nil, storeErr("invalidate user sessions", err)
	}

	if err := insertSession(ctx, tx, s); err != nil {
		return nil, storeErr("insert session", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit create session", err)
	}
	return invalidated, nil
}

func scanInvalidated(rows *sql.Rows) ([]domain.InvalidatedSession, error) {
	defer rows.Close()

	var out []domain.InvalidatedSession
	for rows.Next() {
		var inv domain.InvalidatedSession
		if err := rows.Scan(&inv.ID, &inv.TokenHash); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// FindByTokenHash retrieves a session by token hash, in any status.
func (r *SessionsRepository) FindByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE token_hash = $1
	`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, storeErr("find session", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("find session: %w", errors.Join(domain.ErrStoreUnavailable, err))
	}
	return s, nil
}

// FindActiveByUser retrieves the user's active, unexpired sessions, most
// recent first.
func (r *SessionsRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND status = 'active' AND expires_at > NOW()
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storeErr("list sessions", err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("list sessions: %w", errors.Join(domain.ErrStoreUnavailable, err))
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list sessions", err)
	}
	return sessions, nil
}

// UpdateStatus moves an active session to status. Only the transition to
// invalidated is allowed; repeating it affects no rows.
func (r *SessionsRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) (int64, error) {
	if status != domain.SessionInvalidated {
		return 0, fmt.Errorf("%w: sessions can only be invalidated", domain.ErrInvalidRequest)
	}
	query := `
		UPDATE sessions
		SET status = $2, invalidated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	result, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return 0, storeErr("update session status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("update session status", err)
	}
	return n, nil
}

// InvalidateAllForUser invalidates every active session of the user except
// the one with id except, when given.
func (r *SessionsRepository) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, except *uuid.UUID) ([]domain.InvalidatedSession, error) {
	keep := uuid.NullUUID{}
	if except != nil {
		keep = uuid.NullUUID{UUID: *except, Valid: true}
	}
	query := `
		UPDATE sessions
		SET status = 'invalidated', invalidated_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND status = 'active' AND ($2::uuid IS NULL OR id <> $2::uuid)
		RETURNING id, token_hash
	`
	rows, err := r.db.QueryContext(ctx, query, userID, keep)
	if err != nil {
		return nil, storeErr("invalidate user sessions", err)
	}
	invalidated, err := scanInvalidated(rows)
	if err != nil {
		return nil, storeErr("invalidate user sessions", err)
	}
	return invalidated, nil
}

// UpdateExpiry moves the expiry of an active session forward. It returns
// false if the session is missing, invalidated, or already expires at or
// after newExpiresAt.
func (r *SessionsRepository) UpdateExpiry(ctx context.Context, id uuid.UUID, newExpiresAt time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET expires_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND expires_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, id, newExpiresAt)
	if err != nil {
		return false, storeErr("extend session", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, storeErr("extend session", err)
	}
	return n > 0, nil
}

// PurgeRetained deletes sessions that were invalidated or expired before
// cutoff.
func (r *SessionsRepository) PurgeRetained(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (status = 'invalidated' AND invalidated_at < $1)
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, storeErr("purge sessions", err)
	}
	return result.RowsAffected()
}

// Ping checks that the database answers.
func (r *SessionsRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}
