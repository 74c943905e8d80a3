package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/internal/httputil"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/domain"
)

type contextKey string

const (
	// UserIDKey is the context key for the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// SessionIDKey is the context key for the current session ID.
	SessionIDKey contextKey = "session_id"
	// SessionKey is the context key for the current session record.
	SessionKey contextKey = "session"
	// TokenKey is the context key for the raw session token.
	TokenKey contextKey = "session_token"
)

// SessionValidator validates session tokens.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (auth.ValidationResult, error)
}

// Auth creates middleware that requires a valid session.
// Checks Authorization header first, then falls back to cookie for web clients.
func Auth(sessions SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httputil.SessionToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			result, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrStoreUnavailable) {
					logger.Error("session validation unavailable", "path", r.URL.Path, "error", err)
					httputil.Error(w, http.StatusServiceUnavailable, "session store unavailable")
					return
				}
				logger.Error("session validation failed", "path", r.URL.Path, "error", err)
				httputil.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !result.Valid {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			// Drift is only logged; the session stays valid.
			if result.Session != nil {
				if drifted, reason := auth.DetectDrift(result.Session, auth.DeviceFromRequest(r)); drifted {
					logger.Info("session fingerprint drift",
						"session_id", result.SessionID,
						"user_id", result.UserID,
						"reason", reason,
					)
				}
			}

			ctx := context.WithValue(r.Context(), UserIDKey, result.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, result.SessionID)
			ctx = context.WithValue(ctx, SessionKey, result.Session)
			ctx = context.WithValue(ctx, TokenKey, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the user ID from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetSessionID extracts the current session ID from the request context.
func GetSessionID(ctx context.Context) (uuid.UUID, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(uuid.UUID)
	return sessionID, ok
}

// GetSession extracts the current session record from the request context.
func GetSession(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	return s, ok && s != nil
}

// GetToken extracts the raw session token from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
