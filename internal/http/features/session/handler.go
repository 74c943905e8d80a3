package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tendant/simple-session/internal/http/middleware"
	"github.com/tendant/simple-session/internal/httputil"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/domain"
)

// InternalTokenHeader carries the shared secret of the trusted authenticator.
const InternalTokenHeader = "X-Internal-Token"

// Sessions is the session lifecycle used by the handler.
type Sessions interface {
	CreateSingleSession(ctx context.Context, in auth.CreateSessionInput) (*auth.CreateSessionResult, error)
	ExtendSession(ctx context.Context, token string, extendMinutes int) (*auth.ExtendResult, error)
	InvalidateSession(ctx context.Context, token string) (bool, error)
	InvalidateUserSessions(ctx context.Context, userID uuid.UUID, exceptToken string) (int, error)
	GetUserActiveSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
}

// Users records the identities handed over at login.
type Users interface {
	Remember(ctx context.Context, id uuid.UUID, email, name string) (*domain.User, error)
}

// Handler handles session endpoints.
type Handler struct {
	logger        *slog.Logger
	sessions      Sessions
	users         Users
	cookieConfig  httputil.CookieConfig
	internalToken string
	validate      *validator.Validate
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, sessions Sessions, users Users, cookieConfig httputil.CookieConfig, internalToken string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		sessions:      sessions,
		users:         users,
		cookieConfig:  cookieConfig,
		internalToken: internalToken,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateRequest is sent by the authenticator once it has verified the user.
type CreateRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	Email      string `json:"email" validate:"required,email,max=320"`
	Name       string `json:"name" validate:"max=200"`
	RememberMe bool   `json:"remember_me"`

	// End-user client details for authenticators that call server to
	// server. When empty they are taken from this request's headers.
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`
	UserAgent string `json:"user_agent" validate:"max=1024"`
}

// CreateResponse is returned after a session is issued.
type CreateResponse struct {
	SessionToken     string    `json:"session_token"`
	SessionID        string    `json:"session_id"`
	InvalidatedCount int       `json:"invalidated_count"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// ExtendRequest asks for the session to live extend_minutes from now.
type ExtendRequest struct {
	ExtendMinutes int `json:"extend_minutes" validate:"required,min=1"`
}

// ExtendResponse reports the new expiry.
type ExtendResponse struct {
	ExtendedBy   int       `json:"extended_by"`
	NewExpiresAt time.Time `json:"new_expires_at"`
}

// DeviceInfo is the coarse device descriptor shown to the user.
type DeviceInfo struct {
	Browser  string `json:"browser"`
	Platform string `json:"platform"`
}

// SessionView is one entry of the active session list.
type SessionView struct {
	SessionID    string     `json:"session_id"`
	DeviceInfo   DeviceInfo `json:"device_info"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Current      bool       `json:"current"`
}

// InvalidateResponse reports how many sessions were invalidated.
type InvalidateResponse struct {
	InvalidatedCount int `json:"invalidated_count"`
}

// Create issues a session for an authenticated user.
// POST /v1/sessions
//
// Called by the authenticator after it has verified credentials. In
// single-session mode every other session of the user is invalidated.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.trusted(r) {
		httputil.Error(w, http.StatusUnauthorized, "invalid internal token")
		return
	}

	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := uuid.MustParse(req.UserID)

	user, err := h.users.Remember(r.Context(), userID, req.Email, req.Name)
	if err != nil {
		h.writeError(w, r, "failed to record user", err)
		return
	}

	device := auth.DeviceFromRequest(r)
	if req.IPAddress != "" {
		device.IPAddress = req.IPAddress
	}
	if req.UserAgent != "" {
		device = device.WithUserAgent(req.UserAgent)
	}
	result, err := h.sessions.CreateSingleSession(r.Context(), auth.CreateSessionInput{
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.DisplayName(),
		Device:     device.Device,
		IPAddress:  device.IPAddress,
		UserAgent:  device.UserAgent,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		h.writeError(w, r, "failed to create session", err)
		return
	}

	httputil.SetSessionCookie(w, result.SessionToken, time.Until(result.ExpiresAt), h.cookieConfig)
	httputil.JSON(w, http.StatusCreated, CreateResponse{
		SessionToken:     result.SessionToken,
		SessionID:        result.SessionID.String(),
		InvalidatedCount: result.InvalidatedCount,
		ExpiresAt:        result.ExpiresAt,
	})
}

// List returns the current user's active sessions.
// GET /v1/sessions
// Requires authentication
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	currentID, _ := middleware.GetSessionID(r.Context())

	sessions, err := h.sessions.GetUserActiveSessions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "failed to list sessions", err)
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, SessionView{
			SessionID:    s.ID.String(),
			DeviceInfo:   DeviceInfo{Browser: s.Device.Browser, Platform: s.Device.Platform},
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.UpdatedAt,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == currentID,
		})
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// InvalidateAll invalidates the user's sessions.
// DELETE /v1/sessions?action=all|others
// Requires authentication
//
// "all" includes the current session and clears the cookie. "others"
// keeps the current session.
func (h *Handler) InvalidateAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var exceptToken string
	action := r.URL.Query().Get("action")
	switch action {
	case "all":
	case "others":
		exceptToken, _ = middleware.GetToken(r.Context())
	default:
		httputil.Error(w, http.StatusBadRequest, "action must be all or others")
		return
	}

	count, err := h.sessions.InvalidateUserSessions(r.Context(), userID, exceptToken)
	if err != nil {
		h.writeError(w, r, "failed to invalidate sessions", err)
		return
	}

	if action == "all" {
		httputil.ClearSessionCookie(w, h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, InvalidateResponse{InvalidatedCount: count})
}

// Extend pushes the current session's expiry forward.
// POST /v1/sessions/extend
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.SessionToken(r)
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing authorization")
		return
	}

	var req ExtendRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.sessions.ExtendSession(r.Context(), token, req.ExtendMinutes)
	if err != nil {
		h.writeError(w, r, "failed to extend session", err)
		return
	}

	// Only web clients carry the cookie; re-set it so the browser keeps
	// it as long as the session lives.
	if _, fromCookie := httputil.GetSessionTokenFromCookie(r); fromCookie {
		httputil.SetSessionCookie(w, token, time.Until(result.NewExpiresAt), h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, ExtendResponse{
		ExtendedBy:   result.ExtendedBy,
		NewExpiresAt: result.NewExpiresAt,
	})
}

// Logout invalidates the current session only.
// POST /v1/sessions/logout
//
// Responds 204 for stale and unknown tokens alike, so the response says
// nothing about whether a token existed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := httputil.SessionToken(r); ok {
		if _, err := h.sessions.InvalidateSession(r.Context(), token); err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				h.writeError(w, r, "failed to logout", err)
				return
			}
			h.logger.Warn("logout failed", "error", err)
		}
	}

	httputil.ClearSessionCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) trusted(r *http.Request) bool {
	if h.internalToken == "" {
		return true
	}
	got := r.Header.Get(InternalTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) == 1
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if middleware.HandleMaxBytesError(w, err) {
			return false
		}
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid "+verrs[0].Field())
			return false
		}
		httputil.Error(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		httputil.Error(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, domain.ErrAuthRequired), errors.Is(err, domain.ErrInvalidSession):
		httputil.Error(w, http.StatusUnauthorized, "invalid or expired session")
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Error(msg, "path", r.URL.Path, "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, "session store unavailable")
	default:
		h.logger.Error(msg, "path", r.URL.Path, "error", err)
		httputil.Error(w, http.StatusInternalServerError, msg)
	}
}
