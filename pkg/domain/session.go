package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

// Session statuses. The only allowed transition is Active -> Invalidated.
const (
	SessionActive      SessionStatus = "active"
	SessionInvalidated SessionStatus = "invalidated"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	return s == SessionActive || s == SessionInvalidated
}

// DeviceInfo is the coarse device descriptor captured at login.
type DeviceInfo struct {
	Browser  string `json:"browser" validate:"required,max=64"`
	Platform string `json:"platform" validate:"required,max=64"`
}

// UnknownDevice is returned when a user agent cannot be classified.
var UnknownDevice = DeviceInfo{Browser: "unknown", Platform: "unknown"}

// Session represents an authentication session.
type Session struct {
	ID            uuid.UUID     `json:"id" validate:"required"`
	UserID        uuid.UUID     `json:"user_id" validate:"required"`
	TokenHash     string        `json:"token_hash" validate:"required,hexadecimal,len=64"`
	Device        DeviceInfo    `json:"device"`
	IPAddress     string        `json:"ip_address" validate:"required,max=64"`
	UserAgent     string        `json:"user_agent" validate:"max=1024"`
	RememberMe    bool          `json:"remember_me"`
	CreatedAt     time.Time     `json:"created_at" validate:"required"`
	UpdatedAt     time.Time     `json:"updated_at" validate:"required"`
	ExpiresAt     time.Time     `json:"expires_at" validate:"required"`
	Status        SessionStatus `json:"status" validate:"required,oneof=active invalidated"`
	InvalidatedAt *time.Time    `json:"invalidated_at,omitempty"`
}

var sessionValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every required field is present and consistent.
// Stores call it on the way in and on the way out so that a malformed
// row is rejected instead of silently defaulted.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSessionRecord)
	}
	if err := sessionValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSessionRecord, err)
	}
	if s.ID == uuid.Nil || s.UserID == uuid.Nil {
		return fmt.Errorf("%w: nil id", ErrInvalidSessionRecord)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("%w: expires_at must be after created_at", ErrInvalidSessionRecord)
	}
	if s.Status == SessionInvalidated && s.InvalidatedAt == nil {
		return fmt.Errorf("%w: invalidated session without invalidated_at", ErrInvalidSessionRecord)
	}
	return nil
}

// IsActive reports whether the session is active and unexpired at now.
func (s *Session) IsActive(now time.Time) bool {
	if s.Status != SessionActive {
		return false
	}
	return now.Before(s.ExpiresAt)
}

// InvalidatedSession identifies a session that was just invalidated, so
// callers can purge derived copies of it.
type InvalidatedSession struct {
	ID        uuid.UUID
	TokenHash string
}

// SlotScope controls which of a user's sessions compete for the single
// active slot.
type SlotScope string

const (
	// SlotScopeAll puts every session of a user in one slot.
	SlotScopeAll SlotScope = "all"
	// SlotScopeRememberMe keeps remember-me and default sessions in
	// separate slots.
	SlotScopeRememberMe SlotScope = "per_remember_me"
)

// Valid reports whether s is a known scope.
func (s SlotScope) Valid() bool {
	return s == SlotScopeAll || s == SlotScopeRememberMe
}
