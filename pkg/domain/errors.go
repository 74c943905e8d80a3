package domain

import "errors"

// Session errors
var (
	ErrAuthRequired         = errors.New("authentication required")
	ErrInvalidSession       = errors.New("invalid or expired session")
	ErrSessionNotFound      = errors.New("session not found")
	ErrStoreUnavailable     = errors.New("session store unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidSessionRecord = errors.New("invalid session record")
)

// Token errors. The token codec returns exactly one of these for any
// token it refuses.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// User errors
var (
	ErrUserNotFound = errors.New("user not found")
)
