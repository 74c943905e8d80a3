package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const tokenHashInfo = "simple-session token hash v1"

// TokenHasher computes the one-way digest stored in place of a token.
// The HMAC key is derived from the signing secret so a leaked sessions
// table cannot be matched against guessed tokens without the secret.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher derives a hashing key from secret.
func NewTokenHasher(secret []byte) (*TokenHasher, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLen)
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, secret, nil, []byte(tokenHashInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive token hash key: %w", err)
	}
	return &TokenHasher{key: key}, nil
}

// Hash returns the hex digest of token.
func (h *TokenHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
