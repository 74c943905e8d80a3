package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-session/pkg/domain"
)

var testSecret = []byte("test-secret-key-that-is-at-least-32-bytes")

func newTestCodec(t *testing.T, now func() time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, "simple-session", WithTokenClock(now))
	if err != nil {
		t.Fatalf("NewTokenCodec failed: %v", err)
	}
	return codec
}

func TestNewTokenCodec_ShortSecret(t *testing.T) {
	if _, err := NewTokenCodec([]byte("short"), "simple-session"); err == nil {
		t.Error("NewTokenCodec should reject a short secret")
	}
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })

	token, err := codec.Sign(TokenClaims{Subject: "user-1", SessionID: "session-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "user-1")
	}
	if claims.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", claims.SessionID, "session-1")
	}
	if !claims.IssuedAt.Equal(now) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, now)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, now.Add(time.Hour))
	}
}

func TestTokenCodec_Deterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })

	a, _ := codec.Sign(TokenClaims{Subject: "user-1", SessionID: "s"}, time.Hour)
	b, _ := codec.Sign(TokenClaims{Subject: "user-1", SessionID: "s"}, time.Hour)
	if a != b {
		t.Error("Sign should be deterministic for identical inputs and time")
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	codec := newTestCodec(t, func() time.Time { return clock })

	token, err := codec.Sign(TokenClaims{Subject: "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if _, err := codec.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	now := time.Now
	codec := newTestCodec(t, now)
	other, err := NewTokenCodec([]byte("another-secret-key-that-is-32-bytes-long"), "simple-session")
	if err != nil {
		t.Fatalf("NewTokenCodec failed: %v", err)
	}

	token, _ := other.Sign(TokenClaims{Subject: "user-1"}, time.Hour)
	if _, err := codec.Verify(token); !errors.Is(err, domain.ErrTokenSignature) {
		t.Errorf("Verify() error = %v, want ErrTokenSignature", err)
	}
}

func TestTokenCodec_WrongIssuer(t *testing.T) {
	codec := newTestCodec(t, time.Now)
	other, _ := NewTokenCodec(testSecret, "someone-else")

	token, _ := other.Sign(TokenClaims{Subject: "user-1"}, time.Hour)
	if _, err := codec.Verify(token); !errors.Is(err, domain.ErrTokenSignature) {
		t.Errorf("Verify() error = %v, want ErrTokenSignature", err)
	}
}

func TestTokenCodec_RejectsNoneAlgorithm(t *testing.T) {
	codec := newTestCodec(t, time.Now)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "simple-session",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := codec.Verify(s); err == nil {
		t.Error("Verify should reject alg=none")
	}
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := newTestCodec(t, time.Now)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"bad base64", "!!!.@@@.###"},
		{"bad json", "e30.bm90LWpzb24.c2ln"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token)
			if !errors.Is(err, domain.ErrTokenMalformed) {
				t.Errorf("Verify(%q) error = %v, want ErrTokenMalformed", tt.token, err)
			}
		})
	}
}

func TestTokenCodec_SingleByteMutation(t *testing.T) {
	codec := newTestCodec(t, time.Now)

	token, err := codec.Sign(TokenClaims{Subject: "user-1", SessionID: "session-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	replacements := []byte{'A', 'B', 'x', '-', '_', '0'}
	for i := 0; i < len(token); i++ {
		for _, c := range replacements {
			if token[i] == c {
				continue
			}
			mutated := token[:i] + string(c) + token[i+1:]

			_, err := codec.Verify(mutated)
			if err == nil {
				t.Fatalf("mutation at %d (%q) verified successfully", i, c)
			}
			if !errors.Is(err, domain.ErrTokenSignature) && !errors.Is(err, domain.ErrTokenMalformed) {
				t.Fatalf("mutation at %d: error = %v, want signature or malformed", i, err)
			}
		}
	}
}

func TestTokenCodec_SignRejectsBadInput(t *testing.T) {
	codec := newTestCodec(t, time.Now)

	if _, err := codec.Sign(TokenClaims{}, time.Hour); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Sign with empty subject error = %v, want ErrInvalidRequest", err)
	}
	if _, err := codec.Sign(TokenClaims{Subject: "u"}, 0); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Sign with zero ttl error = %v, want ErrInvalidRequest", err)
	}
}

func TestTokenHasher(t *testing.T) {
	h, err := NewTokenHasher(testSecret)
	if err != nil {
		t.Fatalf("NewTokenHasher failed: %v", err)
	}

	a := h.Hash("token-a")
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
	if a != h.Hash("token-a") {
		t.Error("Hashing the same token should produce the same hash")
	}
	if a == h.Hash("token-b") {
		t.Error("Different tokens should produce different hashes")
	}
	if strings.Contains(a, "token-a") {
		t.Error("Hash should not contain the raw token")
	}

	other, _ := NewTokenHasher([]byte("another-secret-key-that-is-32-bytes-long"))
	if a == other.Hash("token-a") {
		t.Error("Hashes should depend on the secret")
	}

	if _, err := NewTokenHasher([]byte("short")); err == nil {
		t.Error("NewTokenHasher should reject a short secret")
	}
}
