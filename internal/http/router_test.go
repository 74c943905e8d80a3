package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-session/internal/config"
	"github.com/tendant/simple-session/internal/httputil"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/domain"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type stubSessions struct {
	valid auth.ValidationResult
}

func (s *stubSessions) ValidateSession(context.Context, string) (auth.ValidationResult, error) {
	return s.valid, nil
}

func (s *stubSessions) CreateSingleSession(_ context.Context, in auth.CreateSessionInput) (*auth.CreateSessionResult, error) {
	return &auth.CreateSessionResult{SessionID: uuid.New(), SessionToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubSessions) ExtendSession(context.Context, string, int) (*auth.ExtendResult, error) {
	return nil, domain.ErrInvalidSession
}

func (s *stubSessions) InvalidateSession(context.Context, string) (bool, error) { return true, nil }

func (s *stubSessions) InvalidateUserSessions(context.Context, uuid.UUID, string) (int, error) {
	return 0, nil
}

func (s *stubSessions) GetUserActiveSessions(context.Context, uuid.UUID) ([]*domain.Session, error) {
	return nil, nil
}

type stubUsers struct{}

func (stubUsers) Remember(_ context.Context, id uuid.UUID, email, _ string) (*domain.User, error) {
	return &domain.User{ID: id, Email: email}, nil
}

func newTestRouter(store, cache Pinger, sessions *stubSessions) http.Handler {
	return NewRouter(RouterConfig{
		Sessions:           sessions,
		Users:              stubUsers{},
		Store:              store,
		Cache:              cache,
		CookieConfig:       httputil.DefaultCookieConfig(),
		InternalToken:      "internal",
		RateLimitConfig:    config.RateLimitConfig{Enabled: true, LoginRequests: 1, LoginWindow: time.Minute, ExtendRequests: 5, ExtendWindow: time.Minute},
		SecurityHeaders:    config.SecurityHeadersConfig{Enabled: true, ContentTypeOptions: "nosniff"},
		MaxRequestBodySize: 1024,
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		cache      Pinger
		wantStatus int
		wantBody   map[string]string
	}{
		{
			name:       "all up",
			store:      pinger{},
			cache:      pinger{},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"status": "ok", "store": "ok", "cache": "ok"},
		},
		{
			name:       "cache down",
			store:      pinger{},
			cache:      pinger{err: errors.New("refused")},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"status": "degraded", "store": "ok", "cache": "unavailable"},
		},
		{
			name:       "no cache",
			store:      pinger{},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"status": "ok", "store": "ok", "cache": "disabled"},
		},
		{
			name:       "store down",
			store:      pinger{err: errors.New("refused")},
			cache:      pinger{},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]string{"status": "unavailable", "store": "unavailable", "cache": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.store, tt.cache, &stubSessions{})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(rec.Body).Decode(&body)
			for k, v := range tt.wantBody {
				if body[k] != v {
					t.Errorf("%s = %q, want %q", k, body[k], v)
				}
			}
			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("security headers not applied: %q", got)
			}
		})
	}
}

func TestRouter_SessionRoutes(t *testing.T) {
	router := newTestRouter(pinger{}, nil, &stubSessions{})

	// list requires a valid session
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /v1/sessions = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// create is guarded by the internal token and rate limited
	body := `{"user_id": "` + uuid.NewString() + `", "email": "a@example.com"}`
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(body))
	req.Header.Set("X-Internal-Token", "internal")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /v1/sessions = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(body))
	req.Header.Set("X-Internal-Token", "internal")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second POST /v1/sessions = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// extend with a rejected session
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/extend", bytes.NewBufferString(`{"extend_minutes": 10}`))
	req.Header.Set("Authorization", "Bearer anything")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /v1/sessions/extend = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_BodyTooLarge(t *testing.T) {
	router := newTestRouter(pinger{}, nil, &stubSessions{})

	big := `{"user_id": "` + uuid.NewString() + `", "email": "a@example.com", "name": "` + string(bytes.Repeat([]byte("x"), 2048)) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(big))
	req.Header.Set("X-Internal-Token", "internal")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}
