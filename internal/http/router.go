package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-session/internal/config"
	"github.com/tendant/simple-session/internal/http/features/session"
	"github.com/tendant/simple-session/internal/http/middleware"
	"github.com/tendant/simple-session/internal/httputil"
)

// SessionService is what the routes need from the session manager.
type SessionService interface {
	session.Sessions
	middleware.SessionValidator
}

// Pinger reports whether a backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *slog.Logger
	Sessions           SessionService
	Users              session.Users
	Store              Pinger
	Cache              Pinger
	CookieConfig       httputil.CookieConfig
	InternalToken      string
	RateLimitConfig    config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	MaxRequestBodySize int64
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))
	}

	r.Get("/health", health(cfg.Store, cfg.Cache))

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	sessionHandler := session.NewHandler(cfg.Logger, cfg.Sessions, cfg.Users, cfg.CookieConfig, cfg.InternalToken)
	sessionHandler.RegisterRoutes(r, session.Routes{
		Auth:        middleware.Auth(cfg.Sessions, cfg.Logger),
		LoginLimit:  rateLimiters[middleware.LimiterLogin],
		ExtendLimit: rateLimiters[middleware.LimiterExtend],
	})

	return r
}

// health reports 503 when the store is down. A cache outage only degrades
// latency, so it is reported but keeps the status at 200.
func health(store, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok", "store": "ok", "cache": "ok"}
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unavailable"
				body["store"] = "unavailable"
			}
		}
		if cache == nil {
			body["cache"] = "disabled"
		} else if err := cache.Ping(ctx); err != nil {
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
			body["cache"] = "unavailable"
		}
		httputil.JSON(w, status, body)
	}
}
