// Package session embeds the session lifecycle into a host application.
//
// Setup:
//
//  1. Apply the migrations (simple-session migrate up)
//  2. Create a Service and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/chat?sslmode=disable")
//
//	sessions, err := session.New(session.Config{
//	    DB:     db,
//	    Secret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", sessions.Router())
//	r.With(sessions.AuthMiddleware()).Get("/chat", chatHandler)
//
// With a Redis cache:
//
//	sessions, err := session.New(session.Config{
//	    DB:     db,
//	    Redis:  redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    Secret: "your-secret-key-at-least-32-chars",
//	})
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	sessionfeature "github.com/tendant/simple-session/internal/http/features/session"
	"github.com/tendant/simple-session/internal/http/middleware"
	"github.com/tendant/simple-session/internal/httputil"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/cache"
	"github.com/tendant/simple-session/pkg/domain"
	"github.com/tendant/simple-session/pkg/repository"
)

// Config holds the configuration for an embedded session service.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// Redis enables the session cache (optional).
	Redis *redis.Client

	// Secret signs session tokens (required, min 32 bytes).
	Secret string

	// Issuer is the issuer claim in session tokens (default: "simple-session").
	Issuer string

	// Session overrides lifetimes and timeouts. The zero value selects
	// auth.DefaultSessionConfig; otherwise zero durations use defaults.
	Session auth.SessionConfig

	// Cookie configures the session cookie (default: Secure, SameSite=Lax).
	Cookie *httputil.CookieConfig

	// InternalToken, when set, must accompany session creation requests.
	InternalToken string

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Service is an embedded session service.
type Service struct {
	config   Config
	store    *repository.SessionsRepository
	cache    auth.SessionCache
	manager  *auth.SessionManager
	users    *auth.UserDirectory
	handler  *sessionfeature.Handler
	authMidd func(http.Handler) http.Handler
}

// New creates a session service. It returns an error if the required
// tables don't exist.
func New(cfg Config) (*Service, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validateSchema(cfg.DB); err != nil {
		return nil, err
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.Secret), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	hasher, err := auth.NewTokenHasher([]byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	var sessionCache auth.SessionCache = cache.NoopCache{}
	if cfg.Redis != nil {
		sessionCache = cache.NewSessionCacheWithConfig(cfg.Redis, cache.DefaultPrefix, cfg.Session.CacheTTL)
	}

	store := repository.NewSessionsRepository(cfg.DB)
	manager := auth.NewSessionManager(cfg.Session, codec, hasher, store, sessionCache, cfg.Logger)
	users := auth.NewUserDirectory(repository.NewUsersRepository(cfg.DB), sessionCache, manager.Config(), cfg.Logger)

	return &Service{
		config:   cfg,
		store:    store,
		cache:    sessionCache,
		manager:  manager,
		users:    users,
		handler:  sessionfeature.NewHandler(cfg.Logger, manager, users, *cfg.Cookie, cfg.InternalToken),
		authMidd: middleware.Auth(manager, cfg.Logger),
	}, nil
}

// Router returns a chi router with the session routes.
//
// Routes:
//
//	POST   /v1/sessions           - Create a session (internal token if configured)
//	GET    /v1/sessions           - List active sessions (protected)
//	DELETE /v1/sessions?action=   - Invalidate all or other sessions (protected)
//	POST   /v1/sessions/extend    - Extend the current session
//	POST   /v1/sessions/logout    - Invalidate the current session
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(s.config.Logger))

	pass := middleware.NoRateLimit()
	s.handler.RegisterRoutes(r, sessionfeature.Routes{
		Auth:        s.authMidd,
		LoginLimit:  pass,
		ExtendLimit: pass,
	})
	return r
}

// Manager returns the session manager for direct use.
func (s *Service) Manager() *auth.SessionManager {
	return s.manager
}

// AuthMiddleware returns middleware that requires a valid session.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(sessions.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (s *Service) AuthMiddleware() func(http.Handler) http.Handler {
	return s.authMidd
}

// GetUserID extracts the user ID from a request.
// Use after AuthMiddleware.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetUserID(r.Context())
}

// GetSessionID extracts the current session ID from a request.
// Use after AuthMiddleware.
func GetSessionID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetSessionID(r.Context())
}

// GetUser returns the authenticated user.
// Use after AuthMiddleware.
func (s *Service) GetUser(r *http.Request) (*domain.User, error) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		return nil, domain.ErrAuthRequired
	}
	return s.users.Get(r.Context(), id)
}

// HealthHandler reports whether the store answers.
func (s *Service) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Routes registers the session routes on an http.ServeMux under prefix.
func (s *Service) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, s.Router()))
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("session: DB is required")
	}
	if cfg.Secret == "" {
		return errors.New("session: Secret is required")
	}
	if len(cfg.Secret) < auth.MinSecretLen {
		return fmt.Errorf("session: Secret must be at least %d bytes", auth.MinSecretLen)
	}
	if cfg.Session.SlotScope != "" && !cfg.Session.SlotScope.Valid() {
		return fmt.Errorf("session: unknown slot scope %q", cfg.Session.SlotScope)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Session == (auth.SessionConfig{}) {
		cfg.Session = auth.DefaultSessionConfig()
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "simple-session"
	}
	if cfg.Cookie == nil {
		c := httputil.DefaultCookieConfig()
		cfg.Cookie = &c
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{"users", "sessions"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(context.Background(), query, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session: missing table '%s' - run migrations first", table)
		}
		if err != nil {
			return fmt.Errorf("session: failed to check schema: %w", err)
		}
	}

	return nil
}
