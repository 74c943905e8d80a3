package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-session/internal/httputil"
	"github.com/tendant/simple-session/pkg/auth"
	"github.com/tendant/simple-session/pkg/domain"
	"github.com/tendant/simple-session/pkg/repository"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr    string        `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"15s"`

	// Logging
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBDriver        string        `env:"DB_DRIVER" envDefault:"postgres"`
	DBMaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns  int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnectWithin time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`

	// Redis (optional)
	RedisURL             string        `env:"REDIS_URL"`
	RedisConnectAttempts int           `env:"REDIS_CONNECT_ATTEMPTS" envDefault:"5"`
	RedisConnectInterval time.Duration `env:"REDIS_CONNECT_INTERVAL" envDefault:"1s"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionIssuer string        `env:"SESSION_ISSUER" envDefault:"simple-session"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	RememberMeTTL time.Duration `env:"REMEMBER_ME_TTL" envDefault:"720h"`
	SingleSession bool          `env:"SINGLE_SESSION" envDefault:"true"`
	SlotScope     string        `env:"SLOT_SCOPE" envDefault:"all"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"15m"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`
	CacheTimeout  time.Duration `env:"CACHE_TIMEOUT" envDefault:"150ms"`
	MaxExtend     time.Duration `env:"MAX_EXTEND" envDefault:"168h"`

	// Cookie
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"lax"`

	// InternalToken guards session creation. Empty disables the check.
	InternalToken string `env:"INTERNAL_TOKEN"`

	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
	RateLimit          RateLimitConfig
	SecurityHeaders    SecurityHeadersConfig

	// Retention of invalidated and expired rows
	ReaperEnabled    bool          `env:"REAPER_ENABLED" envDefault:"true"`
	ReaperInterval   time.Duration `env:"REAPER_INTERVAL" envDefault:"1h"`
	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"720h"`
}

// RateLimitConfig holds per-IP limits for session creation and extension.
type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	LoginRequests  int           `env:"RATE_LIMIT_LOGIN_REQUESTS" envDefault:"10"`
	LoginWindow    time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" envDefault:"1m"`
	ExtendRequests int           `env:"RATE_LIMIT_EXTEND_REQUESTS" envDefault:"30"`
	ExtendWindow   time.Duration `env:"RATE_LIMIT_EXTEND_WINDOW" envDefault:"1m"`
}

// SecurityHeadersConfig holds the response security headers.
type SecurityHeadersConfig struct {
	Enabled            bool   `env:"SECURITY_HEADERS_ENABLED" envDefault:"true"`
	CSP                string `env:"SECURITY_CSP" envDefault:"default-src 'none'; frame-ancestors 'none'"`
	HSTSMaxAge         int    `env:"SECURITY_HSTS_MAX_AGE" envDefault:"31536000"`
	FrameOptions       string `env:"SECURITY_FRAME_OPTIONS" envDefault:"DENY"`
	ContentTypeOptions string `env:"SECURITY_CONTENT_TYPE_OPTIONS" envDefault:"nosniff"`
	ReferrerPolicy     string `env:"SECURITY_REFERRER_POLICY" envDefault:"no-referrer"`
	PermissionsPolicy  string `env:"SECURITY_PERMISSIONS_POLICY"`
}

// Load loads configuration from environment variables. Files named in
// envFiles are read first if present and never override variables that
// are already set.
func Load(envFiles ...string) (*Config, error) {
	LoadEnvFiles(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles reads .env style files into the environment, defaulting to
// ".env". Missing files are skipped.
func LoadEnvFiles(envFiles ...string) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	} else if len(c.SessionSecret) < auth.MinSecretLen {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", auth.MinSecretLen))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.DBDriver != repository.DriverPostgres && c.DBDriver != repository.DriverPgx {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q", repository.DriverPostgres, repository.DriverPgx))
	}
	if !domain.SlotScope(c.SlotScope).Valid() {
		errs = append(errs, fmt.Errorf("SLOT_SCOPE %q is not supported", c.SlotScope))
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "none":
	default:
		errs = append(errs, fmt.Errorf("COOKIE_SAMESITE must be lax or none"))
	}
	if c.SessionTTL <= 0 || c.RememberMeTTL <= 0 {
		errs = append(errs, errors.New("session lifetimes must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.LoginRequests <= 0 || c.RateLimit.ExtendRequests <= 0) {
		errs = append(errs, errors.New("rate limit request counts must be positive"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE must be positive"))
	}
	if c.ReaperEnabled && c.ReaperInterval <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// SessionConfig returns the session manager settings.
func (c *Config) SessionConfig() auth.SessionConfig {
	return auth.SessionConfig{
		DefaultTTL:    c.SessionTTL,
		RememberMeTTL: c.RememberMeTTL,
		SingleSession: c.SingleSession,
		SlotScope:     domain.SlotScope(c.SlotScope),
		CacheTTL:      c.CacheTTL,
		StoreTimeout:  c.StoreTimeout,
		CacheTimeout:  c.CacheTimeout,
		MaxExtend:     c.MaxExtend,
	}
}

// DBConfig returns the connection pool settings.
func (c *Config) DBConfig() repository.DBConfig {
	return repository.DBConfig{
		Driver:          c.DBDriver,
		URL:             c.DatabaseURL,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnLifetime,
		ConnectTimeout:  c.DBConnectWithin,
	}
}

// CookieConfig returns the session cookie settings.
func (c *Config) CookieConfig() httputil.CookieConfig {
	return httputil.CookieConfig{
		Path:     "/",
		Secure:   c.CookieSecure,
		SameSite: httputil.ParseSameSite(c.CookieSameSite),
	}
}

// HasRedis returns true if a Redis cache is configured.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}
