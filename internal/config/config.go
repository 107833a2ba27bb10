package config

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Invite        InviteConfig
	Mail          MailConfig
	Gate          GateConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64       `env:"RATELIMIT_RPS, default=10"`
	Burst             int           `env:"RATELIMIT_BURST, default=20"`
	IdleTTL           time.Duration `env:"RATELIMIT_IDLE_TTL, default=10m"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `env:"SERVER_HOST, default=0.0.0.0"`
	Port           string        `env:"SERVER_PORT, default=8080"`
	PublicBaseURL  string        `env:"PUBLIC_BASE_URL, default=http://localhost:8080"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT, default=15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT, default=15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT, default=60s"`
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT, default=60s"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST, default=localhost"`
	Port            string        `env:"DB_PORT, default=5432"`
	User            string        `env:"DB_USER, default=tenantgate"`
	Password        string        `env:"DB_PASSWORD"`
	Database        string        `env:"DB_NAME, default=tenantgate"`
	SSLMode         string        `env:"DB_SSLMODE, default=disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME, default=5m"`
}

// RedisConfig holds the mail outbox connection settings
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR, default=localhost:6379"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB, default=0"`
	Timeout   time.Duration `env:"REDIS_TIMEOUT, default=5s"`
	OutboxKey string        `env:"REDIS_OUTBOX_KEY, default=tenantgate:outbox:invites"`
}

// SessionConfig holds session management configuration
type SessionConfig struct {
	CookieName     string        `env:"SESSION_COOKIE_NAME, default=tenantgate_session"`
	FlagCookieName string        `env:"SESSION_FLAG_COOKIE_NAME, default=tenantgate_flags"`
	CookieDomain   string        `env:"SESSION_COOKIE_DOMAIN"`
	CookiePath     string        `env:"SESSION_COOKIE_PATH, default=/"`
	CookieSecure   bool          `env:"SESSION_COOKIE_SECURE, default=false"`
	CookieHTTPOnly bool          `env:"SESSION_COOKIE_HTTP_ONLY, default=true"`
	CookieSameSite string        `env:"SESSION_COOKIE_SAME_SITE, default=Lax"`
	Secret         string        `env:"SESSION_SECRET"`
	Lifetime       time.Duration `env:"SESSION_LIFETIME, default=24h"`
	IdleTimeout    time.Duration `env:"SESSION_IDLE_TIMEOUT, default=30m"`
	CleanupEvery   time.Duration `env:"SESSION_CLEANUP_INTERVAL, default=1h"`
}

// SameSite maps the configured SameSite name to its http mode
func (s SessionConfig) SameSite() http.SameSite {
	switch s.CookieSameSite {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// InviteConfig holds invitation token configuration
type InviteConfig struct {
	Secret string        `env:"INVITE_SECRET"`
	TTL    time.Duration `env:"INVITE_TTL, default=72h"`
}

// MailConfig holds outbound mail configuration
type MailConfig struct {
	Driver   string `env:"MAIL_DRIVER, default=log"` // log, smtp
	From     string `env:"MAIL_FROM, default=no-reply@tenantgate.local"`
	SMTPHost string `env:"MAIL_SMTP_HOST, default=localhost"`
	SMTPPort int    `env:"MAIL_SMTP_PORT, default=1025"`
	SMTPUser string `env:"MAIL_SMTP_USER"`
	SMTPPass string `env:"MAIL_SMTP_PASS"`
}

// GateConfig holds onboarding gate configuration
type GateConfig struct {
	ExemptPaths []string `env:"GATE_EXEMPT_PATHS"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `env:"LOG_LEVEL, default=info"`
	LogFormat      string `env:"LOG_FORMAT, default=json"`
	OTELEnabled    bool   `env:"OTEL_ENABLED, default=false"`
	ServiceName    string `env:"OTEL_SERVICE_NAME, default=tenantgate"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION, default=0.1.0"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32        `env:"ARGON2_MEMORY, default=65536"`
	Argon2Iterations   uint32        `env:"ARGON2_ITERATIONS, default=3"`
	Argon2Parallelism  uint8         `env:"ARGON2_PARALLELISM, default=4"`
	Argon2SaltLength   uint32        `env:"ARGON2_SALT_LENGTH, default=16"`
	Argon2KeyLength    uint32        `env:"ARGON2_KEY_LENGTH, default=32"`
	LockoutMaxAttempts int           `env:"SECURITY_LOCKOUT_MAX_ATTEMPTS, default=5"`
	LockoutDuration    time.Duration `env:"SECURITY_LOCKOUT_DURATION, default=15m"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration using the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if len(c.Invite.Secret) < 32 {
		return fmt.Errorf("INVITE_SECRET must be at least 32 bytes")
	}
	switch c.Mail.Driver {
	case "log", "smtp":
	default:
		return fmt.Errorf("MAIL_DRIVER must be one of: log, smtp")
	}
	return nil
}
