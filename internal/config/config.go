// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// minSecretLen is the minimum length of JWT_SECRET_KEY when HS256 signing is used.
const minSecretLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// Port is the HTTP port the auth API listens on.
	Port int `mapstructure:"PORT"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8081). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for the session store and audit log.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL (redis://host:6379/0). Empty keeps cache and rate limiting in process.
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisTTL is the user cache entry TTL in seconds.
	RedisTTL int `mapstructure:"REDIS_TTL"`

	// JWTSecretKey is the HS256 secret. Used when no key pair is configured.
	JWTSecretKey string `mapstructure:"JWT_SECRET_KEY"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessExpires is the access token lifetime (e.g. "15m").
	JWTAccessExpires string `mapstructure:"JWT_ACCESS_EXPIRES"`
	// JWTRefreshExpires is the refresh token and session lifetime (e.g. "7d" or "168h").
	JWTRefreshExpires string `mapstructure:"JWT_REFRESH_EXPIRES"`

	// RateLimitMaxAttempts is the number of failed logins allowed per email before lockout.
	RateLimitMaxAttempts int `mapstructure:"RATE_LIMIT_MAX_ATTEMPTS"`
	// RateLimitLockout is the lockout window (e.g. "15m").
	RateLimitLockout string `mapstructure:"RATE_LIMIT_LOCKOUT"`

	// ThrottlerTTL is the per-IP request throttle window in seconds.
	ThrottlerTTL int `mapstructure:"THROTTLER_TTL"`
	// ThrottlerLimit is the number of requests allowed per IP within ThrottlerTTL.
	ThrottlerLimit int `mapstructure:"THROTTLER_LIMIT"`
	// AllowedOrigins is a comma-separated list of CORS origins.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	// UsersServiceURL is the base URL of the user directory service.
	UsersServiceURL     string `mapstructure:"USERS_SERVICE_URL"`
	UsersServiceTimeout string `mapstructure:"USERS_SERVICE_TIMEOUT"`

	// GoogleClientID is the expected audience of Google ID tokens. Empty disables Google sign-in.
	GoogleClientID      string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleVerifyTimeout string `mapstructure:"GOOGLE_VERIFY_TIMEOUT"`

	// SessionSweepInterval is how often expired sessions are deleted (e.g. "10s").
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	// SessionPendingGrace is how long a session may stay without a refresh token before the sweep reclaims it.
	SessionPendingGrace string `mapstructure:"SESSION_PENDING_GRACE"`
	// SessionSweepInProcess runs the sweeper inside the API server. Set false when cmd/worker runs it.
	SessionSweepInProcess bool `mapstructure:"SESSION_SWEEP_IN_PROCESS"`

	// AdmissionPolicyPath is an optional rego file replacing the built-in session admission policy.
	AdmissionPolicyPath string `mapstructure:"ADMISSION_POLICY_PATH"`

	// Telemetry (optional).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers         string `mapstructure:"KAFKA_BROKERS"`
	KafkaAuthEventsTopic string `mapstructure:"KAFKA_AUTH_EVENTS_TOPIC"`
	SentryDSN            string `mapstructure:"SENTRY_DSN"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	return load(true)
}

// LoadWithoutSigningKeys is Load for processes that never sign or verify tokens (the session
// sweeper, migrations): the JWT key settings are not required.
func LoadWithoutSigningKeys() (*Config, error) {
	return load(false)
}

func load(requireSigningKeys bool) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("PORT", 5000)
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_TTL", 86400)
	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_ACCESS_EXPIRES", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRES", "7d")
	v.SetDefault("RATE_LIMIT_MAX_ATTEMPTS", 5)
	v.SetDefault("RATE_LIMIT_LOCKOUT", "15m")
	v.SetDefault("THROTTLER_TTL", 60)
	v.SetDefault("THROTTLER_LIMIT", 10)
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("USERS_SERVICE_URL", "http://localhost:3000")
	v.SetDefault("USERS_SERVICE_TIMEOUT", "5s")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_VERIFY_TIMEOUT", "5s")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "10s")
	v.SetDefault("SESSION_PENDING_GRACE", "5m")
	v.SetDefault("SESSION_SWEEP_IN_PROCESS", true)
	v.SetDefault("ADMISSION_POLICY_PATH", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "auth-session")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_AUTH_EVENTS_TOPIC", "auth-events")
	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.New("config: PORT must be between 1 and 65535")
	}
	if requireSigningKeys {
		if err := cfg.validateSigningKeys(); err != nil {
			return nil, err
		}
	}
	if cfg.RateLimitMaxAttempts <= 0 {
		return nil, errors.New("config: RATE_LIMIT_MAX_ATTEMPTS must be positive")
	}
	if cfg.ThrottlerTTL < 0 || cfg.ThrottlerLimit < 0 {
		return nil, errors.New("config: THROTTLER_TTL and THROTTLER_LIMIT must not be negative")
	}
	if _, err := ParseDuration(cfg.JWTRefreshExpires); err != nil {
		return nil, errors.New("config: JWT_REFRESH_EXPIRES is not a valid duration")
	}

	return &cfg, nil
}

func (c *Config) validateSigningKeys() error {
	if c.JWTPrivateKey == "" && c.JWTSecretKey == "" {
		return errors.New("config: JWT_SECRET_KEY or JWT_PRIVATE_KEY/JWT_PUBLIC_KEY must be set")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.JWTPrivateKey == "" && len(c.JWTSecretKey) < minSecretLen {
		return errors.New("config: JWT_SECRET_KEY must be at least 32 characters")
	}
	return nil
}

// ParseDuration parses a Go duration string and additionally accepts whole days ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTTL parses JWTAccessExpires. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessExpires, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshExpires. Returns 7 days if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshExpires, 7*24*time.Hour)
}

// LockoutWindow parses RateLimitLockout. Returns 15m if unset or invalid.
func (c *Config) LockoutWindow() time.Duration {
	return durationOr(c.RateLimitLockout, 15*time.Minute)
}

// UserCacheTTL returns RedisTTL as a duration, or 24h when unset.
func (c *Config) UserCacheTTL() time.Duration {
	if c.RedisTTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.RedisTTL) * time.Second
}

func (c *Config) UsersTimeout() time.Duration {
	return durationOr(c.UsersServiceTimeout, 5*time.Second)
}

func (c *Config) GoogleTimeout() time.Duration {
	return durationOr(c.GoogleVerifyTimeout, 5*time.Second)
}

func (c *Config) SweepInterval() time.Duration {
	return durationOr(c.SessionSweepInterval, 10*time.Second)
}

func (c *Config) PendingGrace() time.Duration {
	return durationOr(c.SessionPendingGrace, 5*time.Minute)
}

// ThrottleWindow returns ThrottlerTTL as a duration.
func (c *Config) ThrottleWindow() time.Duration {
	return time.Duration(c.ThrottlerTTL) * time.Second
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka auth event sink.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AllowedOriginsList returns the CORS origins from the comma-separated config.
func (c *Config) AllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
