// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvProduction is the APP_ENV value of production deployments.
const EnvProduction = "production"

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 720 * time.Hour
	// DefaultStorageTimeout bounds one lifecycle operation's storage work once it has started.
	DefaultStorageTimeout = 10 * time.Second
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address of the ops listener serving /healthz, /readyz and /metrics.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the access-token denylist Redis URL (redis://...). Empty disables the denylist.
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTSecret is the HS256 signing secret; ignored when JWT_PRIVATE_KEY is set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh session lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"REFRESH_TTL"`
	// StorageTimeout bounds the storage work of one lifecycle operation (e.g. "10s"). The work is not
	// cancelled by the caller going away, only by this timeout.
	StorageTimeout string `mapstructure:"STORAGE_TIMEOUT"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RevokeChainOnReuse revokes the live head of a rotation chain when a rotated token is replayed.
	RevokeChainOnReuse bool `mapstructure:"REFRESH_REUSE_REVOKES_CHAIN"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "console" or "json".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint enables OpenTelemetry export when set (host:port or http(s)://host:port).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Seed user for cmd/seed.
	SeedEmail    string `mapstructure:"SEED_EMAIL"`
	SeedName     string `mapstructure:"SEED_NAME"`
	SeedPassword string `mapstructure:"SEED_PASSWORD"`
	SeedRoles    string `mapstructure:"SEED_ROLES"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees values that only exist in the environment.
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "refresh-session-service")
	v.SetDefault("JWT_AUDIENCE", "refresh-session-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h") // 30d
	v.SetDefault("STORAGE_TIMEOUT", "10s")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REFRESH_REUSE_REVOKES_CHAIN", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SEED_EMAIL", "dev@example.com")
	v.SetDefault("SEED_NAME", "Dev User")
	v.SetDefault("SEED_PASSWORD", "")
	v.SetDefault("SEED_ROLES", "user")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.DatabaseURL == "" && cfg.IsProduction() {
		return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if err := checkDuration("JWT_ACCESS_TTL", cfg.JWTAccessTTL); err != nil {
		return nil, err
	}
	if err := checkDuration("REFRESH_TTL", cfg.JWTRefreshTTL); err != nil {
		return nil, err
	}
	if err := checkDuration("STORAGE_TIMEOUT", cfg.StorageTimeout); err != nil {
		return nil, err
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return nil, fmt.Errorf("config: LOG_FORMAT must be console or json, got %q", cfg.LogFormat)
	}

	return &cfg, nil
}

func checkDuration(key, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("config: %s must be positive", key)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return defaultAccessTTL
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return defaultRefreshTTL
	}
	return d
}

// StorageTimeoutDuration parses StorageTimeout. Returns DefaultStorageTimeout if unset or invalid.
func (c *Config) StorageTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.StorageTimeout)
	if err != nil || d <= 0 {
		return DefaultStorageTimeout
	}
	return d
}

// SeedRoleList returns the seed user's roles from the comma-separated SEED_ROLES.
func (c *Config) SeedRoleList() []string {
	if c == nil || c.SeedRoles == "" {
		return nil
	}
	parts := strings.Split(c.SeedRoles, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
