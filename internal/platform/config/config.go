package config

import (
	"os"
	"strconv"
	"time"
)

// RedisConfig holds connection settings for the warning cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config captures everything main needs to wire the service. Values come from
// environment variables with development defaults; production deployments
// must override the secrets.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration

	IDSalt string

	SeedAdminUsername string
	SeedAdminPassword string

	WarningSpanDays  int
	SweepConcurrency int

	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("PRISMID_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("JWT_ISSUER", "prismid"),
		JWTAudience:   envOr("JWT_AUDIENCE", "prismid-api"),
		TokenTTL:      envDurationOr("TOKEN_TTL", time.Hour),

		// The salt feeds opaque ID derivation. Changing it after records
		// exist would orphan every issued ID, so it is set once per
		// deployment and never rotated.
		IDSalt: envOr("ID_SALT", "dev-id-salt-change-in-production"),

		SeedAdminUsername: envOr("SEED_ADMIN_USERNAME", "admin"),
		SeedAdminPassword: envOr("SEED_ADMIN_PASSWORD", "admin-dev-password"),

		WarningSpanDays:  envIntOr("EXPIRY_WARNING_DAYS", 7),
		SweepConcurrency: envIntOr("SWEEP_CONCURRENCY", 4),

		ShutdownTimeout: envDurationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
