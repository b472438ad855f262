// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Pricing catalog
	PricingConfigPaths []string
	CatalogCacheTTL    time.Duration

	// CRM (GoHighLevel)
	GHLAPIKey        string
	GHLLocationID    string
	GHLWebhookSecret string

	// EXIMIA billing/CRM
	EximiaAPIKey     string
	EximiaPipelineID string
	EximiaStageID    string

	// Admin auth
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	AccessTokenTTL    time.Duration

	// Outbound relay webhooks
	RelayWebhookURL    string
	RelayWebhookSecret string
	RelayMaxAttempts   int
	RelayTimeoutMs     int

	// Inbound webhook replay window
	WebhookReplayTTL time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Idempotency-Key replay window on submission endpoints
	IdempotencyTTL time.Duration

	// Migrations
	MigrationsPath string
	RunMigrations  bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PricingConfigPaths: splitAndTrim(valueOrDefault(k.String("PRICING_CONFIG_PATHS"), "pricing.config.json,config/pricing.config.json")),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		GHLAPIKey:        k.String("GHL_API_KEY"),
		GHLLocationID:    k.String("GHL_LOCATION_ID"),
		GHLWebhookSecret: k.String("GHL_WEBHOOK_SECRET"),

		EximiaAPIKey:     k.String("EXIMIA_API_KEY"),
		EximiaPipelineID: k.String("EXIMIA_PIPELINE_ID"),
		EximiaStageID:    k.String("EXIMIA_STAGE_ACTIVE_ID"),

		AdminUsername:     k.String("ADMIN_USERNAME"),
		AdminPasswordHash: k.String("ADMIN_PASSWORD_HASH"),
		JWTSecret:         k.String("JWT_SECRET"),
		AccessTokenTTL:    parseDuration(k.String("ACCESS_TOKEN_TTL"), "12h"),

		RelayWebhookURL:    k.String("RELAY_WEBHOOK_URL"),
		RelayWebhookSecret: k.String("RELAY_WEBHOOK_SECRET"),
		RelayMaxAttempts:   intOrDefault(k.Int("RELAY_MAX_ATTEMPTS"), 6),
		RelayTimeoutMs:     intOrDefault(k.Int("RELAY_TIMEOUT_MS"), 5000),

		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		RateLimitPerMinute: intOrDefault(k.Int("RATE_LIMIT_PER_MINUTE"), 60),

		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		MigrationsPath: valueOrDefault(k.String("MIGRATIONS_PATH"), "db/migrations"),
		RunMigrations:  strings.EqualFold(valueOrDefault(k.String("RUN_MIGRATIONS"), "true"), "true"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
