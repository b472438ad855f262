package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/quotes",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "0123456789abcdef0123456789abcdef",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, 12*time.Hour, cfg.AccessTokenTTL)
	require.Equal(t, 6, cfg.RelayMaxAttempts)
	require.Equal(t, 60, cfg.RateLimitPerMinute)
	require.Equal(t, []string{"pricing.config.json", "config/pricing.config.json"}, cfg.PricingConfigPaths)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	env := baseEnv()
	env["JWT_SECRET"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["CATALOG_CACHE_TTL"] = "30s"
	env["CORS_ALLOWED_ORIGINS"] = "https://eximia.agency, https://www.eximia.agency"
	env["GHL_API_KEY"] = "key-1"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	require.Equal(t, []string{"https://eximia.agency", "https://www.eximia.agency"}, cfg.CORSAllowedOrigins)
	require.Equal(t, "key-1", cfg.GHLAPIKey)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	env := baseEnv()
	env["CATALOG_CACHE_TTL"] = "not-a-duration"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
}
