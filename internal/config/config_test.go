package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "Liveboard API", cfg.AppName)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "8080", cfg.AppPort)
	require.Equal(t, "messages.db", cfg.DatabaseURL)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, 15*time.Second, cfg.StreamTimeout)
	require.Equal(t, 50, cfg.RecentLimit)
	require.Equal(t, 30*time.Second, cfg.RecentCacheTTL)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LIVEBOARD_APP_PORT", "9090")
	t.Setenv("LIVEBOARD_DATABASE_URL", "postgres://localhost/board")
	t.Setenv("LIVEBOARD_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LIVEBOARD_STREAM_TIMEOUT", "5s")
	t.Setenv("LIVEBOARD_RECENT_LIMIT", "25")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.AppPort)
	require.Equal(t, "postgres://localhost/board", cfg.DatabaseURL)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, 5*time.Second, cfg.StreamTimeout)
	require.Equal(t, 25, cfg.RecentLimit)
}

func TestLoadRejectsInvalidStreamTimeout(t *testing.T) {
	t.Setenv("LIVEBOARD_STREAM_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadNonPositiveRecentLimitFallsBack(t *testing.T) {
	t.Setenv("LIVEBOARD_RECENT_LIMIT", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.RecentLimit)
}

func TestHTTPAddress(t *testing.T) {
	require.Equal(t, ":8080", Config{AppPort: "8080"}.HTTPAddress())
	require.Equal(t, ":9090", Config{AppPort: ":9090"}.HTTPAddress())
}
