package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL", "PGUSER", "PGPASSWORD", "PGHOST", "PGPORT", "PGDATABASE", "PGSSLMODE",
		"REDIS_URL", "REDIS_STREAM_KEY", "REDIS_STREAM_MAX_LEN",
		"WATCH_SYMBOLS", "KLINE_INTERVAL", "BINANCE_WS_BASE_URL",
		"HEALTH_CHECK_PORT", "LIVENESS_THRESHOLD_SECONDS",
		"MODE", "VOLATILITY_THRESHOLD", "TREND_THRESHOLD",
		"LOOKBACK_DAYS", "K", "SEED",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "market_data_feed", cfg.RedisStreamKey)
	assert.Equal(t, []string{"btcusdt", "ethusdt"}, cfg.WatchSymbols)
	assert.Equal(t, "1h", cfg.KlineInterval)
	assert.Equal(t, ModeRuleBased, cfg.Mode)
	assert.Equal(t, 0.02, cfg.VolatilityThreshold)
	assert.Equal(t, 730, cfg.LookbackDays)
	assert.Equal(t, 4, cfg.K)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Contains(t, cfg.DatabaseURL, "sslmode=disable")
}

func TestLoad_InvalidMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("MODE", "NOT_A_MODE")
	defer os.Unsetenv("MODE")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsBadSSLMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://u:p@host:5432/db?sslmode=bogus")
	defer os.Unsetenv("DATABASE_URL")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_HonorsDatabaseURLVerbatim(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://u:p@host:5432/db?sslmode=verify-full")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@host:5432/db?sslmode=verify-full", cfg.DatabaseURL)
}
