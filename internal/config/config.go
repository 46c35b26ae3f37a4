// Package config loads process configuration from environment variables
// into an immutable record, constructed once at startup and passed down —
// no global settings object, per the "shared state" design note.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects the classifier's decision path.
type Mode string

const (
	ModeRuleBased   Mode = "RULE_BASED"
	ModeMLCluster   Mode = "ML_CLUSTERING"
)

// Config holds every recognized process option from spec.md section 6.
// Individual services read only the fields relevant to them.
type Config struct {
	DatabaseURL string
	RedisURL    string

	RedisStreamKey    string
	RedisStreamMaxLen int64

	WatchSymbols    []string
	KlineInterval   string
	BinanceWSBaseURL string

	HealthCheckPort          int
	LivenessThresholdSeconds int

	Mode                Mode
	VolatilityThreshold float64
	TrendThreshold      float64

	ConsumerGroup string
	ConsumerName  string

	LookbackDays int
	K            int
	Seed         int64

	MetricsPort int
}

// Load reads configuration from the environment, applying the defaults
// spec.md section 6 documents.
func Load() (*Config, error) {
	cfg := &Config{
		RedisStreamKey:    getEnv("REDIS_STREAM_KEY", "market_data_feed"),
		KlineInterval:     getEnv("KLINE_INTERVAL", "1h"),
		BinanceWSBaseURL:  getEnv("BINANCE_WS_BASE_URL", "wss://fstream.binance.com"),
		HealthCheckPort:          getEnvInt("HEALTH_CHECK_PORT", 8000),
		LivenessThresholdSeconds: getEnvInt("LIVENESS_THRESHOLD_SECONDS", 60),
		Mode:                Mode(getEnv("MODE", string(ModeRuleBased))),
		VolatilityThreshold: getEnvFloat("VOLATILITY_THRESHOLD", 0.02),
		TrendThreshold:      getEnvFloat("TREND_THRESHOLD", 0.0),
		ConsumerGroup:       getEnv("CONSUMER_GROUP", "quant_group"),
		ConsumerName:        getEnv("CONSUMER_NAME", defaultConsumerName()),
		LookbackDays:        getEnvInt("LOOKBACK_DAYS", 730),
		K:                   getEnvInt("K", 4),
		Seed:                int64(getEnvInt("SEED", 42)),
		MetricsPort:         getEnvInt("METRICS_PORT", 9090),
	}

	cfg.RedisStreamMaxLen = int64(getEnvInt("REDIS_STREAM_MAX_LEN", 10000))
	cfg.WatchSymbols = splitCSV(getEnv("WATCH_SYMBOLS", "btcusdt,ethusdt"))

	dbURL, err := buildDatabaseURL()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.DatabaseURL = dbURL

	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")

	if cfg.Mode != ModeRuleBased && cfg.Mode != ModeMLCluster {
		return nil, fmt.Errorf("config: invalid MODE %q", cfg.Mode)
	}

	return cfg, nil
}

// buildDatabaseURL honors DATABASE_URL verbatim if set, otherwise composes
// one from discrete PG* parts, and validates the sslmode query parameter
// against the values the Postgres connection layer accepts; the URL itself
// is returned unchanged.
func buildDatabaseURL() (string, error) {
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		return normalizeSSLMode(raw)
	}

	user := getEnv("PGUSER", "postgres")
	password := getEnv("PGPASSWORD", "password")
	host := getEnv("PGHOST", "localhost")
	port := getEnv("PGPORT", "5432")
	name := getEnv("PGDATABASE", "quant")
	sslmode := getEnv("PGSSLMODE", "disable")

	composed := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, name, sslmode)
	return normalizeSSLMode(composed)
}

// normalizeSSLMode validates the sslmode query parameter against the set
// pgx/pgxpool understands: require, verify-ca, verify-full, disable.
func normalizeSSLMode(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	mode := q.Get("sslmode")
	switch mode {
	case "", "require", "verify-ca", "verify-full", "disable":
		return raw, nil
	default:
		return "", fmt.Errorf("unsupported sslmode %q", mode)
	}
}

// defaultConsumerName gives each unconfigured replica a distinct consumer
// identity within its consumer group, so running more than one classifier
// process without setting CONSUMER_NAME doesn't collide on Redis's
// per-consumer pending-entries list.
func defaultConsumerName() string {
	return "quant_processor_" + uuid.NewString()
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: invalid float for %s=%q, using default %f", key, v, fallback)
		return fallback
	}
	return f
}

// HeartbeatDeadline is the liveness threshold as a time.Duration.
func (c *Config) HeartbeatDeadline() time.Duration {
	return time.Duration(c.LivenessThresholdSeconds) * time.Second
}
