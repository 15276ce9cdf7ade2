package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OPTSENTRY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OPTSENTRY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Brokerage ──
	setStr(&cfg.Brokerage.BaseURL, "OPTSENTRY_BROKERAGE_BASE_URL")
	setStr(&cfg.Brokerage.Token, "OPTSENTRY_BROKERAGE_TOKEN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "OPTSENTRY_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "OPTSENTRY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OPTSENTRY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPTSENTRY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPTSENTRY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPTSENTRY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPTSENTRY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPTSENTRY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPTSENTRY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPTSENTRY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPTSENTRY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OPTSENTRY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "OPTSENTRY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPTSENTRY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPTSENTRY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPTSENTRY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPTSENTRY_REDIS_MAX_RETRIES")

	// ── Monitor ──
	setStringSlice(&cfg.Monitor.Accounts, "OPTSENTRY_MONITOR_ACCOUNTS")
	setDuration(&cfg.Monitor.PollInterval, "OPTSENTRY_MONITOR_POLL_INTERVAL")
	setDuration(&cfg.Monitor.IdleInterval, "OPTSENTRY_MONITOR_IDLE_INTERVAL")
	setFloat64(&cfg.Monitor.SlippagePercent, "OPTSENTRY_MONITOR_SLIPPAGE_PERCENT")
	setDuration(&cfg.Monitor.QuoteMaxAge, "OPTSENTRY_MONITOR_QUOTE_MAX_AGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OPTSENTRY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OPTSENTRY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPTSENTRY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AuthToken, "OPTSENTRY_SERVER_AUTH_TOKEN")

	// ── Top-level ──
	setStr(&cfg.Mode, "OPTSENTRY_MODE")
	setStr(&cfg.LogLevel, "OPTSENTRY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
