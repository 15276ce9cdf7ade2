// Package config defines the top-level configuration for the position
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by OPTSENTRY_* environment
// variables.
type Config struct {
	Brokerage BrokerageConfig `toml:"brokerage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"` // "sim" or "live"
	LogLevel  string          `toml:"log_level"`
}

// BrokerageConfig holds the trading platform API endpoint and credentials.
type BrokerageConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// PostgresConfig holds PostgreSQL connection parameters. Leave enabled false
// to run without the order journal and audit log.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Leave enabled false to run
// with the in-process quote path only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// MonitorConfig holds the polling loop parameters shared by every account
// monitor.
type MonitorConfig struct {
	// Accounts started automatically at boot. Others start on demand via
	// the API.
	Accounts []string `toml:"accounts"`

	PollInterval duration `toml:"poll_interval"` // market open
	IdleInterval duration `toml:"idle_interval"` // market closed

	// SlippagePercent shaves the limit price of generated close orders so
	// they rest below the trigger and actually execute.
	SlippagePercent float64 `toml:"slippage_percent"`

	// QuoteMaxAge bounds how old a cached quote may be before the monitor
	// refetches from the brokerage.
	QuoteMaxAge duration `toml:"quote_max_age"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "1s", "60s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"sim":  true,
	"live": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "optionsentry",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Monitor: MonitorConfig{
			PollInterval:    duration{time.Second},
			IdleInterval:    duration{60 * time.Second},
			SlippagePercent: 0.5,
			QuoteMaxAge:     duration{8 * time.Second},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// Validate checks the configuration and returns a single error listing every
// problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sim, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Brokerage credentials are needed in live mode, and in sim mode too
	// when positions and quotes come from the real platform.
	if strings.ToLower(c.Mode) == "live" {
		if c.Brokerage.BaseURL == "" {
			errs = append(errs, "brokerage: base_url is required for live mode")
		}
		if c.Brokerage.Token == "" {
			errs = append(errs, "brokerage: token is required for live mode")
		}
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be positive")
	}
	if c.Monitor.IdleInterval.Duration <= 0 {
		errs = append(errs, "monitor: idle_interval must be positive")
	}
	if c.Monitor.SlippagePercent < 0 || c.Monitor.SlippagePercent >= 100 {
		errs = append(errs, fmt.Sprintf("monitor: slippage_percent %g out of range [0, 100)", c.Monitor.SlippagePercent))
	}
	if c.Monitor.QuoteMaxAge.Duration <= 0 {
		errs = append(errs, "monitor: quote_max_age must be positive")
	}
	for _, acct := range c.Monitor.Accounts {
		if strings.TrimSpace(acct) == "" {
			errs = append(errs, "monitor: accounts must not contain empty ids")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
