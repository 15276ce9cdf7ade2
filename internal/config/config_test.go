package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sim", cfg.Mode)
	assert.Equal(t, time.Second, cfg.Monitor.PollInterval.Duration)
	assert.Equal(t, 60*time.Second, cfg.Monitor.IdleInterval.Duration)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "live"
log_level = "debug"

[brokerage]
base_url = "https://api.broker.example"
token = "secret"

[monitor]
accounts = ["acct-1", "acct-2"]
poll_interval = "2s"
slippage_percent = 1.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, []string{"acct-1", "acct-2"}, cfg.Monitor.Accounts)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval.Duration)
	assert.Equal(t, 1.5, cfg.Monitor.SlippagePercent)
	// Untouched sections keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Monitor.IdleInterval.Duration)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
[monitor]
poll_interval = "2s"
`)
	t.Setenv("OPTSENTRY_MODE", "live")
	t.Setenv("OPTSENTRY_BROKERAGE_BASE_URL", "https://api.broker.example")
	t.Setenv("OPTSENTRY_BROKERAGE_TOKEN", "env-secret")
	t.Setenv("OPTSENTRY_MONITOR_POLL_INTERVAL", "500ms")
	t.Setenv("OPTSENTRY_MONITOR_ACCOUNTS", "acct-9, acct-10")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, "env-secret", cfg.Brokerage.Token)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.PollInterval.Duration)
	assert.Equal(t, []string{"acct-9", "acct-10"}, cfg.Monitor.Accounts)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	cfg.LogLevel = "loud"
	cfg.Monitor.SlippagePercent = 150
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "slippage_percent")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLiveModeRequiresBrokerage(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url is required")
	assert.Contains(t, err.Error(), "token is required")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
