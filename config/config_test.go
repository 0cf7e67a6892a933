package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "trading: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, "dry_run", cfg.Trading.Mode)
	assert.False(t, cfg.Live())
	assert.Equal(t, 10, cfg.Trading.OrderTimeoutSeconds)
	assert.Equal(t, "winner", cfg.Backtest.Settlement)
	assert.Equal(t, "states", cfg.Storage.StatesDir)
	assert.Equal(t, ":8090", cfg.API.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ParsesStrategies(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
trading:
  mode: dry_run
  initial_capital: 500
strategies:
  - name: price_logger
    enabled: true
    params:
      log_every: 30
  - name: disabled_one
    enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Trading.InitialCapital)
	enabled := cfg.EnabledStrategies()
	require.Len(t, enabled, 1)
	assert.Equal(t, "price_logger", enabled[0].Name)
	assert.Equal(t, 30, enabled[0].Params["log_every"])
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	_, err := Load(writeConfig(t, "trading:\n  mode: yolo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yolo")
}

func TestLoad_RejectsUnknownSettlement(t *testing.T) {
	_, err := Load(writeConfig(t, "backtest:\n  settlement: coin_flip\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coin_flip")
}

func TestLoad_LiveModeRequiresAPIKey(t *testing.T) {
	t.Setenv("KALSHI_API_KEY", "")
	_, err := Load(writeConfig(t, "trading:\n  mode: live\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KALSHI_API_KEY")

	t.Setenv("KALSHI_API_KEY", "k-123")
	cfg, err := Load(writeConfig(t, "trading:\n  mode: live\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Live())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRADING_MODE", "dry_run")
	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPollInterval(t *testing.T) {
	cfg, err := Load(writeConfig(t, "feeds:\n  poll_interval_seconds: 0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, "500ms", cfg.PollInterval().String())
}
