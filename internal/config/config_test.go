// Package config_test tests the config package.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/tick-session-engine/internal/config"
)

// createDummyConfigFile creates a config file with the given content.
func createDummyConfigFile(t *testing.T, path, content string) {
	t.Helper()
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	createDummyConfigFile(t, configPath, `
log_level: "debug"
market:
  symbol: "BTCUSDT"
  price_unit: 0.5
  maker_fee_rate: 0.0002
  taker_fee_rate: 0.00055
session:
  clock_interval_sec: 10
  market_order_slip: 0.5
ohlcv:
  default_window_sec: 60
feed:
  csv_path: "ticks.csv"
  initial_backoff: "2s"
runner:
  mode: "backtest"
  execute_time_sec: 3600
  log_file: "run.jsonl"
database:
  batch_size: 500
  write_interval: 1
`)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Market.Symbol)
	assert.Equal(t, 0.0002, cfg.Market.MakerFeeRate)
	assert.Equal(t, int64(10), cfg.Session.ClockIntervalSec)
	assert.Equal(t, "backtest", cfg.Runner.Mode)
	assert.Equal(t, int64(3600), cfg.Runner.ExecuteTimeSec)
	assert.Equal(t, 2*time.Second, cfg.Feed.InitialBackoff.Duration())
	assert.Equal(t, time.Second, cfg.Database.WriteInterval.Duration())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	createDummyConfigFile(t, configPath, `
market:
  symbol: "BTCUSDT"
`)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "backtest", cfg.Runner.Mode)
	assert.Equal(t, int64(60), cfg.Session.ClockIntervalSec)
	assert.Equal(t, 4096, cfg.Session.QueueSize)
	assert.Equal(t, 5, cfg.Feed.MaxRetries)
}

// TestLoadConfig_EnvVarOverride tests if environment variables correctly override yaml values.
func TestLoadConfig_EnvVarOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	createDummyConfigFile(t, configPath, `
log_level: "info"
market:
  symbol: "BTCUSDT"
database:
  url: "postgres://file-host/sessions"
`)

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://env-host/sessions")
	t.Setenv("EXCHANGE_API_KEY", "key_from_env")

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "LOG_LEVEL should be overridden by env var")
	assert.Equal(t, "postgres://env-host/sessions", cfg.Database.URL, "DATABASE_URL should be overridden by env var")
	assert.Equal(t, "key_from_env", cfg.Gateway.APIKey, "EXCHANGE_API_KEY should be supplemented by env var")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing symbol",
			content: "log_level: info\n",
			wantErr: "market.symbol",
		},
		{
			name: "bad mode",
			content: `
market:
  symbol: "BTCUSDT"
runner:
  mode: "paper"
`,
			wantErr: "runner.mode",
		},
		{
			name: "real mode needs gateway",
			content: `
market:
  symbol: "BTCUSDT"
runner:
  mode: "real"
`,
			wantErr: "gateway.base_url",
		},
		{
			name: "real mode needs user stream",
			content: `
market:
  symbol: "BTCUSDT"
runner:
  mode: "real"
gateway:
  base_url: "https://api.exchange.example.com"
`,
			wantErr: "gateway.user_stream_url",
		},
		{
			name: "negative fee",
			content: `
market:
  symbol: "BTCUSDT"
  maker_fee_rate: -0.1
`,
			wantErr: "fee rates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			createDummyConfigFile(t, configPath, tt.content)

			_, err := config.LoadConfig(configPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
