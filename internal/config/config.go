// Package config handles application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	Market   MarketConfig   `yaml:"market"`
	Session  SessionConfig  `yaml:"session"`
	OHLCV    OHLCVConfig    `yaml:"ohlcv"`
	Feed     FeedConfig     `yaml:"feed"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Runner   RunnerConfig   `yaml:"runner"`
	Strategy StrategyConfig `yaml:"strategy"`
	Alert    AlertConfig    `yaml:"alert"`

	LogLevel string `yaml:"log_level"`
}

// MarketConfig describes the traded instrument.
type MarketConfig struct {
	Symbol       string  `yaml:"symbol"`
	PriceUnit    float64 `yaml:"price_unit"`
	MakerFeeRate float64 `yaml:"maker_fee_rate"`
	TakerFeeRate float64 `yaml:"taker_fee_rate"`
}

// SessionConfig tunes the simulated session.
type SessionConfig struct {
	ClockIntervalSec int64   `yaml:"clock_interval_sec"`
	MarketOrderSlip  float64 `yaml:"market_order_slip"`
	QueueSize        int     `yaml:"queue_size"`
}

// OHLCVConfig tunes the candle aggregator.
type OHLCVConfig struct {
	DefaultWindowSec int64 `yaml:"default_window_sec"`
	HistorySize      int   `yaml:"history_size"`
}

// FeedConfig describes the tick source.
type FeedConfig struct {
	URL            string          `yaml:"url"`
	Channel        string          `yaml:"channel"`
	CSVPath        string          `yaml:"csv_path"`
	MaxRetries     int             `yaml:"max_retries"`
	InitialBackoff DurationSeconds `yaml:"initial_backoff"`
	ReadTimeout    DurationSeconds `yaml:"read_timeout"`
}

// GatewayConfig describes the production order gateway.
type GatewayConfig struct {
	BaseURL       string `yaml:"base_url"`
	UserStreamURL string `yaml:"user_stream_url"`
	APIKey        string `yaml:"-"` // Loaded from env
	APISecret     string `yaml:"-"` // Loaded from env
}

// DatabaseConfig describes the optional postgres run-log sink.
type DatabaseConfig struct {
	URL           string          `yaml:"url"`
	BatchSize     int             `yaml:"batch_size"`
	WriteInterval DurationSeconds `yaml:"write_interval"`
}

// RunnerConfig selects the execution mode and bounds of a run.
type RunnerConfig struct {
	Mode                string `yaml:"mode"` // "backtest", "dry" or "real"
	ExecuteTimeSec      int64  `yaml:"execute_time_sec"`
	LogFile             string `yaml:"log_file"`
	ProgressIntervalSec int64  `yaml:"progress_interval_sec"`
}

// StrategyConfig tunes the built-in moving-average cross strategy.
type StrategyConfig struct {
	WindowSec int64   `yaml:"window_sec"`
	FastBars  int     `yaml:"fast_bars"`
	SlowBars  int     `yaml:"slow_bars"`
	OrderSize float64 `yaml:"order_size"`
}

// AlertConfig describes the optional failure-webhook notifier.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		// Default values
		LogLevel: "info",
		Session: SessionConfig{
			ClockIntervalSec: 60,
			QueueSize:        4096,
		},
		OHLCV: OHLCVConfig{
			DefaultWindowSec: 60,
		},
		Feed: FeedConfig{
			MaxRetries:     5,
			InitialBackoff: DurationSeconds(1),
			ReadTimeout:    DurationSeconds(30),
		},
		Runner: RunnerConfig{
			Mode:                "backtest",
			ProgressIntervalSec: 5,
		},
		Strategy: StrategyConfig{
			WindowSec: 60,
			FastBars:  5,
			SlowBars:  20,
			OrderSize: 0.01,
		},
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}

	// Load sensitive data and overrides from environment variables
	if apiKey := os.Getenv("EXCHANGE_API_KEY"); apiKey != "" {
		cfg.Gateway.APIKey = apiKey
	}
	if apiSecret := os.Getenv("EXCHANGE_API_SECRET"); apiSecret != "" {
		cfg.Gateway.APISecret = apiSecret
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("config: market.symbol is required")
	}
	if c.Market.MakerFeeRate < 0 || c.Market.TakerFeeRate < 0 {
		return fmt.Errorf("config: fee rates must not be negative")
	}
	switch c.Runner.Mode {
	case "backtest", "dry", "real":
	default:
		return fmt.Errorf("config: runner.mode must be backtest, dry or real, got %q", c.Runner.Mode)
	}
	if c.Runner.Mode == "real" {
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("config: gateway.base_url is required in real mode")
		}
		if c.Gateway.UserStreamURL == "" {
			return fmt.Errorf("config: gateway.user_stream_url is required in real mode")
		}
		if c.Gateway.APIKey == "" || c.Gateway.APISecret == "" {
			return fmt.Errorf("config: EXCHANGE_API_KEY and EXCHANGE_API_SECRET are required in real mode")
		}
	}
	if c.Strategy.SlowBars > 0 && c.Strategy.FastBars >= c.Strategy.SlowBars {
		return fmt.Errorf("config: strategy.fast_bars must be smaller than strategy.slow_bars")
	}
	if c.Session.ClockIntervalSec < 0 {
		return fmt.Errorf("config: session.clock_interval_sec must not be negative")
	}
	return nil
}
