package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "TRADELAB"

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields.
// A missing file is not an error; defaults and environment variables apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	v := newViper()
	setDefaults(v)

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradelab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("data_source.type", "synthetic")
	v.SetDefault("data_source.http.page_size", 1000)
	v.SetDefault("data_source.http.timeout_seconds", 30)
	v.SetDefault("data_source.http.max_retries", 5)
	v.SetDefault("data_source.http.rate_limit", 10.0)
	v.SetDefault("data_source.alpaca.feed", "iex")
	v.SetDefault("data_source.synthetic.start_price", 100.0)
	v.SetDefault("data_source.synthetic.volatility", 0.02)

	v.SetDefault("cache.max_entries", 100)

	v.SetDefault("backtest.symbol", "SYNTH")
	v.SetDefault("backtest.resolution", "1d")
	v.SetDefault("backtest.start_date", "2022-01-01")
	v.SetDefault("backtest.end_date", "2023-12-31")
	v.SetDefault("backtest.strategy", "ma_crossover")
	v.SetDefault("backtest.initial_balance", 10000.0)
	v.SetDefault("backtest.lookback_window", 200)
	v.SetDefault("backtest.progress_interval", 100)
	v.SetDefault("backtest.position_size_fraction", 0.1)
	v.SetDefault("backtest.annualization_factor", 252.0)
	v.SetDefault("backtest.trade_tail", 20)
	v.SetDefault("backtest.output_path", "output")
	v.SetDefault("backtest.execution.fill_probability", 1.0)
	v.SetDefault("backtest.execution.min_fill_ratio", 0.5)

	v.SetDefault("optimization.method", "grid")
	v.SetDefault("optimization.objective", "sharpe_ratio")
	v.SetDefault("optimization.workers", 4)
	v.SetDefault("optimization.samples", 50)

	v.SetDefault("monte_carlo.iterations", 1000)
	v.SetDefault("monte_carlo.ruin_threshold", 0.5)
	v.SetDefault("monte_carlo.workers", 4)

	v.SetDefault("walk_forward.window_size", 200)
	v.SetDefault("walk_forward.step_size", 50)
	v.SetDefault("walk_forward.in_sample_ratio", 0.75)
	v.SetDefault("walk_forward.workers", 2)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.metrics_path", "/metrics")
}
