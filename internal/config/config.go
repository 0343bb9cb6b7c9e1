// Package config provides configuration management for the tradelab backtester.
package config

import (
	"fmt"
	"time"
)

// DateLayout is the layout of configured dates
const DateLayout = "2006-01-02"

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	DataSource   DataSourceConfig   `mapstructure:"data_source" validate:"required"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Backtest     BacktestConfig     `mapstructure:"backtest" validate:"required"`
	Optimization OptimizationConfig `mapstructure:"optimization"`
	MonteCarlo   MonteCarloConfig   `mapstructure:"monte_carlo"`
	WalkForward  WalkForwardConfig  `mapstructure:"walk_forward"`
	Server       ServerConfig       `mapstructure:"server"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// DatabaseConfig represents PostgreSQL connection settings for the candle store
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"gte=0"`
}

// DataSourceConfig selects and configures the candle backend
type DataSourceConfig struct {
	Type      string           `mapstructure:"type" validate:"required,datasource"`
	HTTP      HTTPSourceConfig `mapstructure:"http"`
	Alpaca    AlpacaConfig     `mapstructure:"alpaca"`
	SQLite    SQLiteConfig     `mapstructure:"sqlite"`
	Parquet   ParquetConfig    `mapstructure:"parquet"`
	Synthetic SyntheticConfig  `mapstructure:"synthetic"`
}

// HTTPSourceConfig configures the paginated REST candle API
type HTTPSourceConfig struct {
	BaseURL        string  `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey         string  `mapstructure:"api_key"`
	PageSize       int     `mapstructure:"page_size" validate:"gte=0"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"gte=0"`
	MaxRetries     int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"gte=0"`
}

// AlpacaConfig configures the Alpaca market data client
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	Feed      string `mapstructure:"feed"`
}

// SQLiteConfig points at an embedded candle database
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ParquetConfig points at a directory of parquet candle files
type ParquetConfig struct {
	Dir string `mapstructure:"dir"`
}

// SyntheticConfig configures the random-walk generator
type SyntheticConfig struct {
	Seed       int64   `mapstructure:"seed"`
	StartPrice float64 `mapstructure:"start_price" validate:"gte=0"`
	Volatility float64 `mapstructure:"volatility" validate:"gte=0"`
	Drift      float64 `mapstructure:"drift"`
}

// CacheConfig bounds the historical data cache
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries" validate:"gte=0"`
}

// BacktestConfig represents backtesting configuration
type BacktestConfig struct {
	Symbol               string          `mapstructure:"symbol" validate:"required"`
	Resolution           string          `mapstructure:"resolution" validate:"required,resolution"`
	StartDate            string          `mapstructure:"start_date" validate:"required,date"`
	EndDate              string          `mapstructure:"end_date" validate:"required,date"`
	Strategy             string          `mapstructure:"strategy" validate:"required"`
	StrategyParams       map[string]any  `mapstructure:"strategy_params"`
	InitialBalance       float64         `mapstructure:"initial_balance" validate:"required,gt=0"`
	LookbackWindow       int             `mapstructure:"lookback_window" validate:"gte=0"`
	ProgressInterval     int             `mapstructure:"progress_interval" validate:"gte=0"`
	PositionSizeFraction float64         `mapstructure:"position_size_fraction" validate:"gte=0,lte=1"`
	LiquidateAtEnd       bool            `mapstructure:"liquidate_at_end"`
	RiskFreeRate         float64         `mapstructure:"risk_free_rate" validate:"gte=0"`
	AnnualizationFactor  float64         `mapstructure:"annualization_factor" validate:"gte=0"`
	TradeTail            int             `mapstructure:"trade_tail" validate:"gte=0"`
	OutputPath           string          `mapstructure:"output_path"`
	Execution            ExecutionConfig `mapstructure:"execution"`
}

// ExecutionConfig configures the fill simulator
type ExecutionConfig struct {
	FillProbability float64 `mapstructure:"fill_probability" validate:"gte=0,lte=1"`
	SlippageBps     float64 `mapstructure:"slippage_bps" validate:"gte=0"`
	CommissionRate  float64 `mapstructure:"commission_rate" validate:"gte=0,lte=0.1"`
	LatencyMs       int     `mapstructure:"latency_ms" validate:"gte=0"`
	PartialFills    bool    `mapstructure:"partial_fills"`
	MinFillRatio    float64 `mapstructure:"min_fill_ratio" validate:"gte=0,lte=1"`
	Seed            int64   `mapstructure:"seed"`
}

// OptimizationConfig configures parameter searches
type OptimizationConfig struct {
	Method    string `mapstructure:"method" validate:"omitempty,method"`
	Objective string `mapstructure:"objective"`
	Workers   int    `mapstructure:"workers" validate:"gte=0"`
	Samples   int    `mapstructure:"samples" validate:"gte=0"`
	Seed      int64  `mapstructure:"seed"`
	SpaceFile string `mapstructure:"space_file"`
}

// MonteCarloConfig configures trade resampling
type MonteCarloConfig struct {
	Iterations    int     `mapstructure:"iterations" validate:"gte=0"`
	Seed          int64   `mapstructure:"seed"`
	RuinThreshold float64 `mapstructure:"ruin_threshold" validate:"gte=0,lte=1"`
	Workers       int     `mapstructure:"workers" validate:"gte=0"`
}

// WalkForwardConfig configures rolling in-sample/out-of-sample validation
type WalkForwardConfig struct {
	WindowSize    int     `mapstructure:"window_size" validate:"gte=0"`
	StepSize      int     `mapstructure:"step_size" validate:"gte=0"`
	InSampleRatio float64 `mapstructure:"in_sample_ratio" validate:"gte=0,lt=1"`
	Workers       int     `mapstructure:"workers" validate:"gte=0"`
	MinTrades     int     `mapstructure:"min_trades" validate:"gte=0"`
}

// ServerConfig configures the health, metrics and event stream server
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// SchedulerConfig lists recurring backtest jobs
type SchedulerConfig struct {
	Enabled bool                 `mapstructure:"enabled"`
	Jobs    []ScheduledJobConfig `mapstructure:"jobs" validate:"dive"`
}

// ScheduledJobConfig describes one cron-driven backtest
type ScheduledJobConfig struct {
	Name           string         `mapstructure:"name" validate:"required"`
	Schedule       string         `mapstructure:"schedule" validate:"required"`
	Mode           string         `mapstructure:"mode" validate:"required,oneof=run monte_carlo walk_forward"`
	Symbol         string         `mapstructure:"symbol" validate:"required"`
	Resolution     string         `mapstructure:"resolution" validate:"required,resolution"`
	LookbackDays   int            `mapstructure:"lookback_days" validate:"required,gt=0"`
	Strategy       string         `mapstructure:"strategy" validate:"required"`
	StrategyParams map[string]any `mapstructure:"strategy_params"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// SecretsConfig enables the AWS Secrets Manager overlay
type SecretsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Region     string `mapstructure:"region"`
	SecretName string `mapstructure:"secret_name"`
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging returns true if running in staging environment
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Window parses the configured backtest date range. The end date is
// inclusive, so the returned end is the last instant of that day.
func (b BacktestConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse(DateLayout, b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date: %w", err)
	}
	return start, end.Add(24*time.Hour - time.Nanosecond), nil
}
