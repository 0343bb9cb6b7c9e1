package backtest

import (
	"fmt"
	"time"

	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/indicators"
	"github.com/yourusername/tradelab/internal/models"
)

const (
	defaultProgressInterval     = 100
	defaultPositionSizeFraction = 0.1
	defaultAnnualizationFactor  = 252
	defaultTradeTail            = 20
)

// ExecutionConfig controls how the fill simulator treats orders
type ExecutionConfig struct {
	FillProbability float64       `json:"fill_probability"`
	SlippageBps     float64       `json:"slippage_bps"`
	CommissionRate  float64       `json:"commission_rate"`
	Latency         time.Duration `json:"latency"`
	PartialFills    bool          `json:"partial_fills"`
	MinFillRatio    float64       `json:"min_fill_ratio"`
	// Seed 0 seeds from the clock
	Seed int64 `json:"seed"`
}

// BacktestConfig holds the settings of a single replay
type BacktestConfig struct {
	Symbol               string            `json:"symbol"`
	Resolution           models.Resolution `json:"resolution"`
	StartDate            time.Time         `json:"start_date"`
	EndDate              time.Time         `json:"end_date"`
	InitialBalance       float64           `json:"initial_balance"`
	LookbackWindow       int               `json:"lookback_window"`
	ProgressInterval     int               `json:"progress_interval"`
	PositionSizeFraction float64           `json:"position_size_fraction"`
	LiquidateAtEnd       bool              `json:"liquidate_at_end"`
	RiskFreeRate         float64           `json:"risk_free_rate"`
	AnnualizationFactor  float64           `json:"annualization_factor"`
	TradeTail            int               `json:"trade_tail"`
	OutputPath           string            `json:"output_path"`
	Execution            ExecutionConfig   `json:"execution"`
}

// DefaultConfig returns a frictionless configuration with a 10,000 balance
func DefaultConfig() BacktestConfig {
	return BacktestConfig{
		Resolution:           models.Resolution1d,
		InitialBalance:       10000,
		LookbackWindow:       indicators.DefaultLookback,
		ProgressInterval:     defaultProgressInterval,
		PositionSizeFraction: defaultPositionSizeFraction,
		AnnualizationFactor:  defaultAnnualizationFactor,
		TradeTail:            defaultTradeTail,
		Execution: ExecutionConfig{
			FillProbability: 1,
			MinFillRatio:    0.5,
		},
	}
}

// FromConfig converts app config to backtest config
func FromConfig(cfg *config.BacktestConfig) (BacktestConfig, error) {
	if cfg == nil {
		return BacktestConfig{}, fmt.Errorf("backtest config is required")
	}
	start, end, err := cfg.Window()
	if err != nil {
		return BacktestConfig{}, err
	}
	res, err := models.ParseResolution(cfg.Resolution)
	if err != nil {
		return BacktestConfig{}, err
	}

	bt := BacktestConfig{
		Symbol:               cfg.Symbol,
		Resolution:           res,
		StartDate:            start,
		EndDate:              end,
		InitialBalance:       cfg.InitialBalance,
		LookbackWindow:       cfg.LookbackWindow,
		ProgressInterval:     cfg.ProgressInterval,
		PositionSizeFraction: cfg.PositionSizeFraction,
		LiquidateAtEnd:       cfg.LiquidateAtEnd,
		RiskFreeRate:         cfg.RiskFreeRate,
		AnnualizationFactor:  cfg.AnnualizationFactor,
		TradeTail:            cfg.TradeTail,
		OutputPath:           cfg.OutputPath,
		Execution: ExecutionConfig{
			FillProbability: cfg.Execution.FillProbability,
			SlippageBps:     cfg.Execution.SlippageBps,
			CommissionRate:  cfg.Execution.CommissionRate,
			Latency:         time.Duration(cfg.Execution.LatencyMs) * time.Millisecond,
			PartialFills:    cfg.Execution.PartialFills,
			MinFillRatio:    cfg.Execution.MinFillRatio,
			Seed:            cfg.Execution.Seed,
		},
	}

	bt = bt.withDefaults()
	return bt, bt.Validate()
}

// Validate validates backtest config parameters
func (b BacktestConfig) Validate() error {
	if !b.StartDate.IsZero() && !b.EndDate.IsZero() && b.StartDate.After(b.EndDate) {
		return fmt.Errorf("start date must be before end date")
	}
	if b.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive")
	}
	if b.PositionSizeFraction < 0 || b.PositionSizeFraction > 1 {
		return fmt.Errorf("position size fraction must be within [0, 1]")
	}
	if b.RiskFreeRate < 0 {
		return fmt.Errorf("risk free rate must be non-negative")
	}
	ex := b.Execution
	if ex.FillProbability <= 0 || ex.FillProbability > 1 {
		return fmt.Errorf("fill probability must be within (0, 1]")
	}
	if ex.SlippageBps < 0 {
		return fmt.Errorf("slippage must be non-negative")
	}
	if ex.CommissionRate < 0 || ex.CommissionRate > 0.1 {
		return fmt.Errorf("commission rate must be between 0 and 0.1")
	}
	if ex.Latency < 0 {
		return fmt.Errorf("latency must be non-negative")
	}
	if ex.PartialFills && (ex.MinFillRatio <= 0 || ex.MinFillRatio > 1) {
		return fmt.Errorf("min fill ratio must be within (0, 1] when partial fills are enabled")
	}
	return nil
}

// MetricsConfig returns the analytics settings of this configuration
func (b BacktestConfig) MetricsConfig() MetricsConfig {
	return MetricsConfig{
		RiskFreeRate:        b.RiskFreeRate,
		AnnualizationFactor: b.AnnualizationFactor,
	}
}

func (b BacktestConfig) withDefaults() BacktestConfig {
	if b.LookbackWindow <= 0 {
		b.LookbackWindow = indicators.DefaultLookback
	}
	if b.ProgressInterval <= 0 {
		b.ProgressInterval = defaultProgressInterval
	}
	if b.PositionSizeFraction == 0 {
		b.PositionSizeFraction = defaultPositionSizeFraction
	}
	if b.AnnualizationFactor <= 0 {
		b.AnnualizationFactor = defaultAnnualizationFactor
	}
	if b.TradeTail <= 0 {
		b.TradeTail = defaultTradeTail
	}
	return b
}

// OptimizerConfigFrom converts the optimization section of app config
func OptimizerConfigFrom(cfg config.OptimizationConfig) OptimizerConfig {
	return OptimizerConfig{
		Workers: cfg.Workers,
		Samples: cfg.Samples,
		Seed:    cfg.Seed,
	}
}

// MonteCarloConfigFrom converts the monte_carlo section of app config
func MonteCarloConfigFrom(cfg config.MonteCarloConfig) MonteCarloConfig {
	return MonteCarloConfig{
		Iterations:    cfg.Iterations,
		Seed:          cfg.Seed,
		RuinThreshold: cfg.RuinThreshold,
		Workers:       cfg.Workers,
	}
}

// WalkForwardConfigFrom converts the walk_forward and optimization sections
func WalkForwardConfigFrom(cfg config.WalkForwardConfig, opt config.OptimizationConfig) WalkForwardConfig {
	return WalkForwardConfig{
		WindowSize:    cfg.WindowSize,
		StepSize:      cfg.StepSize,
		InSampleRatio: cfg.InSampleRatio,
		Workers:       cfg.Workers,
		MinTrades:     cfg.MinTrades,
		Method:        OptimizationMethod(opt.Method),
		Objective:     opt.Objective,
	}
}
