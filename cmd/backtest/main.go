// Package main provides the entry point for the tradelab backtesting CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/tradelab/internal/backtest"
	"github.com/yourusername/tradelab/internal/cache"
	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/database"
	"github.com/yourusername/tradelab/internal/datasource"
	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/strategy"
	"github.com/yourusername/tradelab/internal/strategy/builtins"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile   string
	strategyName string
	symbol       string
	resolution   string
	startDate    string
	endDate      string
	outputPath   string
)

// app holds the dependencies shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	db       *database.DB
	source   datasource.Source
	cache    *cache.HistoricalCache
	registry *strategy.Registry
}

var deps app

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay, optimize and validate trading strategies on historical candles",
	Long: `backtest replays candle series through registered strategies with a simulated
account and reports performance and risk analytics. Subcommands add parameter
optimization, Monte Carlo resampling and walk-forward validation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		deps.close()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	flags.StringVarP(&strategyName, "strategy", "s", "", "Strategy name (overrides backtest.strategy)")
	flags.StringVar(&symbol, "symbol", "", "Symbol (overrides backtest.symbol)")
	flags.StringVar(&resolution, "resolution", "", "Candle resolution (overrides backtest.resolution)")
	flags.StringVar(&startDate, "start-date", "", "Start date YYYY-MM-DD (overrides backtest.start_date)")
	flags.StringVar(&endDate, "end-date", "", "End date YYYY-MM-DD, inclusive (overrides backtest.end_date)")
	flags.StringVarP(&outputPath, "output", "o", "", "Output directory (overrides backtest.output_path)")

	rootCmd.AddCommand(runCmd, optimizeCmd, monteCarloCmd, walkForwardCmd, validateCmd, fetchCmd, serveCmd, strategiesCmd)
	rootCmd.Version = fmt.Sprintf("%s (%s)", Version, GitCommit)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig(ctx context.Context) error {
	cfg, err := config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	secretsCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := config.LoadSecretsFromAWS(secretsCtx, cfg); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	deps.cfg = cfg
	return nil
}

func applyOverrides(cfg *config.Config) {
	if strategyName != "" {
		cfg.Backtest.Strategy = strategyName
	}
	if symbol != "" {
		cfg.Backtest.Symbol = symbol
	}
	if resolution != "" {
		cfg.Backtest.Resolution = resolution
	}
	if startDate != "" {
		cfg.Backtest.StartDate = startDate
	}
	if endDate != "" {
		cfg.Backtest.EndDate = endDate
	}
	if outputPath != "" {
		cfg.Backtest.OutputPath = outputPath
	}
}

func setupDependencies(ctx context.Context) error {
	cfg := deps.cfg
	deps.logger = logger.New(logger.Options{
		Level:      cfg.App.LogLevel,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	metrics.InitRegistry()

	if cfg.DataSource.Type == string(datasource.PostgresSourceType) {
		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		deps.db = db
	}

	source, err := datasource.NewFactory(cfg, deps.db, deps.logger).Create(ctx)
	if err != nil {
		return err
	}
	deps.source = source
	deps.cache = cache.NewHistoricalCache(source, cfg.Cache.MaxEntries, deps.logger)

	registry, err := builtins.NewRegistry()
	if err != nil {
		return err
	}
	deps.registry = registry
	return nil
}

func (a *app) close() {
	if c, ok := a.source.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// newEngine builds an engine from the loaded configuration
func (a *app) newEngine(opts ...backtest.Option) (*backtest.Engine, error) {
	btCfg, err := backtest.FromConfig(&a.cfg.Backtest)
	if err != nil {
		return nil, err
	}
	return backtest.NewEngine(btCfg, a.logger, opts...)
}

// factory returns the configured strategy's factory with the configured
// parameters applied under any optimizer overrides
func (a *app) factory() (strategy.Factory, error) {
	base, err := a.registry.Factory(a.cfg.Backtest.Strategy)
	if err != nil {
		return nil, err
	}
	params := strategy.Params(a.cfg.Backtest.StrategyParams)
	return func(override strategy.Params) (strategy.Strategy, error) {
		return base(params.Merge(override))
	}, nil
}

// replay loads the configured series and runs the configured strategy once
func (a *app) replay(ctx context.Context, engine *backtest.Engine) (*backtest.RunResult, error) {
	series, err := engine.LoadSeries(ctx, a.cache)
	if err != nil {
		return nil, err
	}
	factory, err := a.factory()
	if err != nil {
		return nil, err
	}
	strat, err := factory(nil)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, strat, series)
}

func (a *app) parameterSpace(path string) (backtest.ParameterSpace, error) {
	if path == "" {
		path = a.cfg.Optimization.SpaceFile
	}
	if path == "" {
		return backtest.ParameterSpace{}, fmt.Errorf("a parameter space file is required (--space or optimization.space_file)")
	}
	return backtest.LoadParameterSpace(path)
}

// progressObserver logs run and search progress at debug level
func (a *app) progressObserver() backtest.Observer {
	return backtest.ObserverFunc(func(e backtest.Event) {
		entry := a.logger.WithFields(logrus.Fields{"event": e.Type, "step": e.Step, "total": e.Total})
		if e.Error != "" {
			entry.WithField("error", e.Error).Warn("Backtest event")
			return
		}
		entry.Debug("Backtest event")
	})
}
