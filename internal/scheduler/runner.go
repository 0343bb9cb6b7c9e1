package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradelab/internal/backtest"
	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

// BacktestRunner runs scheduled jobs against a candle loader. The job's
// window ends at the start of the current UTC day and spans LookbackDays.
type BacktestRunner struct {
	Loader      backtest.SeriesLoader
	Registry    *strategy.Registry
	Base        backtest.BacktestConfig
	Optimizer   backtest.OptimizerConfig
	MonteCarlo  backtest.MonteCarloConfig
	WalkForward backtest.WalkForwardConfig
	// Space is searched by walk_forward jobs
	Space    backtest.ParameterSpace
	Observer backtest.Observer
	Logger   *logrus.Logger
	Now      func() time.Time
}

var _ JobRunner = (*BacktestRunner)(nil)

// RunJob loads the job's series and runs it in the job's mode
func (r *BacktestRunner) RunJob(ctx context.Context, job config.ScheduledJobConfig) error {
	engine, err := r.engine(job)
	if err != nil {
		return err
	}
	factory, err := r.Registry.Factory(job.Strategy)
	if err != nil {
		return err
	}
	series, err := engine.LoadSeries(ctx, r.Loader)
	if err != nil {
		return err
	}
	params := strategy.Params(job.StrategyParams)

	switch job.Mode {
	case "run":
		res, err := r.replay(ctx, engine, factory, params, series)
		if err != nil {
			return err
		}
		r.logger().WithFields(logrus.Fields{
			"job":          job.Name,
			"trades":       len(res.Trades),
			"total_return": res.Metrics.TotalReturn,
			"sharpe_ratio": res.Metrics.SharpeRatio,
		}).Info("Scheduled replay finished")
		return nil

	case "monte_carlo":
		res, err := r.replay(ctx, engine, factory, params, series)
		if err != nil {
			return err
		}
		mcCfg := r.MonteCarlo
		mcCfg.Strategy = res.Strategy
		mcCfg.Observer = r.Observer
		mcCfg.Logger = r.logger()
		_, err = backtest.RunMonteCarlo(ctx, res.Trades, res.InitialBalance, mcCfg)
		return err

	case "walk_forward":
		if len(r.Space.Parameters) == 0 {
			return fmt.Errorf("job %s: walk_forward requires a parameter space", job.Name)
		}
		withJobParams := func(p strategy.Params) (strategy.Strategy, error) {
			return factory(params.Merge(p))
		}
		res, err := backtest.NewWalkForwardAnalyzer(engine, r.Optimizer).Run(ctx, withJobParams, series, r.Space, r.WalkForward)
		if err != nil {
			return err
		}
		r.logger().WithFields(logrus.Fields{
			"job":         job.Name,
			"windows":     len(res.Windows),
			"consistency": res.ConsistencyScore,
			"efficiency":  res.Efficiency,
		}).Info("Scheduled walk-forward finished")
		return nil
	}
	return fmt.Errorf("job %s: unsupported mode %q", job.Name, job.Mode)
}

func (r *BacktestRunner) engine(job config.ScheduledJobConfig) (*backtest.Engine, error) {
	res, err := models.ParseResolution(job.Resolution)
	if err != nil {
		return nil, err
	}
	if job.LookbackDays <= 0 {
		return nil, fmt.Errorf("job %s: lookback_days must be positive", job.Name)
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	end := now().UTC().Truncate(24 * time.Hour)

	cfg := r.Base
	cfg.Symbol = job.Symbol
	cfg.Resolution = res
	cfg.StartDate = end.AddDate(0, 0, -job.LookbackDays)
	cfg.EndDate = end
	return backtest.NewEngine(cfg, r.logger(), backtest.WithObserver(r.Observer))
}

func (r *BacktestRunner) replay(ctx context.Context, engine *backtest.Engine, factory strategy.Factory, params strategy.Params, series models.CandleSeries) (*backtest.RunResult, error) {
	strat, err := factory(params)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, strat, series)
}

func (r *BacktestRunner) logger() *logrus.Logger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}
