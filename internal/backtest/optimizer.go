package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

// OptimizationMethod selects how a parameter space is searched
type OptimizationMethod string

const (
	MethodGrid   OptimizationMethod = "grid"
	MethodRandom OptimizationMethod = "random"
)

const (
	methodOptimization = "optimization"
	defaultObjective   = "sharpe_ratio"
	defaultSamples     = 50
)

// OptimizerConfig bounds an optimization
type OptimizerConfig struct {
	// Workers caps concurrent runs; 0 uses GOMAXPROCS
	Workers int `json:"workers"`
	// Samples is the number of combinations random search draws
	Samples int   `json:"samples"`
	Seed    int64 `json:"seed"`
}

// OptimizationResult is the outcome of one parameter combination
type OptimizationResult struct {
	Index      int             `json:"index"`
	Parameters strategy.Params `json:"parameters"`
	Hash       string          `json:"hash"`
	Metrics    Metrics         `json:"metrics"`
	Score      float64         `json:"score"`
	Trades     int             `json:"trades"`
	Error      string          `json:"error,omitempty"`
	err        error
	strategy   string
}

// Failed reports whether the combination's run errored
func (r OptimizationResult) Failed() bool {
	return r.err != nil || r.Error != ""
}

// OptimizationReport collects every combination in generation order
type OptimizationReport struct {
	Strategy  string               `json:"strategy"`
	Method    OptimizationMethod   `json:"method"`
	Objective string               `json:"objective"`
	Results   []OptimizationResult `json:"results"`
	Best      *OptimizationResult  `json:"best,omitempty"`
	Evaluated int                  `json:"evaluated"`
	Failed    int                  `json:"failed"`
	Duration  time.Duration        `json:"duration"`
	// Err combines the errors of failed combinations
	Err error `json:"-"`
}

// Optimizer runs a strategy over many parameter combinations on a bounded
// worker pool
type Optimizer struct {
	engine *Engine
	cfg    OptimizerConfig
	log    *logger.BacktestLogger
}

// NewOptimizer creates an optimizer that replays through engine
func NewOptimizer(engine *Engine, cfg OptimizerConfig) *Optimizer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Samples <= 0 {
		cfg.Samples = defaultSamples
	}
	return &Optimizer{engine: engine, cfg: cfg, log: logger.NewBacktestLogger(engine.Logger())}
}

// Combinations expands the space for method
func (o *Optimizer) Combinations(space ParameterSpace, method OptimizationMethod) ([]strategy.Params, error) {
	switch method {
	case MethodGrid, "":
		return space.Grid()
	case MethodRandom:
		return space.Sample(o.cfg.Samples, o.cfg.Seed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// Optimize runs every combination of space and picks the one with the
// highest objective score. Failed combinations are recorded and skipped;
// the call errors only when every combination fails or ctx is cancelled.
// Ties keep the combination generated first.
func (o *Optimizer) Optimize(ctx context.Context, factory strategy.Factory, series models.CandleSeries, space ParameterSpace, method OptimizationMethod, objective string) (*OptimizationReport, error) {
	if factory == nil {
		return nil, fmt.Errorf("strategy factory is required")
	}
	if method == "" {
		method = MethodGrid
	}
	if method != MethodGrid && method != MethodRandom {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if objective == "" {
		objective = defaultObjective
	}
	if _, err := (Metrics{}).Objective(objective); err != nil {
		return nil, err
	}
	combos, err := o.Combinations(space, method)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	report, err := o.evaluate(ctx, factory, series, combos, method, objective, false)
	if err != nil {
		metrics.RecordBacktestRun(methodOptimization, "failure")
		return report, err
	}
	report.Duration = time.Since(started)

	best := 0.0
	if report.Best != nil {
		best = report.Best.Score
		metrics.UpdateOptimizationBest(report.Strategy, objective, best)
		o.log.LogOptimizationCompleted(report.Strategy, string(method), objective, len(combos), report.Failed, best, report.Best.Parameters)
	}
	metrics.RecordBacktestRun(methodOptimization, "success")
	metrics.RecordBacktestDuration(methodOptimization, report.Duration.Seconds())
	return report, nil
}

func (o *Optimizer) evaluate(ctx context.Context, factory strategy.Factory, series models.CandleSeries, combos []strategy.Params, method OptimizationMethod, objective string, quiet bool) (*OptimizationReport, error) {
	results := make([]OptimizationResult, len(combos))
	var completed atomic.Int64
	observer := o.engine.Observer()
	if quiet {
		observer = nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, params := range combos {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = o.runOne(gctx, factory, series, i, params, objective)
			done := completed.Add(1)
			emit(observer, Event{
				Type:   EventOptimizationProgress,
				Method: string(method),
				Symbol: series.Symbol,
				Step:   int(done),
				Total:  len(combos),
			})
			return nil
		})
	}
	_ = g.Wait()

	report := &OptimizationReport{
		Method:    method,
		Objective: objective,
		Results:   results,
		Evaluated: int(completed.Load()),
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	var errs error
	for i := range results {
		res := &results[i]
		if res.Failed() {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("combination %d: %w", res.Index, res.err))
			continue
		}
		if report.Strategy == "" {
			report.Strategy = res.strategy
		}
		if report.Best == nil || res.Score > report.Best.Score {
			report.Best = res
		}
	}
	report.Err = errs
	if len(combos) > 0 && report.Failed == len(combos) {
		return report, fmt.Errorf("all %d combinations failed: %w", len(combos), errs)
	}
	return report, nil
}

func (o *Optimizer) runOne(ctx context.Context, factory strategy.Factory, series models.CandleSeries, index int, params strategy.Params, objective string) OptimizationResult {
	res := OptimizationResult{Index: index, Parameters: params, Hash: HashParameters(params)}
	fail := func(err error) OptimizationResult {
		res.err = err
		res.Error = err.Error()
		return res
	}

	strat, err := factory(params)
	if err != nil {
		return fail(fmt.Errorf("build strategy: %w", err))
	}
	run, err := o.engine.replay(ctx, strat, series, NewAccount(o.engine.config.InitialBalance), runOptions{method: methodOptimization, quiet: true})
	if err != nil {
		return fail(err)
	}
	score, err := run.Metrics.Objective(objective)
	if err != nil {
		return fail(err)
	}
	res.Metrics = run.Metrics
	res.strategy = run.Strategy
	res.Score = score
	res.Trades = len(run.Trades)
	return res
}
