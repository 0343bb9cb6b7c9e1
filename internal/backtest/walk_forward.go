package backtest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

const methodWalkForward = "walk_forward"

// WalkForwardConfig configures walk-forward optimization. Sizes count
// candles.
type WalkForwardConfig struct {
	WindowSize    int                `json:"window_size"`
	StepSize      int                `json:"step_size"`
	InSampleRatio float64            `json:"in_sample_ratio"`
	Workers       int                `json:"workers"`
	Method        OptimizationMethod `json:"method"`
	Objective     string             `json:"objective"`
	// MinTrades excludes windows with fewer out-of-sample trades from the
	// aggregates
	MinTrades int `json:"min_trades"`
}

// WindowBounds are candle index ranges [start, end) of one window
type WindowBounds struct {
	InSampleStart    int `json:"in_sample_start"`
	InSampleEnd      int `json:"in_sample_end"`
	OutOfSampleStart int `json:"out_of_sample_start"`
	OutOfSampleEnd   int `json:"out_of_sample_end"`
}

// WalkForwardWindow represents one walk-forward window
type WalkForwardWindow struct {
	Index              int             `json:"index"`
	Bounds             WindowBounds    `json:"bounds"`
	InSampleStart      time.Time       `json:"in_sample_start"`
	InSampleEnd        time.Time       `json:"in_sample_end"`
	OutOfSampleStart   time.Time       `json:"out_of_sample_start"`
	OutOfSampleEnd     time.Time       `json:"out_of_sample_end"`
	Parameters         strategy.Params `json:"parameters,omitempty"`
	InSampleScore      float64         `json:"in_sample_score"`
	OutOfSampleScore   float64         `json:"out_of_sample_score"`
	InSampleMetrics    Metrics         `json:"in_sample_metrics"`
	OutOfSampleMetrics Metrics         `json:"out_of_sample_metrics"`
	BelowMinTrades     bool            `json:"below_min_trades,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// WalkForwardResult represents walk-forward optimization result
type WalkForwardResult struct {
	Windows           []WalkForwardWindow `json:"windows"`
	AggregatedMetrics Metrics             `json:"aggregated_metrics"`
	ConsistencyScore  float64             `json:"consistency_score"`
	OverfitScore      float64             `json:"overfit_score"`
	Efficiency        float64             `json:"efficiency"`
	Failed            int                 `json:"failed"`
	// Err combines the errors of failed windows
	Err error `json:"-"`
}

// PlanWindows lays out windows of windowSize candles over n candles,
// advancing by stepSize while the window still fits. Each window's first
// floor(windowSize*ratio) candles are in-sample.
func PlanWindows(n, windowSize, stepSize int, ratio float64) ([]WindowBounds, error) {
	if windowSize <= 0 || stepSize <= 0 {
		return nil, fmt.Errorf("window and step size must be positive")
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("in-sample ratio must be within (0, 1)")
	}
	inSample := int(math.Floor(float64(windowSize) * ratio))
	if inSample < 1 || inSample >= windowSize {
		return nil, fmt.Errorf("window of %d candles leaves no in-sample or out-of-sample data at ratio %.2f", windowSize, ratio)
	}
	var out []WindowBounds
	for start := 0; start+windowSize <= n; start += stepSize {
		out = append(out, WindowBounds{
			InSampleStart:    start,
			InSampleEnd:      start + inSample,
			OutOfSampleStart: start + inSample,
			OutOfSampleEnd:   start + windowSize,
		})
	}
	return out, nil
}

// WalkForwardAnalyzer optimizes on each in-sample window and validates the
// winner on the following out-of-sample candles
type WalkForwardAnalyzer struct {
	engine    *Engine
	optimizer *Optimizer
	log       *logger.BacktestLogger
}

// NewWalkForwardAnalyzer creates an analyzer. optCfg bounds the optimizer
// inside each window, so up to Workers*optCfg.Workers runs execute at once.
func NewWalkForwardAnalyzer(engine *Engine, optCfg OptimizerConfig) *WalkForwardAnalyzer {
	return &WalkForwardAnalyzer{
		engine:    engine,
		optimizer: NewOptimizer(engine, optCfg),
		log:       logger.NewBacktestLogger(engine.Logger()),
	}
}

// Run performs walk-forward optimization over series. A failing window is
// recorded with its error; Run errors only when every window fails or ctx
// is cancelled.
func (a *WalkForwardAnalyzer) Run(ctx context.Context, factory strategy.Factory, series models.CandleSeries, space ParameterSpace, cfg WalkForwardConfig) (WalkForwardResult, error) {
	if factory == nil {
		return WalkForwardResult{}, fmt.Errorf("strategy factory is required")
	}
	if cfg.Method == "" {
		cfg.Method = MethodGrid
	}
	if cfg.Method != MethodGrid && cfg.Method != MethodRandom {
		return WalkForwardResult{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, cfg.Method)
	}
	if cfg.Objective == "" {
		cfg.Objective = defaultObjective
	}
	if _, err := (Metrics{}).Objective(cfg.Objective); err != nil {
		return WalkForwardResult{}, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	combos, err := a.optimizer.Combinations(space, cfg.Method)
	if err != nil {
		return WalkForwardResult{}, err
	}
	bounds, err := PlanWindows(series.Len(), cfg.WindowSize, cfg.StepSize, cfg.InSampleRatio)
	if err != nil {
		return WalkForwardResult{}, err
	}
	if len(bounds) == 0 {
		return WalkForwardResult{}, fmt.Errorf("%w: %d candles do not fit one window of %d", ErrNoCandles, series.Len(), cfg.WindowSize)
	}

	started := time.Now()
	windows := make([]WalkForwardWindow, len(bounds))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, b := range bounds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			windows[i] = a.runWindow(gctx, factory, series, combos, i, b, cfg)
			done := completed.Add(1)
			emit(a.engine.Observer(), Event{
				Type:    EventWalkForwardWindow,
				Method:  methodWalkForward,
				Symbol:  series.Symbol,
				Step:    int(done),
				Total:   len(bounds),
				Message: fmt.Sprintf("window %d", i),
				Error:   windows[i].Error,
			})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		metrics.RecordBacktestRun(methodWalkForward, "failure")
		return WalkForwardResult{Windows: windows}, err
	}

	result := WalkForwardResult{Windows: windows}
	eligible := make([]WalkForwardWindow, 0, len(windows))
	for _, w := range windows {
		if w.Error != "" {
			result.Failed++
			result.Err = multierr.Append(result.Err, fmt.Errorf("window %d: %s", w.Index, w.Error))
			continue
		}
		if w.BelowMinTrades {
			continue
		}
		eligible = append(eligible, w)
	}
	if result.Failed == len(windows) {
		metrics.RecordBacktestRun(methodWalkForward, "failure")
		return result, fmt.Errorf("all %d walk-forward windows failed: %w", len(windows), result.Err)
	}

	result.AggregatedMetrics = aggregateWalkForward(eligible)
	result.ConsistencyScore = CalculateConsistency(eligible)
	result.OverfitScore = calculateOverfitScore(eligible)
	result.Efficiency = calculateEfficiency(eligible)

	metrics.RecordBacktestRun(methodWalkForward, "success")
	metrics.RecordBacktestDuration(methodWalkForward, time.Since(started).Seconds())
	return result, nil
}

func (a *WalkForwardAnalyzer) runWindow(ctx context.Context, factory strategy.Factory, series models.CandleSeries, combos []strategy.Params, index int, b WindowBounds, cfg WalkForwardConfig) WalkForwardWindow {
	inSample := series.Slice(b.InSampleStart, b.InSampleEnd)
	outOfSample := series.Slice(b.OutOfSampleStart, b.OutOfSampleEnd)
	w := WalkForwardWindow{
		Index:            index,
		Bounds:           b,
		InSampleStart:    inSample.Start(),
		InSampleEnd:      inSample.End(),
		OutOfSampleStart: outOfSample.Start(),
		OutOfSampleEnd:   outOfSample.End(),
	}

	report, err := a.optimizer.evaluate(ctx, factory, inSample, combos, cfg.Method, cfg.Objective, true)
	if err != nil {
		w.Error = err.Error()
		return w
	}
	if report.Best == nil {
		w.Error = "no successful in-sample combination"
		return w
	}
	w.Parameters = report.Best.Parameters
	w.InSampleScore = report.Best.Score
	w.InSampleMetrics = report.Best.Metrics

	strat, err := factory(report.Best.Parameters)
	if err != nil {
		w.Error = fmt.Sprintf("build strategy: %v", err)
		return w
	}
	run, err := a.engine.replay(ctx, strat, outOfSample, NewAccount(a.engine.config.InitialBalance), runOptions{method: methodWalkForward, quiet: true})
	if err != nil {
		w.Error = err.Error()
		return w
	}
	w.OutOfSampleMetrics = run.Metrics
	w.OutOfSampleScore, _ = run.Metrics.Objective(cfg.Objective)
	w.BelowMinTrades = cfg.MinTrades > 0 && run.Metrics.TotalTrades < cfg.MinTrades

	a.log.LogWalkForwardWindow(index, w.InSampleScore, w.OutOfSampleScore, w.Parameters)
	return w
}

// CalculateConsistency calculates the fraction of profitable windows
func CalculateConsistency(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	profitable := 0
	for _, w := range windows {
		if w.OutOfSampleMetrics.TotalReturn > 0 {
			profitable++
		}
	}
	return float64(profitable) / float64(len(windows))
}

func calculateOverfitScore(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	trainReturn := 0.0
	testReturn := 0.0
	for _, w := range windows {
		trainReturn += w.InSampleMetrics.TotalReturn
		testReturn += w.OutOfSampleMetrics.TotalReturn
	}
	if trainReturn == 0 {
		return 0
	}
	return (trainReturn - testReturn) / trainReturn
}

// calculateEfficiency compares annualized out-of-sample returns with the
// in-sample returns they were optimized on
func calculateEfficiency(windows []WalkForwardWindow) float64 {
	inSample, outOfSample := 0.0, 0.0
	for _, w := range windows {
		inSample += w.InSampleMetrics.AnnualizedReturn
		outOfSample += w.OutOfSampleMetrics.AnnualizedReturn
	}
	if inSample == 0 {
		return 0
	}
	return outOfSample / inSample
}

func aggregateWalkForward(windows []WalkForwardWindow) Metrics {
	if len(windows) == 0 {
		return Metrics{}
	}
	m := Metrics{}
	for _, w := range windows {
		oos := w.OutOfSampleMetrics
		m.TotalReturn += oos.TotalReturn
		m.AnnualizedReturn += oos.AnnualizedReturn
		m.SharpeRatio += oos.SharpeRatio
		m.SortinoRatio += oos.SortinoRatio
		m.MaxDrawdown += oos.MaxDrawdown
		m.WinRate += oos.WinRate
		m.NetProfit += oos.NetProfit
		m.TotalTrades += oos.TotalTrades
		m.WinningTrades += oos.WinningTrades
		m.LosingTrades += oos.LosingTrades
	}
	n := float64(len(windows))
	m.TotalReturn /= n
	m.AnnualizedReturn /= n
	m.SharpeRatio /= n
	m.SortinoRatio /= n
	m.MaxDrawdown /= n
	m.WinRate /= n
	m.NetProfit /= n
	m.StartDate = windows[0].OutOfSampleStart
	m.EndDate = windows[len(windows)-1].OutOfSampleEnd
	return m
}

// ToJSON exports the walk-forward result
func (w WalkForwardResult) ToJSON() string {
	data, _ := json.Marshal(w)
	return string(data)
}
