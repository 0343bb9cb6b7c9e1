package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradelab/internal/indicators"
	"github.com/yourusername/tradelab/internal/logger"
	"github.com/yourusername/tradelab/internal/metrics"
	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

const methodReplay = "replay"

// SeriesLoader loads a candle series for a symbol, resolution and window.
// The historical cache satisfies it.
type SeriesLoader interface {
	GetOrLoad(ctx context.Context, symbol string, resolution models.Resolution, start, end time.Time) (models.CandleSeries, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver sets the observer that receives run events
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithFillDecider overrides the probabilistic fill decision
func WithFillDecider(d FillDecider) Option {
	return func(e *Engine) { e.decider = d }
}

// Engine replays candle series through strategies. An Engine holds no
// per-run state and may run replays concurrently.
type Engine struct {
	config   BacktestConfig
	logger   *logrus.Logger
	log      *logger.BacktestLogger
	observer Observer
	decider  FillDecider
}

// NewEngine creates a new backtesting engine
func NewEngine(cfg BacktestConfig, log *logrus.Logger, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	e := &Engine{
		config: cfg,
		logger: log,
		log:    logger.NewBacktestLogger(log),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the backtest configuration
func (e *Engine) Config() BacktestConfig {
	return e.config
}

// Logger returns the engine logger
func (e *Engine) Logger() *logrus.Logger {
	return e.logger
}

// Observer returns the configured observer, possibly nil
func (e *Engine) Observer() Observer {
	return e.observer
}

// RunResult is the outcome of one replay
type RunResult struct {
	RunID          string            `json:"run_id"`
	Strategy       string            `json:"strategy"`
	Parameters     strategy.Params   `json:"parameters,omitempty"`
	Symbol         string            `json:"symbol"`
	Resolution     models.Resolution `json:"resolution"`
	Start          time.Time         `json:"start"`
	End            time.Time         `json:"end"`
	InitialBalance float64           `json:"initial_balance"`
	Steps          int               `json:"steps"`
	SignalsDropped int               `json:"signals_dropped"`
	Trades         []models.Trade    `json:"trades"`
	Orders         []models.Order    `json:"orders"`
	OpenPositions  []models.Position `json:"open_positions,omitempty"`
	Equity         EquityCurve       `json:"equity"`
	Metrics        Metrics           `json:"metrics"`
	Duration       time.Duration     `json:"duration"`
	Account        *Account          `json:"-"`
}

// LoadSeries loads the configured symbol, resolution and date range
func (e *Engine) LoadSeries(ctx context.Context, loader SeriesLoader) (models.CandleSeries, error) {
	cfg := e.config
	emit(e.observer, Event{Type: EventDataLoading, Symbol: cfg.Symbol, Method: methodReplay})
	series, err := loader.GetOrLoad(ctx, cfg.Symbol, cfg.Resolution, cfg.StartDate, cfg.EndDate)
	if err != nil {
		emit(e.observer, Event{Type: EventRunFailed, Symbol: cfg.Symbol, Method: methodReplay, Error: err.Error()})
		return models.CandleSeries{}, err
	}
	emit(e.observer, Event{Type: EventDataLoaded, Symbol: cfg.Symbol, Method: methodReplay, Total: series.Len()})
	return series, nil
}

// Run replays series through strat on a fresh account
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, series models.CandleSeries) (*RunResult, error) {
	return e.Replay(ctx, strat, series, NewAccount(e.config.InitialBalance))
}

// Replay resets account and replays series through strat
func (e *Engine) Replay(ctx context.Context, strat strategy.Strategy, series models.CandleSeries, account *Account) (*RunResult, error) {
	return e.replay(ctx, strat, series, account, runOptions{method: methodReplay})
}

type runOptions struct {
	method string
	// quiet suppresses events and lowers run logs to debug, for sub-runs
	// of optimizations and walk-forward windows
	quiet bool
}

// replay drives one run. Each step, in order: advance the clock, build the
// indicator window, work pending limit and stop orders, mark positions and
// apply stop-loss and take-profit exits, ask the strategy for signals,
// execute them, and record equity.
func (e *Engine) replay(ctx context.Context, strat strategy.Strategy, series models.CandleSeries, account *Account, opts runOptions) (*RunResult, error) {
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if account == nil {
		return nil, fmt.Errorf("account is required")
	}
	if series.Len() == 0 {
		return nil, ErrNoCandles
	}
	if err := series.Validate(); err != nil {
		return nil, &DataLoadError{Source: "series", Symbol: series.Symbol, Err: err}
	}

	started := time.Now()
	r := &run{
		engine:   e,
		opts:     opts,
		id:       uuid.NewString(),
		strat:    strat,
		name:     strat.Name(),
		series:   series,
		account:  account,
		sim:      NewExecutionSimulator(e.config.Execution, e.decider),
		observer: e.observer,
	}
	if opts.quiet {
		r.observer = nil
	}

	account.Reset()
	account.SetTime(series.Start())
	account.Snapshot()
	metrics.RecordCandles(series.Len())

	if init, ok := strat.(strategy.Initializer); ok {
		err := init.Initialize(ctx, strategy.InitContext{
			Symbol:         series.Symbol,
			Resolution:     series.Resolution,
			Start:          series.Start(),
			End:            series.End(),
			Candles:        series.Len(),
			InitialBalance: account.InitialBalance(),
		})
		if err != nil {
			return nil, r.fail(&StrategyFaultError{Strategy: r.name, Step: 0, Time: series.Start(), Err: err})
		}
	}

	if opts.quiet {
		e.logger.WithFields(logrus.Fields{"run_id": r.id, "strategy": r.name, "candles": series.Len()}).Debug("Sub-run started")
	} else {
		e.log.LogRunStarted(r.id, r.name, series.Symbol, series.Len(), account.InitialBalance())
	}
	emit(r.observer, Event{Type: EventRunStarted, RunID: r.id, Method: opts.method, Symbol: series.Symbol, Total: series.Len()})

	interval := e.config.ProgressInterval
	for i := range series.Candles {
		if i%interval == 0 && i > 0 {
			if err := ctx.Err(); err != nil {
				return nil, r.fail(err)
			}
			emit(r.observer, Event{Type: EventRunProgress, RunID: r.id, Method: opts.method, Symbol: series.Symbol, Step: i, Total: series.Len()})
		}
		if err := r.step(ctx, i); err != nil {
			return nil, r.fail(err)
		}
	}

	result := &RunResult{
		RunID:          r.id,
		Strategy:       r.name,
		Symbol:         series.Symbol,
		Resolution:     series.Resolution,
		Start:          series.Start(),
		End:            series.End(),
		InitialBalance: account.InitialBalance(),
		Steps:          series.Len(),
		SignalsDropped: r.dropped,
		Trades:         account.Trades(),
		Orders:         account.Orders(),
		OpenPositions:  account.Positions(),
		Equity:         account.EquityCurve(),
		Account:        account,
	}
	if p, ok := strat.(strategy.Parameterized); ok {
		result.Parameters = p.Parameters()
	}
	result.Metrics = CalculateMetrics(result.Trades, result.Equity, result.InitialBalance, e.config.MetricsConfig())
	result.Duration = time.Since(started)

	metrics.RecordBacktestRun(opts.method, "success")
	metrics.RecordBacktestDuration(opts.method, result.Duration.Seconds())
	if opts.quiet {
		e.logger.WithFields(logrus.Fields{"run_id": r.id, "strategy": r.name, "trades": len(result.Trades)}).Debug("Sub-run completed")
	} else {
		e.log.LogRunCompleted(r.id, r.name, len(result.Trades), result.Metrics.FinalEquity, result.Metrics.TotalReturn, result.Duration)
	}
	emit(r.observer, Event{Type: EventRunCompleted, RunID: r.id, Method: opts.method, Symbol: series.Symbol, Step: series.Len(), Total: series.Len()})
	return result, nil
}

// run is the mutable state of one replay
type run struct {
	engine   *Engine
	opts     runOptions
	id       string
	strat    strategy.Strategy
	name     string
	series   models.CandleSeries
	account  *Account
	sim      *ExecutionSimulator
	observer Observer
	current  int
	dropped  int
}

func (r *run) fail(err error) error {
	metrics.RecordBacktestRun(r.opts.method, "failure")
	if r.opts.quiet {
		r.engine.logger.WithFields(logrus.Fields{"run_id": r.id, "strategy": r.name, "step": r.current}).WithError(err).Debug("Sub-run failed")
	} else {
		r.engine.log.LogRunFailed(r.id, r.name, r.current, err)
	}
	emit(r.observer, Event{Type: EventRunFailed, RunID: r.id, Method: r.opts.method, Symbol: r.series.Symbol, Step: r.current, Total: r.series.Len(), Error: err.Error()})
	return err
}

func (r *run) step(ctx context.Context, i int) error {
	r.current = i
	candles := r.series.Candles
	candle := candles[i]
	cfg := r.engine.config

	r.account.SetTime(candle.Timestamp)
	window := indicators.NewWindow(candles, i, cfg.LookbackWindow)

	r.processPendingOrders(candle)
	r.applyExits(candle)

	from := i + 1 - cfg.LookbackWindow
	if from < 0 {
		from = 0
	}
	snapshot := strategy.MarketSnapshot{
		Symbol:     r.series.Symbol,
		Resolution: r.series.Resolution,
		Time:       candle.Timestamp,
		Step:       i,
		TotalSteps: len(candles),
		Candle:     candle,
		History:    candles[from : i+1 : i+1],
		Indicators: window,
	}
	signals, err := r.analyze(ctx, snapshot)
	if err != nil {
		return &StrategyFaultError{Strategy: r.name, Step: i, Time: candle.Timestamp, Err: err}
	}

	for _, sig := range signals {
		err := r.execute(sig, candle)
		switch {
		case err == nil:
			metrics.RecordSignal(string(sig.Kind), "executed")
		case errors.Is(err, ErrInvalidSignal):
			r.dropped++
			metrics.RecordSignal(string(sig.Kind), "dropped")
			r.engine.log.LogSignalDropped(r.id, string(sig.Kind), sig.Symbol, i, err)
		case errors.Is(err, ErrOrderRejected):
			metrics.RecordSignal(string(sig.Kind), "rejected")
		default:
			return err
		}
	}

	if cfg.LiquidateAtEnd && i == len(candles)-1 {
		r.liquidate(candle)
	}

	r.account.Mark(r.series.Symbol, candle.Close)
	r.account.Snapshot()
	return nil
}

// analyze calls the strategy and converts a panic into an error
func (r *run) analyze(ctx context.Context, snapshot strategy.MarketSnapshot) (signals []strategy.Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	started := time.Now()
	signals, err = r.strat.Analyze(ctx, snapshot, accountView{a: r.account})
	metrics.RecordStrategyEvaluation(time.Since(started).Seconds())
	return signals, err
}

// processPendingOrders works open limit and stop orders in creation order.
// Limit buys trigger when the low reaches the price, limit sells when the
// high does; stops trigger on the opposite extreme.
func (r *run) processPendingOrders(candle models.Candle) {
	for _, o := range r.account.pendingOrders() {
		// an earlier fill this step may have ended it
		if o.IsTerminal() || o.Price == nil || !triggered(o, candle) {
			continue
		}
		fill, err := r.sim.SimulateFill(o, candle, *o.Price)
		if err != nil {
			continue
		}
		tradesBefore := len(r.account.trades)
		r.account.ApplyFill(o, fill)
		if len(r.account.trades) > tradesBefore {
			metrics.RecordPositionExit(string(models.ExitReasonManual))
		}
		if o.IsTerminal() {
			metrics.RecordOrder(string(o.Type), string(o.Status))
		}
	}
}

func triggered(o *models.Order, c models.Candle) bool {
	price := *o.Price
	switch {
	case o.Type == models.OrderTypeLimit && o.Side == models.OrderSideBuy:
		return c.Low <= price
	case o.Type == models.OrderTypeLimit && o.Side == models.OrderSideSell:
		return c.High >= price
	case o.Type == models.OrderTypeStop && o.Side == models.OrderSideBuy:
		return c.High >= price
	case o.Type == models.OrderTypeStop && o.Side == models.OrderSideSell:
		return c.Low <= price
	}
	return false
}

// applyExits marks open positions to the close and closes any whose
// stop-loss or take-profit was touched. When both are touched in one candle
// the stop-loss wins. Exits fill at the trigger price without slippage.
func (r *run) applyExits(candle models.Candle) {
	for _, pos := range r.account.Positions() {
		r.account.Mark(pos.Symbol, candle.Close)
		price, reason, hit := exitTrigger(pos, candle)
		if !hit {
			continue
		}
		commission := r.sim.Commission(pos.Quantity, price)
		if _, ok := r.account.ClosePosition(pos.Symbol, price, commission, reason); ok {
			metrics.RecordPositionExit(string(reason))
		}
	}
}

func exitTrigger(pos models.Position, c models.Candle) (float64, models.ExitReason, bool) {
	if pos.Side == models.PositionSideLong {
		if pos.StopLoss != nil && c.Low <= *pos.StopLoss {
			return *pos.StopLoss, models.ExitReasonStopLoss, true
		}
		if pos.TakeProfit != nil && c.High >= *pos.TakeProfit {
			return *pos.TakeProfit, models.ExitReasonTakeProfit, true
		}
		return 0, "", false
	}
	if pos.StopLoss != nil && c.High >= *pos.StopLoss {
		return *pos.StopLoss, models.ExitReasonStopLoss, true
	}
	if pos.TakeProfit != nil && c.Low <= *pos.TakeProfit {
		return *pos.TakeProfit, models.ExitReasonTakeProfit, true
	}
	return 0, "", false
}

// execute turns one signal into account actions. Buys and sells net against
// an open position: an opposite signal closes it and a same-side signal is
// ignored.
func (r *run) execute(sig strategy.Signal, candle models.Candle) error {
	symbol := r.series.Symbol
	if sig.Symbol != "" && sig.Symbol != symbol {
		return fmt.Errorf("%w: symbol %s is not replayed in this run", ErrInvalidSignal, sig.Symbol)
	}
	if err := sig.Validate(); err != nil {
		return err
	}

	switch sig.Kind {
	case strategy.SignalCancel:
		if sig.OrderID != "" {
			if err := r.account.CancelOrder(sig.OrderID); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
			}
			return nil
		}
		r.account.CancelOrders(symbol)
		return nil

	case strategy.SignalClose:
		pos, ok := r.account.Position(symbol)
		if !ok {
			r.engine.logger.WithFields(logrus.Fields{"run_id": r.id, "symbol": symbol, "step": r.current}).Debug("Close signal with no open position")
			return nil
		}
		return r.submit(OrderRequest{
			Symbol:     symbol,
			Side:       pos.CloseSide(),
			Type:       sig.ResolvedOrderType(),
			Quantity:   pos.Quantity,
			Price:      sig.Price,
			ReduceOnly: true,
		}, candle)
	}

	side := models.OrderSideBuy
	if sig.Kind == strategy.SignalSell {
		side = models.OrderSideSell
	}
	req := OrderRequest{
		Symbol: symbol,
		Side:   side,
		Type:   sig.ResolvedOrderType(),
		Price:  sig.Price,
	}

	pos, ok := r.account.Position(symbol)
	switch {
	case ok && pos.CloseSide() != side:
		r.engine.logger.WithFields(logrus.Fields{"run_id": r.id, "symbol": symbol, "side": side, "step": r.current}).Debug("Signal matches open position side, ignored")
		return nil
	case ok:
		req.Quantity = pos.Quantity
		req.ReduceOnly = true
	default:
		req.Quantity = sig.Quantity
		if req.Quantity == 0 {
			req.Quantity = r.account.Equity() * r.engine.config.PositionSizeFraction / candle.Close
		}
		req.StopLoss = sig.StopLoss
		req.TakeProfit = sig.TakeProfit
	}
	return r.submit(req, candle)
}

// submit places an order and fills market orders at the candle close.
// The unfilled remainder of a market order does not carry over.
func (r *run) submit(req OrderRequest, candle models.Candle) error {
	order, err := r.account.PlaceOrder(req)
	if err != nil {
		return err
	}
	if order.Type != models.OrderTypeMarket {
		return nil
	}

	fill, err := r.sim.SimulateFill(order, candle, candle.Close)
	if err != nil {
		r.account.expire(order)
		metrics.RecordOrder(string(order.Type), string(order.Status))
		return err
	}
	tradesBefore := len(r.account.trades)
	r.account.ApplyFill(order, fill)
	r.account.expire(order)
	metrics.RecordOrder(string(order.Type), string(order.Status))
	if len(r.account.trades) > tradesBefore {
		metrics.RecordPositionExit(string(models.ExitReasonManual))
	}
	return nil
}

// liquidate closes every open position at the close of the final candle
func (r *run) liquidate(candle models.Candle) {
	r.account.CancelOrders(r.series.Symbol)
	for _, pos := range r.account.Positions() {
		commission := r.sim.Commission(pos.Quantity, candle.Close)
		if _, ok := r.account.ClosePosition(pos.Symbol, candle.Close, commission, models.ExitReasonManual); ok {
			metrics.RecordPositionExit(string(models.ExitReasonManual))
		}
	}
}
