package backtest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

var testStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// funcStrategy adapts a function to strategy.Strategy
type funcStrategy struct {
	name string
	fn   func(snap strategy.MarketSnapshot, account strategy.AccountView) ([]strategy.Signal, error)
}

func (s *funcStrategy) Name() string { return s.name }

func (s *funcStrategy) Analyze(_ context.Context, snap strategy.MarketSnapshot, account strategy.AccountView) ([]strategy.Signal, error) {
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(snap, account)
}

// script returns fixed signals per step
func script(steps map[int][]strategy.Signal) *funcStrategy {
	return &funcStrategy{name: "scripted", fn: func(snap strategy.MarketSnapshot, _ strategy.AccountView) ([]strategy.Signal, error) {
		return steps[snap.Step], nil
	}}
}

// holdFactory buys params["q"] units on the first candle and closes on the
// last one
func holdFactory(params strategy.Params) (strategy.Strategy, error) {
	q := params.Float("q", 1)
	return &funcStrategy{name: "hold", fn: func(snap strategy.MarketSnapshot, _ strategy.AccountView) ([]strategy.Signal, error) {
		switch snap.Step {
		case 0:
			return []strategy.Signal{{Kind: strategy.SignalBuy, Quantity: q}}, nil
		case snap.TotalSteps - 1:
			return []strategy.Signal{{Kind: strategy.SignalClose}}, nil
		}
		return nil, nil
	}}, nil
}

func candle(i int, open, high, low, closePrice float64) models.Candle {
	return models.Candle{
		Timestamp: testStart.Add(time.Duration(i) * 24 * time.Hour),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    1000,
	}
}

// closesSeries builds daily candles whose open, high and low equal the close
func closesSeries(closes ...float64) models.CandleSeries {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = candle(i, c, c, c, c)
	}
	return models.CandleSeries{Symbol: "TEST", Resolution: models.Resolution1d, Candles: candles}
}

func risingSeries(n int) models.CandleSeries {
	candles := make([]models.Candle, n)
	for i := range candles {
		c := 100 + float64(i)
		candles[i] = candle(i, c, c+0.5, c-0.5, c)
	}
	return models.CandleSeries{Symbol: "TEST", Resolution: models.Resolution1d, Candles: candles}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() BacktestConfig {
	cfg := DefaultConfig()
	cfg.Symbol = "TEST"
	cfg.Execution.Seed = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg BacktestConfig, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, quietLogger(), opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func floatPtr(v float64) *float64 {
	return &v
}

func almostEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	return d < eps && d > -eps
}
