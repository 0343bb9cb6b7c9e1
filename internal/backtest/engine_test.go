package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

func TestRunBuyThenClose(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	strat := script(map[int][]strategy.Signal{
		0: {{Kind: strategy.SignalBuy, Quantity: 1}},
		1: {{Kind: strategy.SignalClose}},
	})

	res, err := engine.Run(context.Background(), strat, closesSeries(100, 110))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	if !almostEqual(res.Trades[0].RealizedPnL, 10) {
		t.Fatalf("expected trade pnl 10, got %f", res.Trades[0].RealizedPnL)
	}
	if len(res.Equity) != res.Steps+1 {
		t.Fatalf("expected %d equity points, got %d", res.Steps+1, len(res.Equity))
	}
	if !almostEqual(res.Metrics.FinalEquity, 10010) {
		t.Fatalf("expected final equity 10010, got %f", res.Metrics.FinalEquity)
	}
}

func TestRunFlatSeriesIsNeutral(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	engine := newTestEngine(t, testConfig())

	idle, err := engine.Run(context.Background(), script(nil), closesSeries(closes...))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	m := idle.Metrics
	if m.FinalEquity != 10000 || m.MaxDrawdown != 0 || m.SharpeRatio != 0 || m.SortinoRatio != 0 || m.TotalReturn != 0 {
		t.Fatalf("expected neutral metrics for an idle run, got %+v", m)
	}

	traded, err := engine.Run(context.Background(), script(map[int][]strategy.Signal{
		5:  {{Kind: strategy.SignalBuy, Quantity: 10}},
		40: {{Kind: strategy.SignalClose}},
	}), closesSeries(closes...))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	m = traded.Metrics
	if m.TotalTrades != 1 || m.NetProfit != 0 || m.FinalEquity != 10000 {
		t.Fatalf("expected a flat trade, got %+v", m)
	}
	if m.MaxDrawdown != 0 || m.SharpeRatio != 0 || m.SortinoRatio != 0 || m.CalmarRatio != 0 || m.ProfitFactor != 0 {
		t.Fatalf("expected zero ratios on a flat series, got %+v", m)
	}
}

func TestRunFillsLimitOrder(t *testing.T) {
	series := models.CandleSeries{Symbol: "TEST", Resolution: models.Resolution1d, Candles: []models.Candle{
		candle(0, 100, 100, 100, 100),
		candle(1, 100, 101, 96, 98),
		candle(2, 97, 98, 94, 96),
		candle(3, 96, 97, 95, 96),
	}}
	var openAtStep1 int
	strat := &funcStrategy{name: "limit", fn: func(snap strategy.MarketSnapshot, account strategy.AccountView) ([]strategy.Signal, error) {
		switch snap.Step {
		case 0:
			return []strategy.Signal{{Kind: strategy.SignalBuy, Quantity: 1, Price: floatPtr(95)}}, nil
		case 1:
			openAtStep1 = len(account.OpenOrders("TEST"))
		}
		return nil, nil
	}}

	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, series)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if openAtStep1 != 1 {
		t.Fatalf("limit order should rest while low stays above the price, open=%d", openAtStep1)
	}
	if len(res.OpenPositions) != 1 || !almostEqual(res.OpenPositions[0].EntryPrice, 95) {
		t.Fatalf("expected a long entered at 95, got %+v", res.OpenPositions)
	}
	if res.Orders[0].Status != models.OrderStatusFilled {
		t.Fatalf("expected filled order, got %s", res.Orders[0].Status)
	}
}

func TestRunStopLossWinsOverTakeProfit(t *testing.T) {
	series := models.CandleSeries{Symbol: "TEST", Resolution: models.Resolution1d, Candles: []models.Candle{
		candle(0, 100, 100, 100, 100),
		candle(1, 100, 106, 94, 100),
		candle(2, 100, 100, 100, 100),
	}}
	strat := script(map[int][]strategy.Signal{
		0: {{Kind: strategy.SignalBuy, Quantity: 1, StopLoss: floatPtr(95), TakeProfit: floatPtr(105)}},
	})

	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, series)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.ExitReason != models.ExitReasonStopLoss || !almostEqual(trade.ExitPrice, 95) {
		t.Fatalf("expected stop-loss exit at 95, got %s at %f", trade.ExitReason, trade.ExitPrice)
	}
	if !almostEqual(trade.RealizedPnL, -5) {
		t.Fatalf("expected pnl -5, got %f", trade.RealizedPnL)
	}
}

func TestRunTakeProfitShort(t *testing.T) {
	series := models.CandleSeries{Symbol: "TEST", Resolution: models.Resolution1d, Candles: []models.Candle{
		candle(0, 100, 100, 100, 100),
		candle(1, 99, 100, 89, 92),
	}}
	strat := script(map[int][]strategy.Signal{
		0: {{Kind: strategy.SignalSell, Quantity: 1, StopLoss: floatPtr(110), TakeProfit: floatPtr(90)}},
	})
	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, series)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != models.ExitReasonTakeProfit || !almostEqual(res.Trades[0].RealizedPnL, 10) {
		t.Fatalf("expected short take-profit at 90, got %+v", res.Trades)
	}
}

func TestRunDropsInvalidSignals(t *testing.T) {
	strat := script(map[int][]strategy.Signal{
		0: {
			{Kind: strategy.SignalBuy, Quantity: -1},
			{Kind: strategy.SignalBuy, Symbol: "OTHER", Quantity: 1},
			{Kind: strategy.SignalBuy, Quantity: 1, OrderType: models.OrderTypeStop},
			{Kind: "hold"},
			{Kind: strategy.SignalCancel, OrderID: "missing"},
		},
		1: {{Kind: strategy.SignalBuy, Quantity: 1}},
	})
	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, closesSeries(100, 101, 102))
	if err != nil {
		t.Fatalf("invalid signals must not abort the run: %v", err)
	}
	if res.SignalsDropped != 5 {
		t.Fatalf("expected 5 dropped signals, got %d", res.SignalsDropped)
	}
	if len(res.OpenPositions) != 1 {
		t.Fatalf("valid signal after dropped ones should still execute")
	}
}

func TestRunSizesZeroQuantity(t *testing.T) {
	strat := script(map[int][]strategy.Signal{0: {{Kind: strategy.SignalBuy}}})
	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, closesSeries(100, 100))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// 10% of 10,000 at 100
	if len(res.OpenPositions) != 1 || !almostEqual(res.OpenPositions[0].Quantity, 10) {
		t.Fatalf("expected a sized position of 10, got %+v", res.OpenPositions)
	}
}

func TestRunNettingRules(t *testing.T) {
	strat := script(map[int][]strategy.Signal{
		0: {{Kind: strategy.SignalSell, Quantity: 2}},
		1: {{Kind: strategy.SignalSell, Quantity: 5}},
		2: {{Kind: strategy.SignalBuy, Quantity: 7}},
	})
	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, closesSeries(100, 100, 90, 90))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 || !almostEqual(res.Trades[0].Quantity, 2) || !almostEqual(res.Trades[0].RealizedPnL, 20) {
		t.Fatalf("buy against a short should close exactly the short, got %+v", res.Trades)
	}
	if len(res.OpenPositions) != 0 {
		t.Fatalf("expected flat account, got %+v", res.OpenPositions)
	}
}

func TestRunStrategyFault(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		fn   func(strategy.MarketSnapshot, strategy.AccountView) ([]strategy.Signal, error)
	}{
		{"error", func(snap strategy.MarketSnapshot, _ strategy.AccountView) ([]strategy.Signal, error) {
			if snap.Step == 3 {
				return nil, boom
			}
			return nil, nil
		}},
		{"panic", func(snap strategy.MarketSnapshot, _ strategy.AccountView) ([]strategy.Signal, error) {
			if snap.Step == 3 {
				panic("boom")
			}
			return nil, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestEngine(t, testConfig()).Run(context.Background(), &funcStrategy{name: tt.name, fn: tt.fn}, closesSeries(1, 2, 3, 4, 5))
			if res != nil {
				t.Fatalf("a faulted run must not return a result")
			}
			if !errors.Is(err, ErrStrategyFault) {
				t.Fatalf("expected ErrStrategyFault, got %v", err)
			}
			var fault *StrategyFaultError
			if !errors.As(err, &fault) || fault.Step != 3 {
				t.Fatalf("expected fault at step 3, got %v", err)
			}
		})
	}
}

func TestRunRejectsEmptyAndMalformedSeries(t *testing.T) {
	engine := newTestEngine(t, testConfig())
	if _, err := engine.Run(context.Background(), script(nil), models.CandleSeries{Symbol: "TEST"}); !errors.Is(err, ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles, got %v", err)
	}
	bad := closesSeries(100, 101)
	bad.Candles[1].Timestamp = bad.Candles[0].Timestamp
	if _, err := engine.Run(context.Background(), script(nil), bad); !errors.Is(err, ErrDataLoad) {
		t.Fatalf("expected ErrDataLoad for malformed series, got %v", err)
	}
}

func TestRunLiquidateAtEnd(t *testing.T) {
	cfg := testConfig()
	cfg.LiquidateAtEnd = true
	strat := script(map[int][]strategy.Signal{0: {{Kind: strategy.SignalBuy, Quantity: 1}}})
	res, err := newTestEngine(t, cfg).Run(context.Background(), strat, closesSeries(100, 105, 120))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 || !almostEqual(res.Trades[0].RealizedPnL, 20) || len(res.OpenPositions) != 0 {
		t.Fatalf("expected liquidation at the final close, got %+v", res.Trades)
	}
}

func TestRunRejectedMarketOrderIsCancelled(t *testing.T) {
	strat := script(map[int][]strategy.Signal{0: {{Kind: strategy.SignalBuy, Quantity: 1}}})
	res, err := newTestEngine(t, testConfig(), WithFillDecider(NeverFill{})).Run(context.Background(), strat, closesSeries(100, 101))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.OpenPositions) != 0 || res.Orders[0].Status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled order and no position, got %+v", res.Orders)
	}
}

func TestRunEmitsEvents(t *testing.T) {
	cfg := testConfig()
	cfg.ProgressInterval = 10
	obs := NewChannelObserver(64)
	engine := newTestEngine(t, cfg, WithObserver(obs))
	if _, err := engine.Run(context.Background(), script(nil), risingSeries(25)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var types []EventType
	for len(obs.Events()) > 0 {
		types = append(types, (<-obs.Events()).Type)
	}
	want := []EventType{EventRunStarted, EventRunProgress, EventRunProgress, EventRunCompleted}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.ProgressInterval = 1
	ctx, cancel := context.WithCancel(context.Background())
	strat := &funcStrategy{name: "cancel", fn: func(snap strategy.MarketSnapshot, _ strategy.AccountView) ([]strategy.Signal, error) {
		if snap.Step == 2 {
			cancel()
		}
		return nil, nil
	}}
	res, err := newTestEngine(t, cfg).Run(ctx, strat, risingSeries(10))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Fatalf("a cancelled run must not return a partial result")
	}
}

func TestRunPendingCloseEndsWithPosition(t *testing.T) {
	series := models.CandleSeries{Symbol: "TEST", Resolution: models.Resolution1d, Candles: []models.Candle{
		candle(0, 100, 100, 100, 100),
		candle(1, 100, 100, 100, 100),
		candle(2, 100, 100, 94, 96),
		candle(3, 100, 115, 100, 112),
		candle(4, 112, 112, 112, 112),
	}}
	strat := script(map[int][]strategy.Signal{
		0: {{Kind: strategy.SignalBuy, Quantity: 1, StopLoss: floatPtr(95)}},
		1: {{Kind: strategy.SignalClose, Price: floatPtr(110)}},
	})

	res, err := newTestEngine(t, testConfig()).Run(context.Background(), strat, series)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != models.ExitReasonStopLoss || !almostEqual(res.Trades[0].RealizedPnL, -5) {
		t.Fatalf("expected a single stop-loss trade of -5, got %+v", res.Trades)
	}
	if len(res.OpenPositions) != 0 {
		t.Fatalf("account must stay flat after the stop, got %+v", res.OpenPositions)
	}
	if len(res.Orders) != 2 || res.Orders[1].Status != models.OrderStatusCancelled {
		t.Fatalf("expected the pending close to be cancelled, got %+v", res.Orders)
	}
	if !almostEqual(res.Metrics.FinalEquity, 9995) {
		t.Fatalf("expected final equity 9995, got %f", res.Metrics.FinalEquity)
	}
}
