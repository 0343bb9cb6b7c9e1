package backtest

import (
	"testing"
	"time"

	"github.com/yourusername/tradelab/internal/models"
)

func fillAt(price, qty, commission float64) FillOutcome {
	return FillOutcome{Quantity: qty, Price: price, Commission: commission, FilledAt: testStart}
}

func placeAndFill(t *testing.T, a *Account, side models.OrderSide, qty, price, commission float64) *models.Order {
	t.Helper()
	o, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: side, Type: models.OrderTypeMarket, Quantity: qty})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	a.ApplyFill(o, fillAt(price, qty, commission))
	return o
}

func TestAccountRoundTripPnL(t *testing.T) {
	a := NewAccount(10000)
	a.SetTime(testStart)
	placeAndFill(t, a, models.OrderSideBuy, 1, 100, 0)
	a.SetTime(testStart.Add(24 * time.Hour))
	placeAndFill(t, a, models.OrderSideSell, 1, 110, 0)

	trades := a.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if !almostEqual(trades[0].RealizedPnL, 10) {
		t.Fatalf("expected pnl 10, got %f", trades[0].RealizedPnL)
	}
	if trades[0].HoldTime != 24*time.Hour {
		t.Fatalf("expected hold time 24h, got %s", trades[0].HoldTime)
	}
	if !almostEqual(a.Balance(), 10010) {
		t.Fatalf("expected balance 10010, got %f", a.Balance())
	}
	if _, ok := a.Position("TEST"); ok {
		t.Fatalf("expected position to be closed")
	}
}

func TestAccountCommissionNetting(t *testing.T) {
	a := NewAccount(1000)
	placeAndFill(t, a, models.OrderSideBuy, 1, 100, 0.1)
	if !almostEqual(a.Balance(), 999.9) {
		t.Fatalf("opening fill should debit only commission, balance %f", a.Balance())
	}
	placeAndFill(t, a, models.OrderSideSell, 1, 110, 0.11)

	trade := a.Trades()[0]
	if !almostEqual(trade.RealizedPnL, 9.79) {
		t.Fatalf("expected pnl net of commission 9.79, got %f", trade.RealizedPnL)
	}
	if !almostEqual(trade.Commission, 0.21) {
		t.Fatalf("expected commission 0.21, got %f", trade.Commission)
	}
	if !almostEqual(a.Balance(), 1009.79) {
		t.Fatalf("expected balance 1009.79, got %f", a.Balance())
	}
}

func TestAccountShortTrade(t *testing.T) {
	a := NewAccount(1000)
	placeAndFill(t, a, models.OrderSideSell, 2, 100, 0)
	pos, ok := a.Position("TEST")
	if !ok || pos.Side != models.PositionSideShort {
		t.Fatalf("expected short position, got %+v", pos)
	}
	a.Mark("TEST", 95)
	if !almostEqual(a.Equity(), 1010) {
		t.Fatalf("expected equity 1010 after mark, got %f", a.Equity())
	}
	placeAndFill(t, a, models.OrderSideBuy, 2, 90, 0)
	if trade := a.Trades()[0]; !almostEqual(trade.RealizedPnL, 20) {
		t.Fatalf("expected short pnl 20, got %f", trade.RealizedPnL)
	}
}

func TestAccountPartialCloseAccumulates(t *testing.T) {
	a := NewAccount(1000)
	placeAndFill(t, a, models.OrderSideBuy, 2, 100, 0)
	placeAndFill(t, a, models.OrderSideSell, 1, 110, 0)
	if len(a.Trades()) != 0 {
		t.Fatalf("partial close must not emit a trade")
	}
	pos, _ := a.Position("TEST")
	if !almostEqual(pos.Quantity, 1) || !almostEqual(pos.RealizedPnL, 10) {
		t.Fatalf("unexpected position after partial close: %+v", pos)
	}
	placeAndFill(t, a, models.OrderSideSell, 1, 120, 0)

	trade := a.Trades()[0]
	if !almostEqual(trade.Quantity, 2) || !almostEqual(trade.ExitPrice, 115) || !almostEqual(trade.RealizedPnL, 30) {
		t.Fatalf("unexpected trade: %+v", trade)
	}
}

func TestAccountAveragesSameSideFills(t *testing.T) {
	a := NewAccount(1000)
	placeAndFill(t, a, models.OrderSideBuy, 1, 100, 0)
	placeAndFill(t, a, models.OrderSideBuy, 3, 120, 0)
	pos, _ := a.Position("TEST")
	if !almostEqual(pos.Quantity, 4) || !almostEqual(pos.EntryPrice, 115) {
		t.Fatalf("expected 4 @ 115, got %f @ %f", pos.Quantity, pos.EntryPrice)
	}
}

func TestAccountReversal(t *testing.T) {
	a := NewAccount(1000)
	placeAndFill(t, a, models.OrderSideBuy, 1, 100, 0)
	placeAndFill(t, a, models.OrderSideSell, 3, 110, 0.3)

	trades := a.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected the long to close, got %d trades", len(trades))
	}
	if !almostEqual(trades[0].RealizedPnL, 9.9) {
		t.Fatalf("expected pnl 9.9 with a third of the commission, got %f", trades[0].RealizedPnL)
	}
	pos, ok := a.Position("TEST")
	if !ok || pos.Side != models.PositionSideShort || !almostEqual(pos.Quantity, 2) {
		t.Fatalf("expected short 2 after reversal, got %+v", pos)
	}
	if !almostEqual(pos.Commission, 0.2) {
		t.Fatalf("expected remaining commission 0.2 on the new position, got %f", pos.Commission)
	}
}

func TestAccountCancelOrders(t *testing.T) {
	a := NewAccount(1000)
	o, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 1, Price: floatPtr(90)})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if len(a.OpenOrders("TEST")) != 1 {
		t.Fatalf("expected one open order")
	}
	if err := a.CancelOrder(o.ID); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if err := a.CancelOrder(o.ID); err == nil {
		t.Fatalf("cancelling a cancelled order should fail")
	}
	if _, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Quantity: 1}); err == nil {
		t.Fatalf("limit order without price should be rejected")
	}
	if _, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: models.OrderSideBuy, Quantity: 0}); err == nil {
		t.Fatalf("zero quantity should be rejected")
	}
}

func TestAccountReset(t *testing.T) {
	a := NewAccount(500)
	placeAndFill(t, a, models.OrderSideBuy, 1, 100, 1)
	a.Snapshot()
	a.Reset()
	if a.Balance() != 500 || len(a.Positions()) != 0 || len(a.Orders()) != 0 || len(a.EquityCurve()) != 0 {
		t.Fatalf("reset should restore a pristine account")
	}
}

func TestAccountReduceOnlyOrders(t *testing.T) {
	a := NewAccount(10000)
	placeAndFill(t, a, models.OrderSideBuy, 2, 100, 0)

	first, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: models.OrderSideSell, Type: models.OrderTypeLimit, Quantity: 2, Price: floatPtr(110), ReduceOnly: true})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	second, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: models.OrderSideSell, Type: models.OrderTypeLimit, Quantity: 2, Price: floatPtr(112), ReduceOnly: true})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	a.ApplyFill(first, fillAt(110, 2, 0))
	if second.Status != models.OrderStatusCancelled {
		t.Fatalf("closing the position must cancel the other reduce-only order, got %s", second.Status)
	}
	a.ApplyFill(second, fillAt(112, 2, 0))
	if _, ok := a.Position("TEST"); ok || len(a.Trades()) != 1 || second.FilledQuantity != 0 {
		t.Fatalf("a reduce-only fill on a flat symbol must not open a position")
	}
	if !almostEqual(a.Balance(), 10020) {
		t.Fatalf("expected balance 10020, got %f", a.Balance())
	}
}

func TestAccountReduceOnlyFillIsCapped(t *testing.T) {
	a := NewAccount(10000)
	placeAndFill(t, a, models.OrderSideBuy, 1, 100, 0)

	o, err := a.PlaceOrder(OrderRequest{Symbol: "TEST", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: 3, ReduceOnly: true})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	a.ApplyFill(o, fillAt(105, 3, 0.3))

	if _, ok := a.Position("TEST"); ok {
		t.Fatalf("capped fill must leave the account flat")
	}
	if !almostEqual(o.FilledQuantity, 1) || !almostEqual(o.Commission, 0.1) || o.Status != models.OrderStatusFilled {
		t.Fatalf("expected 1 unit filled with scaled commission, got %+v", o)
	}
	if !almostEqual(a.Trades()[0].RealizedPnL, 4.9) {
		t.Fatalf("expected pnl 4.9, got %f", a.Trades()[0].RealizedPnL)
	}
}
