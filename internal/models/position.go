package models

import "time"

// PositionSide is long or short
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Direction returns +1 for long and -1 for short
func (s PositionSide) Direction() float64 {
	if s == PositionSideShort {
		return -1
	}
	return 1
}

// ExitReason records why a position was closed
type ExitReason string

const (
	ExitReasonManual     ExitReason = "manual"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTakeProfit ExitReason = "take_profit"
)

// Position is an open holding in one symbol
type Position struct {
	ID            string       `json:"id"`
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Quantity      float64      `json:"quantity"`
	EntryPrice    float64      `json:"entry_price"`
	CurrentPrice  float64      `json:"current_price"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	// RealizedPnL accumulates entry commission and partial closes
	RealizedPnL float64    `json:"realized_pnl"`
	Commission  float64    `json:"commission"`
	EntryTime   time.Time  `json:"entry_time"`
	ExitTime    *time.Time `json:"exit_time,omitempty"`
	ExitReason  ExitReason `json:"exit_reason,omitempty"`
	StopLoss    *float64   `json:"stop_loss,omitempty"`
	TakeProfit  *float64   `json:"take_profit,omitempty"`

	ClosedQuantity float64 `json:"closed_quantity"`
	ExitNotional   float64 `json:"-"`
}

// Mark updates the current price and recomputes unrealized PnL
func (p *Position) Mark(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity * p.Side.Direction()
}

// GrossPnL returns the price PnL of closing qty at price, before costs
func (p *Position) GrossPnL(qty, price float64) float64 {
	return (price - p.EntryPrice) * qty * p.Side.Direction()
}

// CloseSide returns the order side that reduces this position
func (p *Position) CloseSide() OrderSide {
	if p.Side == PositionSideLong {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Trade is an immutable record of a fully closed position.
// RealizedPnL is net of all commission paid on entry and exit.
type Trade struct {
	ID          string        `json:"id"`
	Symbol      string        `json:"symbol"`
	Side        PositionSide  `json:"side"`
	EntryTime   time.Time     `json:"entry_time"`
	EntryPrice  float64       `json:"entry_price"`
	ExitTime    time.Time     `json:"exit_time"`
	ExitPrice   float64       `json:"exit_price"`
	Quantity    float64       `json:"quantity"`
	RealizedPnL float64       `json:"realized_pnl"`
	Commission  float64       `json:"commission"`
	HoldTime    time.Duration `json:"hold_time"`
	ExitReason  ExitReason    `json:"exit_reason"`
}

// ReturnPct returns the trade PnL relative to its entry notional
func (t Trade) ReturnPct() float64 {
	notional := t.EntryPrice * t.Quantity
	if notional == 0 {
		return 0
	}
	return t.RealizedPnL / notional
}
