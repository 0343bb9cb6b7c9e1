package strategy

import (
	"math"

	"github.com/yourusername/tradelab/internal/models"
)

// BaseStrategy provides shared sizing and exit-level helpers for strategies
type BaseStrategy struct {
	SizeFraction  float64
	StopLossPct   float64
	TakeProfitPct float64
	AllowShort    bool
}

// NewBaseStrategy reads the common parameters
func NewBaseStrategy(p Params) BaseStrategy {
	return BaseStrategy{
		SizeFraction:  NormalizeFraction(p.Float("size_fraction", 0.1)),
		StopLossPct:   p.Float("stop_loss_pct", 0),
		TakeProfitPct: p.Float("take_profit_pct", 0),
		AllowShort:    p.Bool("allow_short", false),
	}
}

// Quantity sizes an order as SizeFraction of current equity at price
func (b *BaseStrategy) Quantity(account AccountView, price float64) float64 {
	if account == nil || price <= 0 {
		return 0
	}
	equity := account.Equity()
	if equity <= 0 {
		return 0
	}
	return equity * b.SizeFraction / price
}

// StopLossPrice returns the protective stop for an entry, nil when disabled
func (b *BaseStrategy) StopLossPrice(side models.PositionSide, entry float64) *float64 {
	if b.StopLossPct <= 0 || entry <= 0 {
		return nil
	}
	level := entry * (1 - side.Direction()*b.StopLossPct)
	return &level
}

// TakeProfitPrice returns the profit target for an entry, nil when disabled
func (b *BaseStrategy) TakeProfitPrice(side models.PositionSide, entry float64) *float64 {
	if b.TakeProfitPct <= 0 || entry <= 0 {
		return nil
	}
	level := entry * (1 + side.Direction()*b.TakeProfitPct)
	return &level
}

// Params returns the common parameters as a Params map
func (b *BaseStrategy) Params() Params {
	return Params{
		"size_fraction":   b.SizeFraction,
		"stop_loss_pct":   b.StopLossPct,
		"take_profit_pct": b.TakeProfitPct,
		"allow_short":     b.AllowShort,
	}
}

// Ready reports whether every value is a finite number
func Ready(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NormalizeFraction clamps f into [0,1]
func NormalizeFraction(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
