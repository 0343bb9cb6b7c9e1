package builtins

import (
	"context"
	"fmt"

	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

// RSIOscillatorName is the registry key of RSIOscillator
const RSIOscillatorName = "rsi_oscillator"

var (
	_ strategy.Strategy      = (*RSIOscillator)(nil)
	_ strategy.Parameterized = (*RSIOscillator)(nil)
)

// RSIOscillator buys when RSI drops below the oversold band and exits once it
// rises above the overbought band. Shorting mirrors the rule.
type RSIOscillator struct {
	strategy.BaseStrategy
	period     int
	oversold   float64
	overbought float64
}

// RSIOscillatorDefaults returns the default parameter set
func RSIOscillatorDefaults() strategy.Params {
	return strategy.Params{
		"period":          14,
		"oversold":        30.0,
		"overbought":      70.0,
		"size_fraction":   0.5,
		"stop_loss_pct":   0.0,
		"take_profit_pct": 0.0,
		"allow_short":     false,
	}
}

// NewRSIOscillator creates the strategy
func NewRSIOscillator(period int, oversold, overbought float64, base strategy.BaseStrategy) (*RSIOscillator, error) {
	if period <= 1 {
		return nil, fmt.Errorf("rsi period must be greater than 1, got %d", period)
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, fmt.Errorf("invalid rsi bands: oversold=%.2f overbought=%.2f", oversold, overbought)
	}
	return &RSIOscillator{BaseStrategy: base, period: period, oversold: oversold, overbought: overbought}, nil
}

// NewRSIOscillatorFromParams is the registry factory
func NewRSIOscillatorFromParams(p strategy.Params) (strategy.Strategy, error) {
	return NewRSIOscillator(
		p.Int("period", 14),
		p.Float("oversold", 30),
		p.Float("overbought", 70),
		strategy.NewBaseStrategy(p),
	)
}

// Name returns "rsi_oscillator"
func (s *RSIOscillator) Name() string {
	return RSIOscillatorName
}

// Parameters returns the effective parameters
func (s *RSIOscillator) Parameters() strategy.Params {
	p := s.BaseStrategy.Params()
	p["period"] = s.period
	p["oversold"] = s.oversold
	p["overbought"] = s.overbought
	return p
}

// Analyze emits signals on band crossings
func (s *RSIOscillator) Analyze(_ context.Context, snap strategy.MarketSnapshot, account strategy.AccountView) ([]strategy.Signal, error) {
	rsi := snap.Indicators.RSI(s.period)
	if !strategy.Ready(rsi) {
		return nil, nil
	}
	price := snap.Candle.Close
	hasPos, isLong := positionState(account, snap.Symbol)

	switch {
	case rsi < s.oversold:
		if hasPos && !isLong {
			return []strategy.Signal{{Kind: strategy.SignalClose, Symbol: snap.Symbol, Reason: "rsi oversold"}}, nil
		}
		if !hasPos {
			return []strategy.Signal{{
				Kind:       strategy.SignalBuy,
				Symbol:     snap.Symbol,
				Quantity:   s.Quantity(account, price),
				StopLoss:   s.StopLossPrice(models.PositionSideLong, price),
				TakeProfit: s.TakeProfitPrice(models.PositionSideLong, price),
				Reason:     fmt.Sprintf("rsi %.2f below %.2f", rsi, s.oversold),
			}}, nil
		}
	case rsi > s.overbought:
		if hasPos && isLong {
			return []strategy.Signal{{Kind: strategy.SignalClose, Symbol: snap.Symbol, Reason: "rsi overbought"}}, nil
		}
		if !hasPos && s.AllowShort {
			return []strategy.Signal{{
				Kind:       strategy.SignalSell,
				Symbol:     snap.Symbol,
				Quantity:   s.Quantity(account, price),
				StopLoss:   s.StopLossPrice(models.PositionSideShort, price),
				TakeProfit: s.TakeProfitPrice(models.PositionSideShort, price),
				Reason:     fmt.Sprintf("rsi %.2f above %.2f", rsi, s.overbought),
			}}, nil
		}
	}
	return nil, nil
}
