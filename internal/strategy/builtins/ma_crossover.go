package builtins

import (
	"context"
	"fmt"

	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

// MACrossoverName is the registry key of MACrossover
const MACrossoverName = "ma_crossover"

var (
	_ strategy.Strategy      = (*MACrossover)(nil)
	_ strategy.Initializer   = (*MACrossover)(nil)
	_ strategy.Parameterized = (*MACrossover)(nil)
)

// MACrossover goes long when the fast SMA crosses above the slow SMA and
// exits (or reverses when shorting is allowed) on the opposite cross.
type MACrossover struct {
	strategy.BaseStrategy
	fastPeriod int
	slowPeriod int
}

// MACrossoverDefaults returns the default parameter set
func MACrossoverDefaults() strategy.Params {
	return strategy.Params{
		"fast_period":     10,
		"slow_period":     30,
		"size_fraction":   0.5,
		"stop_loss_pct":   0.0,
		"take_profit_pct": 0.0,
		"allow_short":     false,
	}
}

// NewMACrossover creates the strategy with explicit periods
func NewMACrossover(fast, slow int, base strategy.BaseStrategy) (*MACrossover, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("ma crossover periods must be positive: fast=%d slow=%d", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast period %d must be below slow period %d", fast, slow)
	}
	return &MACrossover{BaseStrategy: base, fastPeriod: fast, slowPeriod: slow}, nil
}

// NewMACrossoverFromParams is the registry factory
func NewMACrossoverFromParams(p strategy.Params) (strategy.Strategy, error) {
	return NewMACrossover(p.Int("fast_period", 10), p.Int("slow_period", 30), strategy.NewBaseStrategy(p))
}

// Name returns "ma_crossover"
func (s *MACrossover) Name() string {
	return MACrossoverName
}

// Initialize rejects runs too short to ever produce a crossover
func (s *MACrossover) Initialize(_ context.Context, init strategy.InitContext) error {
	if init.Candles > 0 && init.Candles <= s.slowPeriod {
		return fmt.Errorf("series of %d candles is too short for slow period %d", init.Candles, s.slowPeriod)
	}
	return nil
}

// Parameters returns the effective parameters
func (s *MACrossover) Parameters() strategy.Params {
	p := s.BaseStrategy.Params()
	p["fast_period"] = s.fastPeriod
	p["slow_period"] = s.slowPeriod
	return p
}

// Analyze emits entries and exits on SMA crosses
func (s *MACrossover) Analyze(_ context.Context, snap strategy.MarketSnapshot, account strategy.AccountView) ([]strategy.Signal, error) {
	cross := snap.Indicators.Crossover(s.fastPeriod, s.slowPeriod)
	if cross == 0 {
		return nil, nil
	}
	price := snap.Candle.Close
	hasPos, isLong := positionState(account, snap.Symbol)

	var signals []strategy.Signal
	switch cross {
	case 1:
		if hasPos && isLong {
			return nil, nil
		}
		if hasPos {
			signals = append(signals, strategy.Signal{Kind: strategy.SignalClose, Symbol: snap.Symbol, Reason: "fast crossed above slow"})
		}
		signals = append(signals, strategy.Signal{
			Kind:       strategy.SignalBuy,
			Symbol:     snap.Symbol,
			Quantity:   s.Quantity(account, price),
			StopLoss:   s.StopLossPrice(models.PositionSideLong, price),
			TakeProfit: s.TakeProfitPrice(models.PositionSideLong, price),
			Reason:     "fast crossed above slow",
		})
	case -1:
		if hasPos && !isLong {
			return nil, nil
		}
		if hasPos {
			signals = append(signals, strategy.Signal{Kind: strategy.SignalClose, Symbol: snap.Symbol, Reason: "fast crossed below slow"})
		}
		if s.AllowShort {
			signals = append(signals, strategy.Signal{
				Kind:       strategy.SignalSell,
				Symbol:     snap.Symbol,
				Quantity:   s.Quantity(account, price),
				StopLoss:   s.StopLossPrice(models.PositionSideShort, price),
				TakeProfit: s.TakeProfitPrice(models.PositionSideShort, price),
				Reason:     "fast crossed below slow",
			})
		}
	}
	return signals, nil
}
