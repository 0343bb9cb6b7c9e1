package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/tradelab/internal/indicators"
	"github.com/yourusername/tradelab/internal/models"
)

// ErrInvalidSignal marks a signal the engine cannot act on
var ErrInvalidSignal = errors.New("invalid signal")

// Strategy produces trading signals from the market state of one replay step
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, snapshot MarketSnapshot, account AccountView) ([]Signal, error)
}

// Initializer is implemented by strategies that need one-time setup before
// the first replay step.
type Initializer interface {
	Initialize(ctx context.Context, init InitContext) error
}

// Parameterized is implemented by strategies that expose their parameters
type Parameterized interface {
	Parameters() Params
}

// Factory builds a strategy instance from a parameter set. Optimizers call it
// once per combination so instances never share state across runs.
type Factory func(params Params) (Strategy, error)

// SignalKind is the action a signal requests
type SignalKind string

const (
	SignalBuy    SignalKind = "buy"
	SignalSell   SignalKind = "sell"
	SignalClose  SignalKind = "close"
	SignalCancel SignalKind = "cancel"
)

// Signal is an intent emitted by a strategy. A zero Quantity lets the engine
// size the order; a Price without OrderType means a limit order.
type Signal struct {
	Kind       SignalKind       `json:"kind"`
	Symbol     string           `json:"symbol,omitempty"`
	Quantity   float64          `json:"quantity,omitempty"`
	OrderType  models.OrderType `json:"order_type,omitempty"`
	Price      *float64         `json:"price,omitempty"`
	StopLoss   *float64         `json:"stop_loss,omitempty"`
	TakeProfit *float64         `json:"take_profit,omitempty"`
	OrderID    string           `json:"order_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Validate checks the signal for internally inconsistent fields
func (s Signal) Validate() error {
	switch s.Kind {
	case SignalBuy, SignalSell:
	case SignalClose, SignalCancel:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, s.Kind)
	}
	if s.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %.8f", ErrInvalidSignal, s.Quantity)
	}
	switch s.ResolvedOrderType() {
	case models.OrderTypeMarket:
	case models.OrderTypeLimit, models.OrderTypeStop:
		if s.Price == nil || *s.Price <= 0 {
			return fmt.Errorf("%w: %s order requires a positive price", ErrInvalidSignal, s.ResolvedOrderType())
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidSignal, s.OrderType)
	}
	if s.StopLoss != nil && *s.StopLoss <= 0 {
		return fmt.Errorf("%w: stop loss must be positive", ErrInvalidSignal)
	}
	if s.TakeProfit != nil && *s.TakeProfit <= 0 {
		return fmt.Errorf("%w: take profit must be positive", ErrInvalidSignal)
	}
	return nil
}

// ResolvedOrderType returns the order type the engine will use
func (s Signal) ResolvedOrderType() models.OrderType {
	if s.OrderType != "" {
		return s.OrderType
	}
	if s.Price != nil {
		return models.OrderTypeLimit
	}
	return models.OrderTypeMarket
}

// MarketSnapshot is the point-in-time view given to a strategy. History ends
// at the current candle and never contains future bars.
type MarketSnapshot struct {
	Symbol     string
	Resolution models.Resolution
	Time       time.Time
	Step       int
	TotalSteps int
	Candle     models.Candle
	History    []models.Candle
	Indicators *indicators.Window
}

// AccountView is the read-only account surface visible to strategies
type AccountView interface {
	Balance() float64
	Equity() float64
	InitialBalance() float64
	Position(symbol string) (models.Position, bool)
	OpenOrders(symbol string) []models.Order
}

// InitContext describes the run a strategy is about to see
type InitContext struct {
	Symbol         string
	Resolution     models.Resolution
	Start          time.Time
	End            time.Time
	Candles        int
	InitialBalance float64
}

// Metadata describes a registered strategy for reports and listings
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Defaults    Params `json:"defaults"`
}
