// Package builtins provides the reference strategies that ship with tradelab.
package builtins

import (
	"github.com/yourusername/tradelab/internal/models"
	"github.com/yourusername/tradelab/internal/strategy"
)

// Register adds every built-in strategy to reg
func Register(reg *strategy.Registry) error {
	if err := reg.Register(strategy.Metadata{
		Name:        MACrossoverName,
		Version:     "1.0.0",
		Description: "Fast/slow simple moving average crossover",
		Defaults:    MACrossoverDefaults(),
	}, NewMACrossoverFromParams); err != nil {
		return err
	}
	return reg.Register(strategy.Metadata{
		Name:        RSIOscillatorName,
		Version:     "1.0.0",
		Description: "RSI mean reversion between oversold and overbought bands",
		Defaults:    RSIOscillatorDefaults(),
	}, NewRSIOscillatorFromParams)
}

// NewRegistry returns a registry preloaded with the built-ins
func NewRegistry() (*strategy.Registry, error) {
	reg := strategy.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// positionState reports whether symbol has an open position and whether it is long
func positionState(account strategy.AccountView, symbol string) (open bool, long bool) {
	p, ok := account.Position(symbol)
	if !ok {
		return false, false
	}
	return true, p.Side == models.PositionSideLong
}
