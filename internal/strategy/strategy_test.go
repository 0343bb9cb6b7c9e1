package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradelab/internal/models"
)

type noopStrategy struct {
	params Params
}

func (n *noopStrategy) Name() string { return "noop" }

func (n *noopStrategy) Analyze(context.Context, MarketSnapshot, AccountView) ([]Signal, error) {
	return nil, nil
}

func TestParamsCoercion(t *testing.T) {
	p := Params{"f": "1.5", "i": 4.0, "b": "true", "s": 12, "bad": []int{1}}

	assert.Equal(t, 1.5, p.Float("f", 0))
	assert.Equal(t, 4, p.Int("i", 0))
	assert.True(t, p.Bool("b", false))
	assert.Equal(t, "12", p.String("s", ""))
	assert.Equal(t, 7.0, p.Float("missing", 7))
	assert.Equal(t, 3.0, p.Float("bad", 3))
}

func TestParamsMergeDoesNotMutate(t *testing.T) {
	base := Params{"a": 1, "b": 2}
	merged := base.Merge(Params{"b": 3})

	assert.Equal(t, 2, base["b"])
	assert.Equal(t, 3, merged["b"])
	assert.Equal(t, []string{"a", "b"}, merged.Keys())
}

func TestRegistryAppliesDefaults(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Metadata{Name: "noop", Defaults: Params{"x": 1, "y": 2}}, func(p Params) (Strategy, error) {
		return &noopStrategy{params: p}, nil
	})
	require.NoError(t, err)

	s, err := reg.New("noop", Params{"y": 5})
	require.NoError(t, err)
	got := s.(*noopStrategy).params
	assert.Equal(t, 1, got["x"])
	assert.Equal(t, 5, got["y"])
	assert.Equal(t, []string{"noop"}, reg.List())
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry()
	factory := func(Params) (Strategy, error) { return &noopStrategy{}, nil }
	require.NoError(t, reg.Register(Metadata{Name: "noop"}, factory))

	err := reg.Register(Metadata{Name: "noop"}, factory)
	assert.True(t, errors.Is(err, ErrDuplicateStrategy))

	_, err = reg.New("missing", nil)
	assert.True(t, errors.Is(err, ErrStrategyNotFound))

	assert.Error(t, reg.Register(Metadata{}, factory))
}

func TestSignalValidate(t *testing.T) {
	price := 10.0
	zero := 0.0
	tests := []struct {
		name    string
		signal  Signal
		wantErr bool
	}{
		{"market buy", Signal{Kind: SignalBuy, Quantity: 1}, false},
		{"limit implied by price", Signal{Kind: SignalSell, Price: &price}, false},
		{"close needs nothing", Signal{Kind: SignalClose}, false},
		{"unknown kind", Signal{Kind: "hold"}, true},
		{"negative quantity", Signal{Kind: SignalBuy, Quantity: -1}, true},
		{"stop without price", Signal{Kind: SignalBuy, OrderType: models.OrderTypeStop}, true},
		{"zero limit price", Signal{Kind: SignalBuy, Price: &zero}, true},
		{"zero stop loss", Signal{Kind: SignalBuy, StopLoss: &zero}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.signal.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignal)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, models.OrderTypeLimit, Signal{Kind: SignalBuy, Price: &price}.ResolvedOrderType())
}

func TestBaseStrategyLevels(t *testing.T) {
	b := NewBaseStrategy(Params{"stop_loss_pct": 0.05, "take_profit_pct": 0.1, "size_fraction": 2})
	assert.Equal(t, 1.0, b.SizeFraction)

	sl := b.StopLossPrice(models.PositionSideLong, 100)
	require.NotNil(t, sl)
	assert.InDelta(t, 95.0, *sl, 1e-9)

	tp := b.TakeProfitPrice(models.PositionSideShort, 100)
	require.NotNil(t, tp)
	assert.InDelta(t, 90.0, *tp, 1e-9)

	none := NewBaseStrategy(Params{})
	assert.Nil(t, none.StopLossPrice(models.PositionSideLong, 100))
}
