package backtest

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/yourusername/tradelab/internal/models"
)

// FillOutcome is the result of one fill decision
type FillOutcome struct {
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	FilledAt   time.Time `json:"filled_at"`
	Partial    bool      `json:"partial"`
}

// FillDecider decides whether an order gets any fill on a candle
type FillDecider interface {
	ShouldFill(order *models.Order, candle models.Candle) bool
}

// AlwaysFill fills every order
type AlwaysFill struct{}

// ShouldFill always returns true
func (AlwaysFill) ShouldFill(*models.Order, models.Candle) bool { return true }

// NeverFill rejects every order
type NeverFill struct{}

// ShouldFill always returns false
func (NeverFill) ShouldFill(*models.Order, models.Candle) bool { return false }

// ProbabilisticFill fills with a fixed probability from a seeded source
type ProbabilisticFill struct {
	mu          sync.Mutex
	probability float64
	rng         *rand.Rand
}

// NewProbabilisticFill creates a decider. Seed 0 seeds from the clock.
func NewProbabilisticFill(probability float64, seed int64) *ProbabilisticFill {
	return &ProbabilisticFill{probability: probability, rng: newRand(seed)}
}

// ShouldFill draws against the configured probability
func (p *ProbabilisticFill) ShouldFill(*models.Order, models.Candle) bool {
	if p.probability >= 1 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.probability
}

// ExecutionSimulator turns orders into fills with slippage, commission,
// latency and optional partial fills. One simulator serves one run and is
// not safe for concurrent use.
type ExecutionSimulator struct {
	cfg     ExecutionConfig
	decider FillDecider
	rng     *rand.Rand
}

// NewExecutionSimulator creates a simulator. A nil decider uses the
// configured fill probability.
func NewExecutionSimulator(cfg ExecutionConfig, decider FillDecider) *ExecutionSimulator {
	rng := newRand(cfg.Seed)
	if decider == nil {
		decider = &ProbabilisticFill{probability: cfg.FillProbability, rng: rng}
	}
	return &ExecutionSimulator{cfg: cfg, decider: decider, rng: rng}
}

// SimulateFill decides the fill of the order's remaining quantity at the
// requested price. Buys slip up and sells slip down.
func (s *ExecutionSimulator) SimulateFill(order *models.Order, candle models.Candle, requested float64) (FillOutcome, error) {
	remaining := order.RemainingQuantity()
	if remaining <= 0 {
		return FillOutcome{}, fmt.Errorf("%w: order %s has nothing left to fill", ErrOrderRejected, order.ID)
	}
	if requested <= 0 {
		return FillOutcome{}, fmt.Errorf("%w: non-positive price %.8f", ErrOrderRejected, requested)
	}
	if !s.decider.ShouldFill(order, candle) {
		return FillOutcome{}, fmt.Errorf("%w: order %s not filled", ErrOrderRejected, order.ID)
	}

	qty := remaining
	partial := false
	if s.cfg.PartialFills {
		ratio := s.cfg.MinFillRatio + s.rng.Float64()*(1-s.cfg.MinFillRatio)
		if ratio < 1 {
			qty = remaining * ratio
			partial = true
		}
	}

	slip := requested * s.cfg.SlippageBps / 10000
	price := requested + slip
	if order.Side == models.OrderSideSell {
		price = requested - slip
	}

	return FillOutcome{
		Quantity:   qty,
		Price:      price,
		Commission: qty * price * s.cfg.CommissionRate,
		Slippage:   slip * qty,
		FilledAt:   candle.Timestamp.Add(s.cfg.Latency),
		Partial:    partial,
	}, nil
}

// Commission returns the commission charged on a notional of qty at price
func (s *ExecutionSimulator) Commission(qty, price float64) float64 {
	return qty * price * s.cfg.CommissionRate
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
