package datasource

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/models"
)

const maxSyntheticCandles = 1_000_000

// SyntheticSource generates a seeded geometric random walk. The same symbol,
// seed, resolution and window always produce the same candles.
type SyntheticSource struct {
	seed       int64
	startPrice float64
	volatility float64
	drift      float64
}

// NewSyntheticSource creates a random-walk source
func NewSyntheticSource(cfg config.SyntheticConfig) *SyntheticSource {
	s := &SyntheticSource{
		seed:       cfg.Seed,
		startPrice: cfg.StartPrice,
		volatility: cfg.Volatility,
		drift:      cfg.Drift,
	}
	if s.startPrice <= 0 {
		s.startPrice = 100
	}
	if s.volatility <= 0 {
		s.volatility = 0.02
	}
	return s
}

// Name returns "synthetic"
func (s *SyntheticSource) Name() string {
	return "synthetic"
}

// Fetch generates one candle per resolution step from start (aligned down) to end
func (s *SyntheticSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	if err := checkRequest(s.Name(), symbol, start, end, resolution); err != nil {
		return models.CandleSeries{}, err
	}

	step := resolution.Duration()
	first := start.UTC().Truncate(step)
	if first.Before(start) {
		first = first.Add(step)
	}
	count := int(end.Sub(first)/step) + 1
	if end.Before(first) {
		count = 0
	}
	if count > maxSyntheticCandles {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeInvalidRequest, "window too large for synthetic data", nil)
	}

	rng := rand.New(rand.NewSource(s.seedFor(symbol, resolution)))
	candles := make([]models.Candle, 0, count)
	price := s.startPrice
	for i := 0; i < count; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeUnknown, "generation cancelled", ctx.Err())
		}
		open := price
		ret := s.drift + s.volatility*rng.NormFloat64()
		closePrice := open * math.Exp(ret)
		wick := s.volatility / 2
		high := math.Max(open, closePrice) * math.Exp(math.Abs(rng.NormFloat64())*wick)
		low := math.Min(open, closePrice) * math.Exp(-math.Abs(rng.NormFloat64())*wick)

		candles = append(candles, models.Candle{
			Timestamp: first.Add(time.Duration(i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    1000 + rng.Float64()*9000,
		})
		price = closePrice
	}

	return models.CandleSeries{Symbol: symbol, Resolution: resolution, Candles: candles}, nil
}

func (s *SyntheticSource) seedFor(symbol string, resolution models.Resolution) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(resolution))
	return int64(h.Sum64()) ^ s.seed
}
