package datasource

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/models"
)

// barClient is the slice of the Alpaca market data client used here
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaSource reads bars from the Alpaca market data API
type AlpacaSource struct {
	client barClient
	feed   marketdata.Feed
}

// NewAlpacaSource creates a source from API credentials
func NewAlpacaSource(cfg config.AlpacaConfig) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	feed := cfg.Feed
	if feed == "" {
		feed = marketdata.IEX
	}
	return &AlpacaSource{client: marketdata.NewClient(opts), feed: feed}
}

// Name returns "alpaca"
func (s *AlpacaSource) Name() string {
	return "alpaca"
}

// Fetch requests bars at the matching Alpaca timeframe
func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	if err := checkRequest(s.Name(), symbol, start, end, resolution); err != nil {
		return models.CandleSeries{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeUnknown, "fetch cancelled", err)
	}

	bars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(resolution),
		Start:     start,
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeNetworkError, "GetBars failed", err)
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, models.Candle{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return finalize(s.Name(), symbol, start, end, resolution, candles)
}

func alpacaTimeFrame(r models.Resolution) marketdata.TimeFrame {
	switch r {
	case models.Resolution1m:
		return marketdata.NewTimeFrame(1, marketdata.Min)
	case models.Resolution5m:
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case models.Resolution15m:
		return marketdata.NewTimeFrame(15, marketdata.Min)
	case models.Resolution30m:
		return marketdata.NewTimeFrame(30, marketdata.Min)
	case models.Resolution1h:
		return marketdata.NewTimeFrame(1, marketdata.Hour)
	case models.Resolution4h:
		return marketdata.NewTimeFrame(4, marketdata.Hour)
	default:
		return marketdata.OneDay
	}
}
