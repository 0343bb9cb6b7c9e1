package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/database"
	"github.com/yourusername/tradelab/internal/models"
)

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
)

func sampleSeries(symbol string, n int) models.CandleSeries {
	candles := make([]models.Candle, n)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = models.Candle{
			Timestamp: testStart.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price + 2,
			Low:       price - 2,
			Close:     price + 1,
			Volume:    1000,
		}
	}
	return models.CandleSeries{Symbol: symbol, Resolution: models.Resolution1d, Candles: candles}
}

func TestDataSourceErrorMatchesErrDataLoad(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("loading: %w", NewDataSourceError("http", ErrCodeNetworkError, "failed", cause))

	assert.ErrorIs(t, err, ErrDataLoad)
	assert.ErrorIs(t, err, cause)

	var dsErr DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, ErrCodeNetworkError, dsErr.Code)
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	src := NewSyntheticSource(config.SyntheticConfig{Seed: 7, StartPrice: 50, Volatility: 0.01})
	ctx := context.Background()

	a, err := src.Fetch(ctx, "SYNTH", testStart, testEnd, models.Resolution1d)
	require.NoError(t, err)
	b, err := src.Fetch(ctx, "SYNTH", testStart, testEnd, models.Resolution1d)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Len())
	assert.Equal(t, a, b)
	assert.NoError(t, a.Validate())
	assert.Equal(t, 50.0, a.Candles[0].Open)

	other, err := src.Fetch(ctx, "OTHER", testStart, testEnd, models.Resolution1d)
	require.NoError(t, err)
	assert.NotEqual(t, a.Candles[1].Close, other.Candles[1].Close)
}

func TestSyntheticSourceRejectsBadRequest(t *testing.T) {
	src := NewSyntheticSource(config.SyntheticConfig{})
	ctx := context.Background()

	_, err := src.Fetch(ctx, "", testStart, testEnd, models.Resolution1d)
	assert.ErrorIs(t, err, ErrDataLoad)

	_, err = src.Fetch(ctx, "SYNTH", testEnd, testStart, models.Resolution1d)
	assert.ErrorIs(t, err, ErrDataLoad)

	_, err = src.Fetch(ctx, "SYNTH", testStart, testEnd, models.Resolution("2d"))
	assert.ErrorIs(t, err, ErrDataLoad)
}

func TestHTTPSourcePagination(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/candles", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page_token") {
		case "":
			fmt.Fprint(w, `{"candles":[
				{"timestamp":"2024-01-02T00:00:00Z","open":"101","high":"103","low":"99","close":"102","volume":"10"},
				{"timestamp":"2024-01-01T00:00:00Z","open":100,"high":102,"low":98,"close":101,"volume":10}
			],"next_page_token":"p2"}`)
		case "p2":
			fmt.Fprint(w, `{"candles":[
				{"timestamp":"2024-01-03T00:00:00Z","open":"102","high":"104","low":"100","close":"103.5","volume":"12"}
			]}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	cfg := config.HTTPSourceConfig{BaseURL: server.URL, APIKey: "secret", PageSize: 2}
	clientCfg := DefaultHTTPClientConfig()
	clientCfg.MaxRetries = 0
	src := NewHTTPSource(NewRateLimitedHTTPClient(clientCfg, nil), cfg, nil)

	series, err := src.Fetch(context.Background(), "BTC", testStart, testEnd, models.Resolution1d)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	require.Equal(t, 3, series.Len())
	assert.Equal(t, testStart, series.Candles[0].Timestamp)
	assert.Equal(t, 103.5, series.Candles[2].Close)
}

func TestHTTPSourceStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, ErrCodeAuthenticationFailed},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusTooManyRequests, ErrCodeRateLimitExceeded},
		{http.StatusInternalServerError, ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			clientCfg := DefaultHTTPClientConfig()
			clientCfg.MaxRetries = 0
			src := NewHTTPSource(NewRateLimitedHTTPClient(clientCfg, nil), config.HTTPSourceConfig{BaseURL: server.URL}, nil)

			_, err := src.Fetch(context.Background(), "BTC", testStart, testEnd, models.Resolution1d)
			require.ErrorIs(t, err, ErrDataLoad)

			var dsErr DataSourceError
			require.ErrorAs(t, err, &dsErr)
			assert.Equal(t, tt.code, dsErr.Code)
		})
	}
}

func TestHTTPSourceMalformedCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candles":[{"timestamp":"2024-01-02T00:00:00Z","open":"1","high":"0.5","low":"2","close":"1","volume":"1"}]}`)
	}))
	defer server.Close()

	src := NewHTTPSource(NewRateLimitedHTTPClient(DefaultHTTPClientConfig(), nil), config.HTTPSourceConfig{BaseURL: server.URL}, nil)
	_, err := src.Fetch(context.Background(), "BTC", testStart, testEnd, models.Resolution1d)

	var dsErr DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, ErrCodeInvalidData, dsErr.Code)
	assert.ErrorIs(t, err, models.ErrMalformedCandle)
}

func TestCircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreakerMax = 2
	client := NewRateLimitedHTTPClient(cfg, nil)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

type fakeBarClient struct {
	req  marketdata.GetBarsRequest
	bars []marketdata.Bar
	err  error
}

func (f *fakeBarClient) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, f.err
}

func TestAlpacaSourceConvertsBars(t *testing.T) {
	fake := &fakeBarClient{bars: []marketdata.Bar{
		{Timestamp: testStart.Add(time.Hour), Open: 10, High: 12, Low: 9, Close: 11, Volume: 500},
		{Timestamp: testStart, Open: 9, High: 11, Low: 8, Close: 10, Volume: 400},
	}}
	src := &AlpacaSource{client: fake, feed: marketdata.IEX}

	series, err := src.Fetch(context.Background(), "AAPL", testStart, testEnd, models.Resolution1h)
	require.NoError(t, err)

	assert.Equal(t, marketdata.NewTimeFrame(1, marketdata.Hour), fake.req.TimeFrame)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, testStart, series.Candles[0].Timestamp)
	assert.Equal(t, 500.0, series.Candles[1].Volume)

	fake.err = errors.New("forbidden")
	_, err = src.Fetch(context.Background(), "AAPL", testStart, testEnd, models.Resolution1h)
	assert.ErrorIs(t, err, ErrDataLoad)
}

func TestParquetSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := NewParquetSource(dir)
	ctx := context.Background()

	require.NoError(t, src.WriteSeries(ctx, sampleSeries("eth", 5)))
	assert.FileExists(t, filepath.Join(dir, "1d", "ETH.parquet"))

	// Overlapping write merges on timestamp
	require.NoError(t, src.WriteSeries(ctx, sampleSeries("eth", 8)))

	series, err := src.Fetch(ctx, "eth", testStart, testStart.Add(4*24*time.Hour), models.Resolution1d)
	require.NoError(t, err)
	assert.Equal(t, 5, series.Len())
	assert.Equal(t, sampleSeries("eth", 5).Candles, series.Candles)

	_, err = src.Fetch(ctx, "MISSING", testStart, testEnd, models.Resolution1d)
	var dsErr DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, ErrCodeNotFound, dsErr.Code)
}

func TestSQLiteSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := NewSQLiteSource(ctx, filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.WriteSeries(ctx, sampleSeries("SPY", 10)))
	require.NoError(t, src.WriteSeries(ctx, sampleSeries("SPY", 10)))

	series, err := src.Fetch(ctx, "SPY", testStart.Add(24*time.Hour), testEnd, models.Resolution1d)
	require.NoError(t, err)
	assert.Equal(t, 9, series.Len())
	assert.Equal(t, 102.0, series.Candles[0].Close)

	empty, err := src.Fetch(ctx, "SPY", testStart, testEnd, models.Resolution1h)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestPostgresSourceRoundTrip(t *testing.T) {
	db := database.SetupTestDB(t)
	ctx := context.Background()
	src := NewPostgresSource(db)

	require.NoError(t, src.WriteSeries(ctx, sampleSeries("QQQ", 6)))
	require.NoError(t, src.WriteSeries(ctx, sampleSeries("QQQ", 6)))

	series, err := src.Fetch(ctx, "QQQ", testStart, testEnd, models.Resolution1d)
	require.NoError(t, err)
	require.Equal(t, 6, series.Len())
	assert.True(t, series.Candles[0].Timestamp.Equal(testStart))
}

func TestFactoryCreatesConfiguredSources(t *testing.T) {
	cfg := &config.Config{}
	cfg.DataSource.Parquet.Dir = t.TempDir()
	cfg.DataSource.SQLite.Path = filepath.Join(t.TempDir(), "f.db")
	f := NewFactory(cfg, nil, nil)
	ctx := context.Background()

	for _, st := range []SourceType{SyntheticSourceType, ParquetSourceType, SQLiteSourceType} {
		src, err := f.CreateType(ctx, st)
		require.NoError(t, err, st)
		assert.Equal(t, string(st), src.Name())
	}

	_, err := f.CreateType(ctx, PostgresSourceType)
	assert.Error(t, err)
	_, err = f.CreateType(ctx, HTTPSourceType)
	assert.Error(t, err)
	_, err = f.CreateType(ctx, SourceType("ftp"))
	assert.Error(t, err)
}
