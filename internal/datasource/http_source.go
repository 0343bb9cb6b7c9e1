package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/tradelab/internal/config"
	"github.com/yourusername/tradelab/internal/models"
)

const (
	defaultPageSize = 1000
	maxPages        = 10_000
)

// HTTPSource reads candles from a paginated REST API:
//
//	GET {base}/v1/candles?symbol=&resolution=&start=&end=&limit=&page_token=
type HTTPSource struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	pageSize   int
	logger     *logrus.Entry
}

type candlePage struct {
	Candles       []apiCandle `json:"candles"`
	NextPageToken string      `json:"next_page_token"`
}

// apiCandle carries prices as decimals so string and numeric encodings both parse
type apiCandle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// NewHTTPSource creates a REST candle source
func NewHTTPSource(httpClient *RateLimitedHTTPClient, cfg config.HTTPSourceConfig, logger *logrus.Logger) *HTTPSource {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &HTTPSource{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		logger:     logger.WithField("source", "http"),
	}
}

// Name returns "http"
func (s *HTTPSource) Name() string {
	return "http"
}

// Fetch follows next_page_token until the server stops returning one
func (s *HTTPSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	if err := checkRequest(s.Name(), symbol, start, end, resolution); err != nil {
		return models.CandleSeries{}, err
	}

	var candles []models.Candle
	token := ""
	for page := 0; ; page++ {
		if page >= maxPages {
			return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeInvalidData, "too many pages", nil)
		}

		resp, err := s.fetchPage(ctx, symbol, start, end, resolution, token)
		if err != nil {
			return models.CandleSeries{}, err
		}

		for _, c := range resp.Candles {
			candles = append(candles, c.toModel())
		}
		s.logger.WithFields(logrus.Fields{
			"symbol":  symbol,
			"page":    page,
			"candles": len(resp.Candles),
		}).Debug("Fetched candle page")

		if resp.NextPageToken == "" || resp.NextPageToken == token {
			break
		}
		token = resp.NextPageToken
	}

	return finalize(s.Name(), symbol, start, end, resolution, candles)
}

func (s *HTTPSource) fetchPage(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution, token string) (*candlePage, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", string(resolution))
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(s.pageSize))
	if token != "" {
		q.Set("page_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, NewDataSourceError(s.Name(), ErrCodeNetworkError, "failed to create request", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(ctx, req)
	if err != nil {
		return nil, NewDataSourceError(s.Name(), ErrCodeNetworkError, "failed to fetch candles", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, NewDataSourceError(s.Name(), statusCode(resp.StatusCode),
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var page candlePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, NewDataSourceError(s.Name(), ErrCodeInvalidData, "failed to parse response", err)
	}
	return &page, nil
}

func statusCode(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAuthenticationFailed
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimitExceeded
	case status == http.StatusBadRequest:
		return ErrCodeInvalidRequest
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeUnknown
	}
}

func (c apiCandle) toModel() models.Candle {
	return models.Candle{
		Timestamp: c.Timestamp,
		Open:      c.Open.InexactFloat64(),
		High:      c.High.InexactFloat64(),
		Low:       c.Low.InexactFloat64(),
		Close:     c.Close.InexactFloat64(),
		Volume:    c.Volume.InexactFloat64(),
	}
}
