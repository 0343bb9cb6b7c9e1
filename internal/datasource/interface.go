// Package datasource loads historical candle series from pluggable backends.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yourusername/tradelab/internal/models"
)

// ErrDataLoad is matched by every DataSourceError
var ErrDataLoad = errors.New("data load failed")

// Source fetches candles for one symbol and resolution within [start, end]
type Source interface {
	// Name returns the name of the data source
	Name() string

	// Fetch returns the candles inside the window, ordered by time
	Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error)
}

// Sink persists candle series, used to warm local stores from remote sources
type Sink interface {
	WriteSeries(ctx context.Context, series models.CandleSeries) error
}

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

// Unwrap returns the underlying error
func (e DataSourceError) Unwrap() error {
	return e.Err
}

// Is makes every DataSourceError match ErrDataLoad
func (e DataSourceError) Is(target error) bool {
	return target == ErrDataLoad
}

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
	ErrCodeStorageError         = "storage_error"
	ErrCodeUnknown              = "unknown"
)

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// checkRequest rejects windows and resolutions no backend can serve
func checkRequest(source, symbol string, start, end time.Time, resolution models.Resolution) error {
	if symbol == "" {
		return NewDataSourceError(source, ErrCodeInvalidRequest, "symbol is required", nil)
	}
	if !resolution.Valid() {
		return NewDataSourceError(source, ErrCodeInvalidRequest, fmt.Sprintf("unsupported resolution %q", resolution), nil)
	}
	if end.Before(start) {
		return NewDataSourceError(source, ErrCodeInvalidRequest, "end before start", nil)
	}
	return nil
}

// finalize orders candles, clips them to the window and validates the result
func finalize(source, symbol string, start, end time.Time, resolution models.Resolution, candles []models.Candle) (models.CandleSeries, error) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	kept := candles[:0]
	for _, c := range candles {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		c.Timestamp = c.Timestamp.UTC()
		kept = append(kept, c)
	}

	series := models.CandleSeries{Symbol: symbol, Resolution: resolution, Candles: kept}
	if err := series.Validate(); err != nil {
		return models.CandleSeries{}, NewDataSourceError(source, ErrCodeInvalidData, "malformed candles", err)
	}
	return series, nil
}

// LoadError records which symbol failed to load from which source
type LoadError struct {
	Source string
	Symbol string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Symbol, e.Source, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes every LoadError match ErrDataLoad
func (e *LoadError) Is(target error) bool {
	return target == ErrDataLoad
}
