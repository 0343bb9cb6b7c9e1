package models

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is the bar width of a candle series
type Resolution string

const (
	Resolution1m  Resolution = "1m"
	Resolution5m  Resolution = "5m"
	Resolution15m Resolution = "15m"
	Resolution30m Resolution = "30m"
	Resolution1h  Resolution = "1h"
	Resolution4h  Resolution = "4h"
	Resolution1d  Resolution = "1d"
)

var resolutionDurations = map[Resolution]time.Duration{
	Resolution1m:  time.Minute,
	Resolution5m:  5 * time.Minute,
	Resolution15m: 15 * time.Minute,
	Resolution30m: 30 * time.Minute,
	Resolution1h:  time.Hour,
	Resolution4h:  4 * time.Hour,
	Resolution1d:  24 * time.Hour,
}

// ParseResolution converts a string such as "1h" into a Resolution
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return r, nil
}

// Duration returns the bar width, zero for unknown resolutions
func (r Resolution) Duration() time.Duration {
	return resolutionDurations[r]
}

// Valid reports whether r is a supported resolution
func (r Resolution) Valid() bool {
	_, ok := resolutionDurations[r]
	return ok
}

// Candle is one OHLCV bar
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks a single bar for internally consistent prices
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedCandle)
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: non-positive price at %s", ErrMalformedCandle, c.Timestamp.Format(time.RFC3339))
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high below low at %s", ErrMalformedCandle, c.Timestamp.Format(time.RFC3339))
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume at %s", ErrMalformedCandle, c.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// CandleSeries is an ordered run of candles for one symbol and resolution.
// Consumers treat Candles as read-only; sub-series share the backing array.
type CandleSeries struct {
	Symbol     string     `json:"symbol"`
	Resolution Resolution `json:"resolution"`
	Candles    []Candle   `json:"candles"`
}

// Len returns the number of candles
func (s CandleSeries) Len() int {
	return len(s.Candles)
}

// Validate requires strictly increasing timestamps and well-formed bars.
// Gaps between timestamps are allowed.
func (s CandleSeries) Validate() error {
	for i, c := range s.Candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && !c.Timestamp.After(s.Candles[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamp %s not after %s", ErrMalformedCandle,
				c.Timestamp.Format(time.RFC3339), s.Candles[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Slice returns candles [from, to) as a series sharing the same backing array
func (s CandleSeries) Slice(from, to int) CandleSeries {
	if from < 0 {
		from = 0
	}
	if to > len(s.Candles) {
		to = len(s.Candles)
	}
	if from > to {
		from = to
	}
	return CandleSeries{Symbol: s.Symbol, Resolution: s.Resolution, Candles: s.Candles[from:to:to]}
}

// Start returns the first timestamp, zero for an empty series
func (s CandleSeries) Start() time.Time {
	if len(s.Candles) == 0 {
		return time.Time{}
	}
	return s.Candles[0].Timestamp
}

// End returns the last timestamp, zero for an empty series
func (s CandleSeries) End() time.Time {
	if len(s.Candles) == 0 {
		return time.Time{}
	}
	return s.Candles[len(s.Candles)-1].Timestamp
}

// Closes returns the close prices in order
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}
