package datasource

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/yourusername/tradelab/internal/models"
)

// Compile-time interface checks.
var (
	_ Source = (*ParquetSource)(nil)
	_ Sink   = (*ParquetSource)(nil)
)

// CandleRecord is the Parquet schema for candle files
type CandleRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetSource reads one file per symbol and resolution:
//
//	<dir>/<resolution>/<SYMBOL>.parquet
type ParquetSource struct {
	dir string
}

// NewParquetSource creates a source rooted at dir
func NewParquetSource(dir string) *ParquetSource {
	return &ParquetSource{dir: dir}
}

// Name returns "parquet"
func (s *ParquetSource) Name() string {
	return "parquet"
}

// Fetch reads the symbol file and clips it to the window
func (s *ParquetSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	if err := checkRequest(s.Name(), symbol, start, end, resolution); err != nil {
		return models.CandleSeries{}, err
	}

	records, err := parquet.ReadFile[CandleRecord](s.path(symbol, resolution))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeNotFound, "no candle file for "+symbol, err)
		}
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeInvalidData, "failed to read parquet file", err)
	}

	candles := make([]models.Candle, 0, len(records))
	for _, r := range records {
		candles = append(candles, r.toModel())
	}
	return finalize(s.Name(), symbol, start, end, resolution, candles)
}

// WriteSeries merges series into the existing file, newer rows winning on equal timestamps
func (s *ParquetSource) WriteSeries(_ context.Context, series models.CandleSeries) error {
	path := s.path(series.Symbol, series.Resolution)

	existing, err := parquet.ReadFile[CandleRecord](path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "failed to read existing file", err)
	}

	incoming := make([]CandleRecord, 0, len(series.Candles))
	for _, c := range series.Candles {
		incoming = append(incoming, candleRecord(c))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "failed to create directory", err)
	}
	if err := parquet.WriteFile(path, mergeCandleRecords(existing, incoming)); err != nil {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "failed to write parquet file", err)
	}
	return nil
}

func (s *ParquetSource) path(symbol string, resolution models.Resolution) string {
	return filepath.Join(s.dir, string(resolution), strings.ToUpper(symbol)+".parquet")
}

func candleRecord(c models.Candle) CandleRecord {
	return CandleRecord{
		Timestamp: c.Timestamp.UnixMilli(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

func (r CandleRecord) toModel() models.Candle {
	return models.Candle{
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	seen := make(map[int64]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
