package datasource

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/tradelab/internal/database"
	"github.com/yourusername/tradelab/internal/models"
)

// Compile-time interface checks.
var (
	_ Source = (*PostgresSource)(nil)
	_ Sink   = (*PostgresSource)(nil)
)

// PostgresSource reads and writes the candles table through a pgx pool
type PostgresSource struct {
	db *database.DB
}

// NewPostgresSource creates a source over an initialized database
func NewPostgresSource(db *database.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Name returns "postgres"
func (s *PostgresSource) Name() string {
	return "postgres"
}

// Fetch selects candles inside the window
func (s *PostgresSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	if err := checkRequest(s.Name(), symbol, start, end, resolution); err != nil {
		return models.CandleSeries{}, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT ts, open, high, low, close, volume FROM candles
		 WHERE symbol = $1 AND resolution = $2 AND ts BETWEEN $3 AND $4
		 ORDER BY ts`,
		symbol, string(resolution), start, end)
	if err != nil {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeStorageError, "query failed", err)
	}

	candles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Candle, error) {
		var c models.Candle
		err := row.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
		return c, err
	})
	if err != nil {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeInvalidData, "scan failed", err)
	}

	return finalize(s.Name(), symbol, start, end, resolution, candles)
}

// WriteSeries inserts candles in one batch, keeping rows that already exist
func (s *PostgresSource) WriteSeries(ctx context.Context, series models.CandleSeries) error {
	batch := &pgx.Batch{}
	for _, c := range series.Candles {
		batch.Queue(
			`INSERT INTO candles (symbol, resolution, ts, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (symbol, resolution, ts) DO NOTHING`,
			series.Symbol, string(series.Resolution), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "batch insert failed", err)
	}
	return nil
}
