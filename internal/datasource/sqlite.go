package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yourusername/tradelab/internal/models"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT    NOT NULL,
	resolution TEXT    NOT NULL,
	ts         INTEGER NOT NULL,
	open       REAL    NOT NULL,
	high       REAL    NOT NULL,
	low        REAL    NOT NULL,
	close      REAL    NOT NULL,
	volume     REAL    NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, resolution, ts)
)`

// Compile-time interface checks.
var (
	_ Source = (*SQLiteSource)(nil)
	_ Sink   = (*SQLiteSource)(nil)
)

// SQLiteSource stores candles in an embedded SQLite file. Timestamps are Unix milliseconds.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens (or creates) the database at path and ensures the schema
func NewSQLiteSource(ctx context.Context, path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, NewDataSourceError("sqlite", ErrCodeStorageError, "failed to open database", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, NewDataSourceError("sqlite", ErrCodeStorageError, "failed to create schema", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Name returns "sqlite"
func (s *SQLiteSource) Name() string {
	return "sqlite"
}

// Close closes the underlying database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Fetch selects candles inside the window
func (s *SQLiteSource) Fetch(ctx context.Context, symbol string, start, end time.Time, resolution models.Resolution) (models.CandleSeries, error) {
	if err := checkRequest(s.Name(), symbol, start, end, resolution); err != nil {
		return models.CandleSeries{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM candles
		 WHERE symbol = ? AND resolution = ? AND ts BETWEEN ? AND ?
		 ORDER BY ts`,
		symbol, string(resolution), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeStorageError, "query failed", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var (
			ts int64
			c  models.Candle
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeInvalidData, "scan failed", err)
		}
		c.Timestamp = time.UnixMilli(ts).UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return models.CandleSeries{}, NewDataSourceError(s.Name(), ErrCodeStorageError, "row iteration failed", err)
	}

	return finalize(s.Name(), symbol, start, end, resolution, candles)
}

// WriteSeries upserts every candle of series in one transaction
func (s *SQLiteSource) WriteSeries(ctx context.Context, series models.CandleSeries) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO candles (symbol, resolution, ts, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, c := range series.Candles {
		if _, err := stmt.ExecContext(ctx, series.Symbol, string(series.Resolution), c.Timestamp.UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return NewDataSourceError(s.Name(), ErrCodeStorageError,
				fmt.Sprintf("failed to insert candle at %s", c.Timestamp.Format(time.RFC3339)), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewDataSourceError(s.Name(), ErrCodeStorageError, "failed to commit", err)
	}
	return nil
}
