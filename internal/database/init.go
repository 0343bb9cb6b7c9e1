package database

import (
	"context"
	"fmt"

	"github.com/yourusername/tradelab/internal/config"
)

// CandleSchema creates the candle table used by the postgres data source
const CandleSchema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT             NOT NULL,
	resolution TEXT             NOT NULL,
	ts         TIMESTAMPTZ      NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	volume     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, resolution, ts)
)`

// Initialize creates a database connection pool and ensures the candle schema exists
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies the candle schema. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, CandleSchema); err != nil {
		return fmt.Errorf("failed to apply candle schema: %w", err)
	}
	return nil
}
