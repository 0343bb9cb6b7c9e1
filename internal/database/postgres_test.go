package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseRoundTrip(t *testing.T) {
	db := SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.HealthCheck(ctx))
	// Migrations are idempotent
	require.NoError(t, db.Migrate(ctx))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO candles (symbol, resolution, ts, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			"SYNTH", "1d", ts, 100.0, 105.0, 95.0, 102.0, 1000.0)
		return err
	})
	require.NoError(t, err)

	var closePrice float64
	require.NoError(t, db.QueryRow(ctx, `SELECT close FROM candles WHERE symbol = $1`, "SYNTH").Scan(&closePrice))
	assert.Equal(t, 102.0, closePrice)
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := SetupTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO candles (symbol, resolution, ts, open, high, low, close)
			 VALUES ('RB', '1d', now(), 1, 1, 1, 1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM candles WHERE symbol = 'RB'`).Scan(&count))
	assert.Zero(t, count)
}
