package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/candle-forge/internal/database"
	"github.com/yourusername/candle-forge/internal/models"
)

const candleColumns = "time, symbol, timeframe, open, high, low, close, volume"

// PostgresCandleRepository implements CandleRepository for PostgreSQL
type PostgresCandleRepository struct {
	db *database.DB
}

// NewPostgresCandleRepository creates a new candle repository
func NewPostgresCandleRepository(db *database.DB) CandleRepository {
	return &PostgresCandleRepository{db: db}
}

// UpsertBatch inserts or replaces candles in bulk. Exchange APIs re-deliver
// the still-open bar, so conflicts update in place rather than fail.
func (r *PostgresCandleRepository) UpsertBatch(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	query := `
		INSERT INTO candles (time, symbol, timeframe, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, time)
		DO UPDATE SET open = EXCLUDED.open, high = EXCLUDED.high,
			low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(query,
			c.Timestamp, symbol, string(timeframe),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	// The whole batch commits or rolls back as one unit so a mid-batch
	// failure cannot leave a partially written series behind.
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range candles {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to upsert candle batch: %w", err)
			}
		}
		return results.Close()
	})
}

// GetRange retrieves candles for a symbol and timeframe within a time range, ordered ascending
func (r *PostgresCandleRepository) GetRange(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND time >= $3 AND time < $4
		ORDER BY time ASC
	`, candleColumns)

	rows, err := r.db.GetPool().Query(ctx, query, symbol, string(timeframe), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		var sym, tf string
		if err := rows.Scan(&c.Timestamp, &sym, &tf, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	return candles, rows.Err()
}

// LatestTimestamp returns the most recent candle timestamp for a symbol and timeframe
func (r *PostgresCandleRepository) LatestTimestamp(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, error) {
	query := `
		SELECT time FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY time DESC
		LIMIT 1
	`

	var ts time.Time
	err := r.db.GetPool().QueryRow(ctx, query, symbol, string(timeframe)).Scan(&ts)
	if err == pgx.ErrNoRows {
		return time.Time{}, models.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest candle timestamp: %w", err)
	}

	return ts, nil
}

// CountRange counts stored candles for a symbol and timeframe within a time range
func (r *PostgresCandleRepository) CountRange(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND time >= $3 AND time < $4
	`

	var count int64
	err := r.db.GetPool().QueryRow(ctx, query, symbol, string(timeframe), start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}

	return count, nil
}
