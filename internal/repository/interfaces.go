package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/candle-forge/internal/models"
)

// CandleRepository defines the interface for candle data access
type CandleRepository interface {
	UpsertBatch(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle) error
	GetRange(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) ([]models.Candle, error)
	LatestTimestamp(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, error)
	CountRange(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (int64, error)
}

// BacktestResultRepository defines backtest result persistence
type BacktestResultRepository interface {
	Save(ctx context.Context, record *models.BacktestRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRecord, error)
	GetBySymbol(ctx context.Context, symbol string, limit int) ([]*models.BacktestRecord, error)
	GetLatest(ctx context.Context, limit int) ([]*models.BacktestRecord, error)
}
