package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/candle-forge/internal/database"
	"github.com/yourusername/candle-forge/internal/models"
)

const (
	errScanBacktestRecord = "failed to scan backtest record: %w"

	backtestRecordColumns = `
		id, symbol, timeframe, strategy, start_date, end_date, params,
		initial_capital, final_capital, total_return_pct, sharpe_ratio,
		sortino_ratio, calmar_ratio, max_drawdown_pct, profit_factor,
		expectancy, win_rate, total_trades, full_results, created_at`
)

// PostgresBacktestResultRepository implements BacktestResultRepository for PostgreSQL
type PostgresBacktestResultRepository struct {
	db *database.DB
}

// NewPostgresBacktestResultRepository creates a new backtest result repository
func NewPostgresBacktestResultRepository(db *database.DB) BacktestResultRepository {
	return &PostgresBacktestResultRepository{db: db}
}

// Save inserts a backtest record
func (r *PostgresBacktestResultRepository) Save(ctx context.Context, record *models.BacktestRecord) error {
	query := `
		INSERT INTO backtest_results (
			id, symbol, timeframe, strategy, start_date, end_date, params,
			initial_capital, final_capital, total_return_pct, sharpe_ratio,
			sortino_ratio, calmar_ratio, max_drawdown_pct, profit_factor,
			expectancy, win_rate, total_trades, full_results, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		record.ID, record.Symbol, record.Timeframe, record.Strategy, record.StartDate, record.EndDate, record.ParamsJSON,
		record.InitialCapital, record.FinalCapital, record.TotalReturnPct, record.SharpeRatio,
		record.SortinoRatio, record.CalmarRatio, record.MaxDrawdownPct, record.ProfitFactor,
		record.Expectancy, record.WinRate, record.TotalTrades, record.FullResults, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backtest record: %w", err)
	}
	return nil
}

// GetByID retrieves a backtest record by its run ID
func (r *PostgresBacktestResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM backtest_results WHERE id = $1", backtestRecordColumns)

	record := &models.BacktestRecord{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&record.ID, &record.Symbol, &record.Timeframe, &record.Strategy, &record.StartDate, &record.EndDate, &record.ParamsJSON,
		&record.InitialCapital, &record.FinalCapital, &record.TotalReturnPct, &record.SharpeRatio,
		&record.SortinoRatio, &record.CalmarRatio, &record.MaxDrawdownPct, &record.ProfitFactor,
		&record.Expectancy, &record.WinRate, &record.TotalTrades, &record.FullResults, &record.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest record: %w", err)
	}

	return record, nil
}

// GetBySymbol retrieves the most recent backtest records for a symbol
func (r *PostgresBacktestResultRepository) GetBySymbol(ctx context.Context, symbol string, limit int) ([]*models.BacktestRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM backtest_results WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2",
		backtestRecordColumns,
	)

	rows, err := r.db.GetPool().Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest records by symbol: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetLatest retrieves the most recent backtest records
func (r *PostgresBacktestResultRepository) GetLatest(ctx context.Context, limit int) ([]*models.BacktestRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM backtest_results ORDER BY created_at DESC LIMIT $1",
		backtestRecordColumns,
	)

	rows, err := r.db.GetPool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest backtest records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*models.BacktestRecord, error) {
	var records []*models.BacktestRecord
	for rows.Next() {
		record := &models.BacktestRecord{}
		if err := rows.Scan(
			&record.ID, &record.Symbol, &record.Timeframe, &record.Strategy, &record.StartDate, &record.EndDate, &record.ParamsJSON,
			&record.InitialCapital, &record.FinalCapital, &record.TotalReturnPct, &record.SharpeRatio,
			&record.SortinoRatio, &record.CalmarRatio, &record.MaxDrawdownPct, &record.ProfitFactor,
			&record.Expectancy, &record.WinRate, &record.TotalTrades, &record.FullResults, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf(errScanBacktestRecord, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
