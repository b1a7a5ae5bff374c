package models

import (
	"time"

	"github.com/google/uuid"
)

// BacktestRecord is the persisted form of one completed backtest run.
// Raw trades and the equity curve are stored as a JSON document so the
// relational columns stay queryable while detail stays available.
type BacktestRecord struct {
	ID             uuid.UUID `json:"id"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	Strategy       string    `json:"strategy"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	ParamsJSON     []byte    `json:"params_json"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	TotalReturnPct float64   `json:"total_return_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	SortinoRatio   float64   `json:"sortino_ratio"`
	CalmarRatio    float64   `json:"calmar_ratio"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	ProfitFactor   float64   `json:"profit_factor"`
	Expectancy     float64   `json:"expectancy"`
	WinRate        float64   `json:"win_rate"`
	TotalTrades    int       `json:"total_trades"`
	FullResults    []byte    `json:"full_results"`
	CreatedAt      time.Time `json:"created_at"`
}
