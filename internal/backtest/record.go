package backtest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourusername/candle-forge/internal/models"
)

// ToRecord flattens a run result into its persisted form. Headline metrics
// become columns, the trade list and equity curve go into a JSON document.
func (r *Result) ToRecord(initialCapital float64) (*models.BacktestRecord, error) {
	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	full, err := json.Marshal(struct {
		Trades      []models.Trade `json:"trades"`
		EquityCurve EquityCurve    `json:"equity_curve"`
		Metrics     Metrics        `json:"metrics"`
	}{r.Trades, r.EquityCurve, r.Metrics})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal full results: %w", err)
	}

	return &models.BacktestRecord{
		ID:             r.RunID,
		Symbol:         r.Symbol,
		Timeframe:      string(r.Timeframe),
		Strategy:       r.Strategy,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		ParamsJSON:     paramsJSON,
		InitialCapital: initialCapital,
		FinalCapital:   r.Metrics.FinalEquity,
		TotalReturnPct: r.Metrics.TotalReturn,
		SharpeRatio:    r.Metrics.SharpeRatio,
		SortinoRatio:   r.Metrics.SortinoRatio,
		CalmarRatio:    r.Metrics.CalmarRatio,
		MaxDrawdownPct: r.Metrics.MaxDrawdown,
		ProfitFactor:   r.Metrics.ProfitFactor,
		Expectancy:     r.Metrics.Expectancy,
		WinRate:        r.Metrics.WinRate,
		TotalTrades:    r.Metrics.TotalTrades,
		FullResults:    full,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
