package optimizer

import (
	"context"
	"fmt"

	"github.com/yourusername/candle-forge/internal/backtest"
	"github.com/yourusername/candle-forge/internal/models"
)

// RunnerEvaluator adapts a backtest Runner into the Evaluator primitive.
// The candle series is loaded and validated exactly once per sweep and then
// shared read-only by every evaluation.
type RunnerEvaluator struct {
	runner  *backtest.Runner
	candles []models.Candle
}

// NewRunnerEvaluator loads the candle series for the runner's configured
// symbol, timeframe and date range.
func NewRunnerEvaluator(ctx context.Context, runner *backtest.Runner, provider backtest.CandleProvider) (*RunnerEvaluator, error) {
	cfg := runner.Config()
	candles, err := provider.Load(ctx, cfg.Symbol, cfg.Timeframe, cfg.StartDate, cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles for sweep: %w", err)
	}
	return &RunnerEvaluator{runner: runner, candles: candles}, nil
}

// NewSeriesEvaluator wraps a runner around a preloaded candle slice
func NewSeriesEvaluator(runner *backtest.Runner, candles []models.Candle) *RunnerEvaluator {
	return &RunnerEvaluator{runner: runner, candles: candles}
}

// Candles exposes the shared immutable series
func (e *RunnerEvaluator) Candles() []models.Candle {
	return e.candles
}

// Evaluate runs one full backtest plus analysis pass
func (e *RunnerEvaluator) Evaluate(ctx context.Context, params models.ParameterSet) (backtest.Metrics, error) {
	result, err := e.runner.RunCandles(ctx, e.candles, params)
	if err != nil {
		return backtest.Metrics{}, err
	}
	return result.Metrics, nil
}
