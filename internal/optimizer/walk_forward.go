package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/backtest"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/strategy"
)

// WalkForwardConfig configures rolling out-of-sample validation of a grid
// search: optimize on a training window, then replay the winner on the
// unseen test window that follows it.
type WalkForwardConfig struct {
	TrainingWindowDays int `mapstructure:"training_window_days"`
	TestWindowDays     int `mapstructure:"test_window_days"`
	StepSizeDays       int `mapstructure:"step_size_days"`
	MinTradesPerWindow int `mapstructure:"min_trades_per_window"`
}

// WalkForwardWindow is one train/test split with its results
type WalkForwardWindow struct {
	WindowID     int                 `json:"window_id"`
	TrainStart   time.Time           `json:"train_start"`
	TrainEnd     time.Time           `json:"train_end"`
	TestStart    time.Time           `json:"test_start"`
	TestEnd      time.Time           `json:"test_end"`
	BestParams   models.ParameterSet `json:"best_params"`
	TrainMetrics backtest.Metrics    `json:"train_metrics"`
	TestMetrics  backtest.Metrics    `json:"test_metrics"`
}

// WalkForwardResult aggregates every window
type WalkForwardResult struct {
	Windows          []WalkForwardWindow `json:"windows"`
	ConsistencyScore float64             `json:"consistency_score"`
	OverfitScore     float64             `json:"overfit_score"`
}

// RunWalkForward slides train/test windows across the configured date range,
// grid-searching each training window and replaying the winner out of sample.
func RunWalkForward(ctx context.Context, provider backtest.CandleProvider, runCfg backtest.RunConfig, strat strategy.Strategy, gridCfg Config, axes []GridAxis, base models.ParameterSet, cfg WalkForwardConfig, logger *logrus.Logger) (WalkForwardResult, error) {
	if provider == nil {
		return WalkForwardResult{}, fmt.Errorf("candle provider is required")
	}
	if cfg.StepSizeDays <= 0 {
		cfg.StepSizeDays = cfg.TestWindowDays
	}
	if logger == nil {
		logger = logrus.New()
	}

	windows := []WalkForwardWindow{}
	windowID := 0

	for current := runCfg.StartDate; current.Before(runCfg.EndDate); current = current.AddDate(0, 0, cfg.StepSizeDays) {
		trainStart := current
		trainEnd := trainStart.AddDate(0, 0, cfg.TrainingWindowDays)
		testStart := trainEnd
		testEnd := testStart.AddDate(0, 0, cfg.TestWindowDays)
		if testStart.After(runCfg.EndDate) {
			break
		}
		if testEnd.After(runCfg.EndDate) {
			testEnd = runCfg.EndDate
		}
		windowID++

		trainResult, bestParams, err := optimizeWindow(ctx, provider, runCfg, strat, gridCfg, axes, base, trainStart, trainEnd, logger)
		if err != nil {
			return WalkForwardResult{}, fmt.Errorf("window %d training failed: %w", windowID, err)
		}
		if bestParams == nil {
			logger.WithField("window", windowID).Warn("No successful training candidate, skipping window")
			continue
		}

		testMetrics, err := replayWindow(ctx, provider, runCfg, strat, bestParams, testStart, testEnd, logger)
		if err != nil {
			return WalkForwardResult{}, fmt.Errorf("window %d test replay failed: %w", windowID, err)
		}
		if cfg.MinTradesPerWindow > 0 && testMetrics.TotalTrades < cfg.MinTradesPerWindow {
			continue
		}

		windows = append(windows, WalkForwardWindow{
			WindowID:     windowID,
			TrainStart:   trainStart,
			TrainEnd:     trainEnd,
			TestStart:    testStart,
			TestEnd:      testEnd,
			BestParams:   bestParams,
			TrainMetrics: trainResult,
			TestMetrics:  testMetrics,
		})
	}

	return WalkForwardResult{
		Windows:          windows,
		ConsistencyScore: consistency(windows),
		OverfitScore:     overfitScore(windows),
	}, nil
}

func optimizeWindow(ctx context.Context, provider backtest.CandleProvider, runCfg backtest.RunConfig, strat strategy.Strategy, gridCfg Config, axes []GridAxis, base models.ParameterSet, start, end time.Time, logger *logrus.Logger) (backtest.Metrics, models.ParameterSet, error) {
	cfg := runCfg
	cfg.StartDate = start
	cfg.EndDate = end

	runner, err := backtest.NewRunner(cfg, provider, strat, logger)
	if err != nil {
		return backtest.Metrics{}, nil, err
	}
	eval, err := NewRunnerEvaluator(ctx, runner, provider)
	if err != nil {
		return backtest.Metrics{}, nil, err
	}
	grid, err := NewGridSearch(gridCfg, axes, base, logger)
	if err != nil {
		return backtest.Metrics{}, nil, err
	}
	result, err := grid.Run(ctx, eval)
	if err != nil {
		return backtest.Metrics{}, nil, err
	}
	return result.BestMetrics, result.BestParams, nil
}

func replayWindow(ctx context.Context, provider backtest.CandleProvider, runCfg backtest.RunConfig, strat strategy.Strategy, params models.ParameterSet, start, end time.Time, logger *logrus.Logger) (backtest.Metrics, error) {
	cfg := runCfg
	cfg.StartDate = start
	cfg.EndDate = end

	runner, err := backtest.NewRunner(cfg, provider, strat, logger)
	if err != nil {
		return backtest.Metrics{}, err
	}
	result, err := runner.Run(ctx, params)
	if err != nil {
		return backtest.Metrics{}, err
	}
	return result.Metrics, nil
}

// consistency is the fraction of windows profitable out of sample
func consistency(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	profitable := 0
	for _, w := range windows {
		if w.TestMetrics.TotalReturn > 0 {
			profitable++
		}
	}
	return float64(profitable) / float64(len(windows))
}

// overfitScore compares in-sample to out-of-sample return; high values mean
// the training edge did not survive contact with unseen data
func overfitScore(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	trainReturn := 0.0
	testReturn := 0.0
	for _, w := range windows {
		trainReturn += w.TrainMetrics.TotalReturn
		testReturn += w.TestMetrics.TotalReturn
	}
	if trainReturn == 0 {
		return 0
	}
	return (trainReturn - testReturn) / trainReturn
}

// ToJSON exports the walk-forward result as a JSON string
func (w WalkForwardResult) ToJSON() string {
	data, _ := json.Marshal(w)
	return string(data)
}
