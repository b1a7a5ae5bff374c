package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/strategy"
)

// CandleProvider is the data-assembly contract the runner consumes. The
// runner is indifferent to how the provider splits work between a fast
// cache and a durable store.
type CandleProvider interface {
	Load(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Candle, error)
}

// Result is the immutable output of one backtest pass
type Result struct {
	RunID       uuid.UUID           `json:"run_id"`
	Symbol      string              `json:"symbol"`
	Timeframe   models.Timeframe    `json:"timeframe"`
	StartDate   time.Time           `json:"start_date"`
	EndDate     time.Time           `json:"end_date"`
	Strategy    string              `json:"strategy"`
	Params      models.ParameterSet `json:"params"`
	Trades      []models.Trade      `json:"trades"`
	EquityCurve EquityCurve         `json:"equity_curve"`
	Metrics     Metrics             `json:"metrics"`
}

// Runner orchestrates one full pass: load candles once, drive the signal
// engine and simulator per candle in strict ascending order, then hand the
// trades and equity curve to the analyzer.
type Runner struct {
	cfg      RunConfig
	provider CandleProvider
	strat    strategy.Strategy
	runLog   *logger.RunLogger
}

// NewRunner creates a backtest runner
func NewRunner(cfg RunConfig, provider CandleProvider, strat strategy.Strategy, baseLogger *logrus.Logger) (*Runner, error) {
	if provider == nil {
		return nil, fmt.Errorf("candle provider is required")
	}
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if baseLogger == nil {
		baseLogger = logrus.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, provider: provider, strat: strat, runLog: logger.NewRunLogger(baseLogger)}, nil
}

// Config returns the run configuration
func (r *Runner) Config() RunConfig {
	return r.cfg
}

// Run loads the candle series and executes one simulation with params
func (r *Runner) Run(ctx context.Context, params models.ParameterSet) (*Result, error) {
	candles, err := r.provider.Load(ctx, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.StartDate, r.cfg.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}
	return r.RunCandles(ctx, candles, params)
}

// RunCandles executes one simulation over a preloaded, immutable candle
// slice. The optimizer calls this directly so the series is loaded exactly
// once per sweep and shared read-only across workers.
func (r *Runner) RunCandles(ctx context.Context, candles []models.Candle, params models.ParameterSet) (*Result, error) {
	if err := ValidateParams(r.strat, params); err != nil {
		return nil, err
	}

	minWindow := r.strat.MinWindow(params)
	if len(candles) <= minWindow {
		return nil, fmt.Errorf("%w: %d candles, need more than %d for lookback", models.ErrDataUnavailable, len(candles), minWindow)
	}

	series, err := r.strat.Prepare(candles, params)
	if err != nil {
		return nil, err
	}

	sim := NewSimulator(r.cfg.SimConfig(), r.strat, params)

	runID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(r.cfg.Symbol+string(r.cfg.Timeframe)+params.Hash()))
	r.runLog.LogRunStarted(runID.String(), r.cfg.Symbol, string(r.cfg.Timeframe), r.strat.Name(), len(candles))
	started := time.Now()

	// The loop starts at the first index with a complete indicator lookback
	// and advances one candle at a time, never reading ahead.
	for i := minWindow; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w := series.WindowAt(i)
		sig, err := r.strat.Analyze(w, sim.Position(), params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrSimulationFailure, err)
		}
		sim.Step(w, sig)
	}
	sim.Finish(candles[len(candles)-1])

	metrics := Analyze(sim.Trades(), sim.EquityCurve(), r.cfg.InitialCapital, r.cfg.ElapsedDays())

	for _, trade := range sim.Trades() {
		r.runLog.LogTradeClosed(runID.String(), r.cfg.Symbol, string(trade.Side), string(trade.ExitReason),
			trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.DCAFills)
	}

	result := &Result{
		RunID:       runID,
		Symbol:      r.cfg.Symbol,
		Timeframe:   r.cfg.Timeframe,
		StartDate:   r.cfg.StartDate,
		EndDate:     r.cfg.EndDate,
		Strategy:    r.strat.Name(),
		Params:      params.Clone(),
		Trades:      sim.Trades(),
		EquityCurve: sim.EquityCurve(),
		Metrics:     metrics,
	}

	r.runLog.LogRunCompleted(runID.String(), metrics.TotalTrades,
		metrics.TotalReturn*100, metrics.MaxDrawdown*100, metrics.SharpeRatio,
		float64(time.Since(started).Milliseconds()))

	return result, nil
}
