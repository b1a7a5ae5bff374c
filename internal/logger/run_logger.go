// Package logger provides backtest-run-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// RunLogger provides dedicated logging for backtest run lifecycle events.
type RunLogger struct {
	*logrus.Entry
}

// NewRunLogger creates a new backtest run logger.
func NewRunLogger(baseLogger *logrus.Logger) *RunLogger {
	return &RunLogger{
		Entry: baseLogger.WithField("component", "backtest"),
	}
}

// LogRunStarted logs the start of a backtest run.
func (rl *RunLogger) LogRunStarted(runID, symbol, timeframe, strategy string, candleCount int) {
	rl.WithFields(logrus.Fields{
		"run_id":       runID,
		"symbol":       symbol,
		"timeframe":    timeframe,
		"strategy":     strategy,
		"candle_count": candleCount,
	}).Info("Backtest run started")
}

// LogRunCompleted logs the completion of a backtest run.
func (rl *RunLogger) LogRunCompleted(runID string, totalTrades int, totalReturnPct, maxDrawdownPct, sharpe float64, durationMs float64) {
	rl.WithFields(logrus.Fields{
		"run_id":           runID,
		"total_trades":     totalTrades,
		"total_return_pct": totalReturnPct,
		"max_drawdown_pct": maxDrawdownPct,
		"sharpe_ratio":     sharpe,
		"duration_ms":      durationMs,
	}).Info("Backtest run completed")
}

// LogTradeClosed logs a closed trade.
func (rl *RunLogger) LogTradeClosed(runID, symbol, side, exitReason string, entryPrice, exitPrice, pnl float64, fillCount int) {
	rl.WithFields(logrus.Fields{
		"run_id":      runID,
		"symbol":      symbol,
		"side":        side,
		"exit_reason": exitReason,
		"entry_price": entryPrice,
		"exit_price":  exitPrice,
		"pnl":         pnl,
		"fill_count":  fillCount,
	}).Debug("Trade closed")
}

// LogDataGap logs a detected gap in the candle series.
func (rl *RunLogger) LogDataGap(symbol, timeframe string, gapStart, gapEnd string, missingCandles int) {
	rl.WithFields(logrus.Fields{
		"symbol":          symbol,
		"timeframe":       timeframe,
		"gap_start":       gapStart,
		"gap_end":         gapEnd,
		"missing_candles": missingCandles,
	}).Warn("Gap detected in candle series")
}

// LogOptimizationProgress logs optimizer sweep progress.
func (rl *RunLogger) LogOptimizationProgress(sweepID string, evaluated, failed, total int, bestScore float64) {
	rl.WithFields(logrus.Fields{
		"sweep_id":   sweepID,
		"evaluated":  evaluated,
		"failed":     failed,
		"total":      total,
		"best_score": bestScore,
	}).Info("Optimization progress")
}
