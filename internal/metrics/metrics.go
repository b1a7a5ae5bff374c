// Package metrics provides the centralized Prometheus metrics registry for
// the backtesting engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "candle_forge",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by status",
	}, []string{"status"})
	OptimizerEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "candle_forge",
		Name:      "optimizer_evaluations_total",
		Help:      "Total number of optimizer candidate evaluations by status",
	}, []string{"status"})
	CandlesIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "candle_forge",
		Name:      "candles_ingested_total",
		Help:      "Total number of candles ingested by source",
	}, []string{"source"})
)

// Gauge metrics
var (
	BestObjectiveScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "candle_forge",
		Name:      "best_objective_score",
		Help:      "Best objective score observed in the current sweep",
	}, []string{"metric"})
	CandleCacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "candle_forge",
		Name:      "candle_cache_hit_ratio",
		Help:      "Hit ratio of the recent-candle cache",
	})
)

// Histogram metrics
var (
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "candle_forge",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of one candidate evaluation in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	CandleLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "candle_forge",
		Name:      "candle_load_duration_seconds",
		Help:      "Duration of candle series assembly in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(OptimizerEvaluationsTotal)
		registry.MustRegister(CandlesIngestedTotal)

		registry.MustRegister(BestObjectiveScore)
		registry.MustRegister(CandleCacheHitRatio)

		registry.MustRegister(EvaluationDuration)
		registry.MustRegister(CandleLoadDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordBacktestRun records a backtest run event.
// status should be one of: "success", "failure"
func RecordBacktestRun(status string) {
	BacktestRunsTotal.WithLabelValues(status).Inc()
}

// RecordEvaluation records one optimizer candidate evaluation.
// status should be one of: "success", "failure"
func RecordEvaluation(status string) {
	OptimizerEvaluationsTotal.WithLabelValues(status).Inc()
}

// ObserveEvaluation records the duration of one candidate evaluation.
func ObserveEvaluation(d time.Duration) {
	EvaluationDuration.Observe(d.Seconds())
}

// SetBestObjective updates the best objective score for a sweep.
func SetBestObjective(metric string, score float64) {
	BestObjectiveScore.WithLabelValues(metric).Set(score)
}

// RecordCandlesIngested records ingested candles for a source.
func RecordCandlesIngested(source string, count int) {
	CandlesIngestedTotal.WithLabelValues(source).Add(float64(count))
}
