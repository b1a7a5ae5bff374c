// Package optimizer searches strategy parameter spaces by driving many
// independent backtest runs in parallel and ranking them by an objective
// metric. Both search algorithms share one evaluation primitive and a
// bounded worker pool; a failing candidate never aborts a sweep.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/backtest"
	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
)

// Evaluator is the run_one primitive: a full backtest plus analysis pass
// for one parameter set.
type Evaluator interface {
	Evaluate(ctx context.Context, params models.ParameterSet) (backtest.Metrics, error)
}

// Objective selects and orients the ranking metric
type Objective struct {
	Metric   string `mapstructure:"metric"`
	Maximize bool   `mapstructure:"maximize"`
}

// Fitness extracts the objective value from metrics
func (o Objective) Fitness(m backtest.Metrics) (float64, error) {
	v, ok := m.Value(o.Metric)
	if !ok {
		return 0, fmt.Errorf("unknown objective metric %q", o.Metric)
	}
	return v, nil
}

// Better reports whether a strictly beats b under the objective. Strict
// comparison makes ties break by earliest enumeration order.
func (o Objective) Better(a, b float64) bool {
	if o.Maximize {
		return a > b
	}
	return a < b
}

// Config holds settings shared by both search algorithms
type Config struct {
	Workers    int           `mapstructure:"workers"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	TopN       int           `mapstructure:"top_n"`
	Objective  Objective     `mapstructure:"objective"`
	Seed       int64         `mapstructure:"seed"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Second
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.Objective.Metric == "" {
		c.Objective = Objective{Metric: "sharpe_ratio", Maximize: true}
	}
	return c
}

// Candidate is one evaluated parameter set. Err is set when the evaluation
// failed or timed out; such candidates are excluded from ranking.
type Candidate struct {
	Index   int                 `json:"index"`
	Params  models.ParameterSet `json:"params"`
	Metrics backtest.Metrics    `json:"metrics"`
	Score   float64             `json:"score"`
	Err     error               `json:"-"`
}

// Result is the outcome of one optimization sweep. A sweep always returns
// best-so-far results plus failure counts, even when cancelled early.
type Result struct {
	BestParams  models.ParameterSet `json:"best_params"`
	BestMetrics backtest.Metrics    `json:"best_metrics"`
	BestScore   float64             `json:"best_score"`
	Top         []Candidate         `json:"top"`
	Evaluated   int                 `json:"evaluated"`
	Failed      int                 `json:"failed"`
}

// evaluateAll runs every parameter set through the evaluator on a bounded
// pool of cfg.Workers. Each worker owns its own simulator state; only the
// immutable candle series is shared. Cancellation is checked between
// evaluations, so already-completed candidates are retained.
func evaluateAll(ctx context.Context, eval Evaluator, sets []models.ParameterSet, cfg Config, logger *logrus.Logger) []Candidate {
	candidates := make([]Candidate, len(sets))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				candidates[idx] = evaluateOne(ctx, eval, idx, sets[idx], cfg, logger)
			}
		}()
	}

dispatch:
	for i := range sets {
		select {
		case <-ctx.Done():
			// mark undispatched candidates as failed by cancellation
			for j := i; j < len(sets); j++ {
				candidates[j] = Candidate{Index: j, Params: sets[j], Err: ctx.Err()}
			}
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return candidates
}

func evaluateOne(ctx context.Context, eval Evaluator, idx int, params models.ParameterSet, cfg Config, logger *logrus.Logger) (cand Candidate) {
	cand = Candidate{Index: idx, Params: params}

	// a panicking simulation is a failed candidate, not a dead sweep
	defer func() {
		if r := recover(); r != nil {
			cand.Err = fmt.Errorf("%w: panic: %v", models.ErrSimulationFailure, r)
			logFailure(logger, cand)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	m, err := eval.Evaluate(runCtx, params)
	metrics.ObserveEvaluation(time.Since(start))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", models.ErrEvaluationTimeout, cfg.RunTimeout)
		}
		cand.Err = err
		logFailure(logger, cand)
		metrics.RecordEvaluation("failure")
		return cand
	}

	score, err := cfg.Objective.Fitness(m)
	if err != nil {
		cand.Err = err
		logFailure(logger, cand)
		metrics.RecordEvaluation("failure")
		return cand
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		cand.Err = fmt.Errorf("%w: objective %q is not finite", models.ErrSimulationFailure, cfg.Objective.Metric)
		logFailure(logger, cand)
		metrics.RecordEvaluation("failure")
		return cand
	}

	cand.Metrics = m
	cand.Score = score
	metrics.RecordEvaluation("success")
	return cand
}

func logFailure(logger *logrus.Logger, cand Candidate) {
	logger.WithFields(logrus.Fields{
		"index":  cand.Index,
		"params": cand.Params,
	}).WithError(cand.Err).Warn("Candidate evaluation failed, excluded from ranking")
}

// rank assembles a Result from evaluated candidates. Iteration is in
// enumeration order so an equal score never displaces an earlier winner.
func rank(candidates []Candidate, cfg Config) Result {
	res := Result{}
	succeeded := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Err != nil {
			res.Failed++
			continue
		}
		res.Evaluated++
		succeeded = append(succeeded, c)
		if res.BestParams == nil || cfg.Objective.Better(c.Score, res.BestScore) {
			res.BestParams = c.Params
			res.BestMetrics = c.Metrics
			res.BestScore = c.Score
		}
	}

	sort.SliceStable(succeeded, func(i, j int) bool {
		if succeeded[i].Score == succeeded[j].Score {
			return succeeded[i].Index < succeeded[j].Index
		}
		return cfg.Objective.Better(succeeded[i].Score, succeeded[j].Score)
	})
	if len(succeeded) > cfg.TopN {
		succeeded = succeeded[:cfg.TopN]
	}
	res.Top = succeeded
	if res.BestParams != nil {
		metrics.SetBestObjective(cfg.Objective.Metric, res.BestScore)
	}
	return res
}
