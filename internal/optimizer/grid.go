package optimizer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/models"
)

// GridAxis is one parameter with its discrete value list
type GridAxis struct {
	Name   string    `mapstructure:"name"`
	Values []float64 `mapstructure:"values"`
}

// GridSearch enumerates the Cartesian product of the axes' value lists and
// evaluates every combination in an isolated worker. The reported best is
// the argmax (or argmin) of the objective among successful evaluations,
// with ties broken by earliest enumeration order.
type GridSearch struct {
	cfg    Config
	axes   []GridAxis
	base   models.ParameterSet
	logger *logrus.Logger
}

// NewGridSearch creates a grid search over axes. base supplies the fixed
// parameters every combination inherits.
func NewGridSearch(cfg Config, axes []GridAxis, base models.ParameterSet, baseLogger *logrus.Logger) (*GridSearch, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("at least one grid axis is required")
	}
	for _, a := range axes {
		if a.Name == "" || len(a.Values) == 0 {
			return nil, fmt.Errorf("grid axis %q must name a parameter and list values", a.Name)
		}
	}
	if baseLogger == nil {
		baseLogger = logrus.New()
	}
	return &GridSearch{cfg: cfg.withDefaults(), axes: axes, base: base, logger: baseLogger}, nil
}

// Combinations returns the total number of grid points
func (g *GridSearch) Combinations() int {
	total := 1
	for _, a := range g.axes {
		total *= len(a.Values)
	}
	return total
}

// Run executes the sweep and returns best-so-far results even when the
// context is cancelled mid-sweep.
func (g *GridSearch) Run(ctx context.Context, eval Evaluator) (Result, error) {
	sets := g.enumerate()
	sweepID := uuid.NewString()
	g.logger.WithFields(logrus.Fields{
		"sweep_id":     sweepID,
		"combinations": len(sets),
		"workers":      g.cfg.Workers,
		"objective":    g.cfg.Objective.Metric,
	}).Info("Starting grid search")

	candidates := evaluateAll(ctx, eval, sets, g.cfg, g.logger)
	result := rank(candidates, g.cfg)

	logger.NewRunLogger(g.logger).LogOptimizationProgress(
		sweepID, result.Evaluated, result.Failed, len(sets), result.BestScore)
	return result, nil
}

// enumerate expands the Cartesian product in lexicographic axis order, so
// enumeration order is stable across runs.
func (g *GridSearch) enumerate() []models.ParameterSet {
	sets := make([]models.ParameterSet, 0, g.Combinations())
	indices := make([]int, len(g.axes))
	for {
		params := g.base.Clone()
		for i, a := range g.axes {
			params[a.Name] = a.Values[indices[i]]
		}
		sets = append(sets, params)

		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(g.axes[pos].Values) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return sets
		}
	}
}
