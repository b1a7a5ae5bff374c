package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/models"
)

// GeneDomain bounds one evolvable parameter. Integer genes are always
// redrawn as whole numbers.
type GeneDomain struct {
	Name    string  `mapstructure:"name"`
	Integer bool    `mapstructure:"integer"`
	Min     float64 `mapstructure:"min"`
	Max     float64 `mapstructure:"max"`
}

// GeneticConfig extends the shared optimizer config with evolution settings
type GeneticConfig struct {
	Config        `mapstructure:",squash"`
	Population    int     `mapstructure:"population"`
	Generations   int     `mapstructure:"generations"`
	TournamentK   int     `mapstructure:"tournament_k"`
	CrossoverRate float64 `mapstructure:"crossover_rate"`
	MutationRate  float64 `mapstructure:"mutation_rate"`
}

func (c GeneticConfig) withDefaults() GeneticConfig {
	c.Config = c.Config.withDefaults()
	if c.Population <= 0 {
		c.Population = 30
	}
	if c.Generations <= 0 {
		c.Generations = 20
	}
	if c.TournamentK <= 0 {
		c.TournamentK = 3
	}
	if c.CrossoverRate < 0 {
		c.CrossoverRate = 0.9
	}
	if c.MutationRate < 0 {
		c.MutationRate = 0.1
	}
	return c
}

// Genetic is a population-based stochastic search: evaluate fitness for
// every individual, preserve the top fifth as elites unchanged, and fill
// the rest via tournament selection, uniform crossover and per-gene
// mutation. Deterministic given a fixed seed.
type Genetic struct {
	cfg     GeneticConfig
	domains []GeneDomain
	base    models.ParameterSet
	logger  *logrus.Logger
	rng     *rand.Rand
}

// NewGenetic creates a genetic optimizer over the gene domains. base
// supplies the fixed parameters every individual inherits.
func NewGenetic(cfg GeneticConfig, domains []GeneDomain, base models.ParameterSet, baseLogger *logrus.Logger) (*Genetic, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("at least one gene domain is required")
	}
	for _, d := range domains {
		if d.Name == "" || d.Min > d.Max {
			return nil, fmt.Errorf("gene domain %q must name a parameter with min <= max", d.Name)
		}
	}
	if baseLogger == nil {
		baseLogger = logrus.New()
	}
	cfg = cfg.withDefaults()
	return &Genetic{
		cfg:     cfg,
		domains: domains,
		base:    base,
		logger:  baseLogger,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run evolves the population for the configured number of generations.
// A cancelled context stops between generations with best-so-far results.
func (g *Genetic) Run(ctx context.Context, eval Evaluator) (Result, error) {
	population := make([]models.ParameterSet, g.cfg.Population)
	for i := range population {
		population[i] = g.randomIndividual()
	}

	all := make([]Candidate, 0, g.cfg.Population*g.cfg.Generations)

	sweepID := uuid.NewString()
	runLog := logger.NewRunLogger(g.logger)
	total := g.cfg.Population * g.cfg.Generations
	evaluated, failed := 0, 0
	var bestSoFar float64
	haveBest := false

	for gen := 0; gen < g.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			break
		}
		candidates := evaluateAll(ctx, eval, population, g.cfg.Config, g.logger)
		for _, c := range candidates {
			c.Index = len(all)
			all = append(all, c)
			if c.Err != nil {
				failed++
			} else {
				evaluated++
			}
		}

		if best, ok := bestOf(candidates, g.cfg.Objective); ok {
			if !haveBest || g.cfg.Objective.Better(best.Score, bestSoFar) {
				bestSoFar = best.Score
				haveBest = true
			}
		}
		g.logger.WithFields(logrus.Fields{"generation": gen, "population": len(population)}).Debug("Generation evaluated")
		runLog.LogOptimizationProgress(sweepID, evaluated, failed, total, bestSoFar)

		if gen < g.cfg.Generations-1 {
			population = g.nextGeneration(candidates)
		}
	}

	result := rank(all, g.cfg.Config)
	g.logger.WithFields(logrus.Fields{
		"sweep_id":   sweepID,
		"evaluated":  result.Evaluated,
		"failed":     result.Failed,
		"best_score": result.BestScore,
	}).Info("Genetic search completed")
	return result, nil
}

// nextGeneration preserves the elite slice unchanged, gene for gene, and
// fills the rest with tournament-selected, recombined, mutated offspring.
func (g *Genetic) nextGeneration(candidates []Candidate) []models.ParameterSet {
	ranked := successesByScore(candidates, g.cfg.Objective)

	next := make([]models.ParameterSet, 0, g.cfg.Population)
	eliteCount := int(math.Ceil(0.2 * float64(g.cfg.Population)))
	for i := 0; i < eliteCount && i < len(ranked); i++ {
		next = append(next, ranked[i].Params.Clone())
	}

	for len(next) < g.cfg.Population {
		if len(ranked) == 0 {
			next = append(next, g.randomIndividual())
			continue
		}
		p1 := g.tournament(ranked)
		p2 := g.tournament(ranked)
		child := g.crossover(p1, p2)
		g.mutate(child)
		next = append(next, child)
	}
	return next
}

// tournament samples k candidates and keeps the best
func (g *Genetic) tournament(ranked []Candidate) models.ParameterSet {
	best := ranked[g.rng.Intn(len(ranked))]
	for i := 1; i < g.cfg.TournamentK; i++ {
		challenger := ranked[g.rng.Intn(len(ranked))]
		if g.cfg.Objective.Better(challenger.Score, best.Score) {
			best = challenger
		}
	}
	return best.Params
}

// crossover flips an independent coin per gene between the two parents
func (g *Genetic) crossover(p1, p2 models.ParameterSet) models.ParameterSet {
	child := p1.Clone()
	if g.rng.Float64() >= g.cfg.CrossoverRate {
		return child
	}
	for _, d := range g.domains {
		if g.rng.Float64() < 0.5 {
			child[d.Name] = p2[d.Name]
		}
	}
	return child
}

// mutate redraws each gene within its domain with the mutation probability
func (g *Genetic) mutate(params models.ParameterSet) {
	for _, d := range g.domains {
		if g.rng.Float64() < g.cfg.MutationRate {
			params[d.Name] = g.draw(d)
		}
	}
}

func (g *Genetic) randomIndividual() models.ParameterSet {
	params := g.base.Clone()
	for _, d := range g.domains {
		params[d.Name] = g.draw(d)
	}
	return params
}

func (g *Genetic) draw(d GeneDomain) float64 {
	v := d.Min + g.rng.Float64()*(d.Max-d.Min)
	if d.Integer {
		v = math.Round(v)
	}
	return v
}

func successesByScore(candidates []Candidate, obj Objective) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Err == nil {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			return ranked[i].Index < ranked[j].Index
		}
		return obj.Better(ranked[i].Score, ranked[j].Score)
	})
	return ranked
}

func bestOf(candidates []Candidate, obj Objective) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.Err != nil {
			continue
		}
		if !found || obj.Better(c.Score, best.Score) {
			best = c
			found = true
		}
	}
	return best, found
}
