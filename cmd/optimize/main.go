// Package main provides the entry point for parameter optimization sweeps.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/candle-forge/internal/backtest"
	"github.com/yourusername/candle-forge/internal/candles"
	"github.com/yourusername/candle-forge/internal/config"
	"github.com/yourusername/candle-forge/internal/database"
	"github.com/yourusername/candle-forge/internal/health"
	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/optimizer"
	"github.com/yourusername/candle-forge/internal/repository"
	"github.com/yourusername/candle-forge/internal/strategy"
)

// Build information - set via ldflags
var (
	Version = "dev"
)

var (
	configFile string
	axesJSON   string
	genesJSON  string
	paramsJSON string

	appLogger *logrus.Logger
	cfg       *config.Config
	db        *database.DB
	provider  *candles.Provider
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&paramsJSON, "params", "", "JSON object of base parameter overrides")

	gridCmd.Flags().StringVar(&axesJSON, "axes", "", `Grid axes as JSON, e.g. {"osc_period":[7,14,21]}`)
	gridCmd.MarkFlagRequired("axes")

	geneticCmd.Flags().StringVar(&genesJSON, "genes", "", `Gene domains as JSON, e.g. [{"name":"osc_period","integer":true,"min":5,"max":30}]`)
	geneticCmd.MarkFlagRequired("genes")

	walkForwardCmd.Flags().StringVar(&axesJSON, "axes", "", "Grid axes as JSON for the training windows")
	walkForwardCmd.MarkFlagRequired("axes")
	walkForwardCmd.Flags().IntVar(&wfTrainDays, "train-days", 90, "Training window length in days")
	walkForwardCmd.Flags().IntVar(&wfTestDays, "test-days", 30, "Test window length in days")
	walkForwardCmd.Flags().IntVar(&wfStepDays, "step-days", 30, "Step size between windows in days")
	walkForwardCmd.Flags().IntVar(&wfMinTrades, "min-trades", 0, "Minimum trades for a training result to qualify")

	rootCmd.AddCommand(gridCmd, geneticCmd, walkForwardCmd)
}

var (
	wfTrainDays int
	wfTestDays  int
	wfStepDays  int
	wfMinTrades int
)

var rootCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search strategy parameter spaces",
	Long:  `Runs grid-search, genetic, or walk-forward parameter sweeps against stored candle data.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			return err
		}
	}
	return config.Validate(cfg)
}

func setupDependencies(ctx context.Context) error {
	appLogger = logger.NewLogger(cfg.App.LogLevel)
	metrics.InitRegistry()

	var err error
	db, err = database.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	candleRepo := repository.NewPostgresCandleRepository(db)
	cache := candles.NewSeriesCache(
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		time.Duration(cfg.Cache.CleanupIntervalSeconds)*time.Second,
	)
	provider = candles.NewProvider(candleRepo, nil, cache, appLogger)

	if cfg.Metrics.Enabled {
		healthSrv := health.NewServer(health.Config{
			ServiceName: "optimize",
			Version:     Version,
			Port:        fmt.Sprintf("%d", cfg.Metrics.Port),
			Logger:      appLogger,
			DB:          db,
		})
		if err := healthSrv.Start(ctx); err != nil {
			return err
		}
		healthSrv.SetReady(true)
	}

	return nil
}

func buildSweep() (backtest.RunConfig, strategy.Strategy, models.ParameterSet, optimizer.Config, error) {
	runCfg, err := backtest.FromConfig(&cfg.Backtest)
	if err != nil {
		return backtest.RunConfig{}, nil, nil, optimizer.Config{}, err
	}

	strat := strategy.Resolve(runCfg.Strategy)
	base := backtest.DefaultParams(strat)
	if paramsJSON != "" {
		overrides := map[string]float64{}
		if err := json.Unmarshal([]byte(paramsJSON), &overrides); err != nil {
			return backtest.RunConfig{}, nil, nil, optimizer.Config{}, fmt.Errorf("invalid --params JSON: %w", err)
		}
		for k, v := range overrides {
			base[k] = v
		}
	}

	optCfg := optimizer.Config{
		Workers:    cfg.Optimizer.Workers,
		RunTimeout: time.Duration(cfg.Optimizer.RunTimeoutSeconds) * time.Second,
		TopN:       cfg.Optimizer.TopN,
		Objective:  optimizer.Objective{Metric: cfg.Optimizer.Objective, Maximize: cfg.Optimizer.Maximize},
		Seed:       cfg.Optimizer.Seed,
	}
	return runCfg, strat, base, optCfg, nil
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Exhaustive grid search over axis value lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		runCfg, strat, base, optCfg, err := buildSweep()
		if err != nil {
			return err
		}

		axes, err := decodeAxes(axesJSON)
		if err != nil {
			return err
		}

		search, err := optimizer.NewGridSearch(optCfg, axes, base, appLogger)
		if err != nil {
			return err
		}

		eval, err := newEvaluator(cmd.Context(), runCfg, strat)
		if err != nil {
			return err
		}

		appLogger.WithField("combinations", search.Combinations()).Info("Starting grid search")
		result, err := search.Run(cmd.Context(), eval)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var geneticCmd = &cobra.Command{
	Use:   "genetic",
	Short: "Genetic search over bounded gene domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		runCfg, strat, base, optCfg, err := buildSweep()
		if err != nil {
			return err
		}

		var domains []optimizer.GeneDomain
		if err := json.Unmarshal([]byte(genesJSON), &domains); err != nil {
			return fmt.Errorf("invalid --genes JSON: %w", err)
		}

		gaCfg := optimizer.GeneticConfig{
			Config:        optCfg,
			Population:    cfg.Optimizer.Population,
			Generations:   cfg.Optimizer.Generations,
			TournamentK:   cfg.Optimizer.TournamentK,
			CrossoverRate: cfg.Optimizer.CrossoverRate,
			MutationRate:  cfg.Optimizer.MutationRate,
		}

		ga, err := optimizer.NewGenetic(gaCfg, domains, base, appLogger)
		if err != nil {
			return err
		}

		eval, err := newEvaluator(cmd.Context(), runCfg, strat)
		if err != nil {
			return err
		}

		appLogger.WithFields(logrus.Fields{
			"population":  cfg.Optimizer.Population,
			"generations": cfg.Optimizer.Generations,
		}).Info("Starting genetic search")
		result, err := ga.Run(cmd.Context(), eval)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var walkForwardCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Walk-forward validation with per-window grid search",
	RunE: func(cmd *cobra.Command, args []string) error {
		runCfg, strat, base, optCfg, err := buildSweep()
		if err != nil {
			return err
		}

		axes, err := decodeAxes(axesJSON)
		if err != nil {
			return err
		}

		wfCfg := optimizer.WalkForwardConfig{
			TrainingWindowDays: wfTrainDays,
			TestWindowDays:     wfTestDays,
			StepSizeDays:       wfStepDays,
			MinTradesPerWindow: wfMinTrades,
		}

		result, err := optimizer.RunWalkForward(cmd.Context(), provider, runCfg, strat, optCfg, axes, base, wfCfg, appLogger)
		if err != nil {
			return err
		}
		fmt.Println(result.ToJSON())
		return nil
	},
}

// decodeAxes parses the --axes JSON into grid axes sorted by name. JSON
// objects decode into maps with no stable order, so sorting keeps the
// Cartesian enumeration identical across invocations.
func decodeAxes(raw string) ([]optimizer.GridAxis, error) {
	axesMap := map[string][]float64{}
	if err := json.Unmarshal([]byte(raw), &axesMap); err != nil {
		return nil, fmt.Errorf("invalid --axes JSON: %w", err)
	}
	names := make([]string, 0, len(axesMap))
	for name := range axesMap {
		names = append(names, name)
	}
	sort.Strings(names)
	axes := make([]optimizer.GridAxis, 0, len(names))
	for _, name := range names {
		axes = append(axes, optimizer.GridAxis{Name: name, Values: axesMap[name]})
	}
	return axes, nil
}

func newEvaluator(ctx context.Context, runCfg backtest.RunConfig, strat strategy.Strategy) (optimizer.Evaluator, error) {
	runner, err := backtest.NewRunner(runCfg, provider, strat, appLogger)
	if err != nil {
		return nil, err
	}
	return optimizer.NewRunnerEvaluator(ctx, runner, provider)
}

func printResult(result optimizer.Result) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		appLogger.Fatalf("Failed to render result: %v", err)
	}
	fmt.Println(string(out))
}
