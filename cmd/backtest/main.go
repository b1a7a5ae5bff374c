// Package main provides the entry point for the backtesting CLI tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/candle-forge/internal/backtest"
	"github.com/yourusername/candle-forge/internal/candles"
	"github.com/yourusername/candle-forge/internal/config"
	"github.com/yourusername/candle-forge/internal/database"
	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/repository"
	"github.com/yourusername/candle-forge/internal/strategy"
)

func main() {
	var (
		configPath   = flag.String("config", "config/config.yaml", "Path to config file")
		strategyName = flag.String("strategy", "", "Override strategy name")
		symbol       = flag.String("symbol", "", "Override trading symbol")
		timeframe    = flag.String("timeframe", "", "Override candle timeframe")
		startDate    = flag.String("start-date", "", "Override start date (YYYY-MM-DD)")
		endDate      = flag.String("end-date", "", "Override end date (YYYY-MM-DD)")
		paramsJSON   = flag.String("params", "", "JSON object of parameter overrides")
		output       = flag.String("output", "", "Output directory for result files")
		save         = flag.Bool("save", false, "Persist the result to the database")
	)
	flag.Parse()

	ctx := context.Background()

	cfg := loadConfigWithSecrets(*configPath)
	log := logger.NewLogger(cfg.App.LogLevel)
	metrics.InitRegistry()

	runCfg := buildRunConfig(cfg, log, *symbol, *timeframe, *startDate, *endDate, *strategyName)
	strat := strategy.Resolve(runCfg.Strategy)
	params := buildParams(strat, *paramsJSON, log)

	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	candleRepo := repository.NewPostgresCandleRepository(db)
	cache := candles.NewSeriesCache(
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		time.Duration(cfg.Cache.CleanupIntervalSeconds)*time.Second,
	)
	provider := candles.NewProvider(candleRepo, nil, cache, log)

	runner, err := backtest.NewRunner(runCfg, provider, strat, log)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	log.WithFields(logrus.Fields{
		"symbol":    runCfg.Symbol,
		"timeframe": runCfg.Timeframe,
		"strategy":  strat.Name(),
	}).Info("Starting backtest")

	result, err := runner.Run(ctx, params)
	if err != nil {
		metrics.RecordBacktestRun("failure")
		log.Fatalf("Backtest failed: %v", err)
	}
	metrics.RecordBacktestRun("success")

	fmt.Println(backtest.GenerateConsoleReport(result))

	outDir := *output
	if outDir == "" {
		outDir = cfg.Backtest.OutputPath
	}
	if outDir != "" {
		writeArtifacts(result, outDir, log)
	}

	if *save {
		persistResult(ctx, db, result, runCfg.InitialCapital, log)
	}
}

func loadConfigWithSecrets(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			logrus.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			logrus.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func buildRunConfig(cfg *config.Config, log *logrus.Logger, symbol, timeframe, startOverride, endOverride, strategyOverride string) backtest.RunConfig {
	section := cfg.Backtest
	if symbol != "" {
		section.Symbol = symbol
	}
	if timeframe != "" {
		section.Timeframe = timeframe
	}
	if startOverride != "" {
		section.StartDate = startOverride
	}
	if endOverride != "" {
		section.EndDate = endOverride
	}
	if strategyOverride != "" {
		section.Strategy = strategyOverride
	}

	runCfg, err := backtest.FromConfig(&section)
	if err != nil {
		log.Fatalf("Invalid backtest config: %v", err)
	}
	return runCfg
}

func buildParams(strat strategy.Strategy, overridesJSON string, log *logrus.Logger) models.ParameterSet {
	params := backtest.DefaultParams(strat)
	if overridesJSON != "" {
		overrides := map[string]float64{}
		if err := json.Unmarshal([]byte(overridesJSON), &overrides); err != nil {
			log.Fatalf("Invalid -params JSON: %v", err)
		}
		for k, v := range overrides {
			params[k] = v
		}
	}
	if err := backtest.ValidateParams(strat, params); err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}
	return params
}

func writeArtifacts(result *backtest.Result, outDir string, log *logrus.Logger) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	jsonPath := filepath.Join(outDir, fmt.Sprintf("backtest_%s.json", result.RunID))
	if err := backtest.ExportToJSON(result, jsonPath); err != nil {
		log.Fatalf("Failed to export result JSON: %v", err)
	}

	csvPath := filepath.Join(outDir, fmt.Sprintf("equity_%s.csv", result.RunID))
	if err := backtest.ExportEquityCSV(result, csvPath); err != nil {
		log.Fatalf("Failed to export equity CSV: %v", err)
	}

	log.WithFields(logrus.Fields{"json": jsonPath, "csv": csvPath}).Info("Result artifacts written")
}

func persistResult(ctx context.Context, db *database.DB, result *backtest.Result, initialCapital float64, log *logrus.Logger) {
	record, err := result.ToRecord(initialCapital)
	if err != nil {
		log.Fatalf("Failed to build record: %v", err)
	}

	repo := repository.NewPostgresBacktestResultRepository(db)
	if err := repo.Save(ctx, record); err != nil {
		log.Fatalf("Failed to persist result: %v", err)
	}
	log.WithField("run_id", record.ID).Info("Result persisted")
}
