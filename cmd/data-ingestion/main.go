// Package main provides the entry point for the candle ingestion service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/candle-forge/internal/config"
	"github.com/yourusername/candle-forge/internal/database"
	"github.com/yourusername/candle-forge/internal/datasource"
	"github.com/yourusername/candle-forge/internal/health"
	"github.com/yourusername/candle-forge/internal/logger"
	"github.com/yourusername/candle-forge/internal/metrics"
	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/repository"
	"github.com/yourusername/candle-forge/internal/scheduler"
	"github.com/yourusername/candle-forge/internal/service"
)

// Build information - set via ldflags
var (
	Version = "dev"
)

var (
	configFile string
	startDate  string
	endDate    string

	appLogger    *logrus.Logger
	cfg          *config.Config
	db           *database.DB
	httpClient   *datasource.RateLimitedHTTPClient
	ingestionSvc *service.IngestionService
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	backfillCmd.Flags().StringVar(&startDate, "start-date", "", "Override start date (YYYY-MM-DD); defaults to the configured backfill window")
	backfillCmd.Flags().StringVar(&endDate, "end-date", "", "Override end date (YYYY-MM-DD); defaults to now")

	rootCmd.AddCommand(backfillCmd, syncCmd, streamCmd)
}

var rootCmd = &cobra.Command{
	Use:   "data-ingestion",
	Short: "Ingest candle data into the store",
	Long:  `Fetches historical candles over REST, runs scheduled incremental syncs, and stores closed bars from the live kline stream.`,
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
		if httpClient != nil {
			httpClient.Close()
		}
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

	httpLogger := log.New(os.Stdout, "datasource-http: ", log.LstdFlags)
	httpClient = datasource.NewRateLimitedHTTPClient(datasource.HTTPClientConfig{
		Timeout:           time.Duration(cfg.Datasource.RequestTimeoutSeconds) * time.Second,
		MaxRetries:        cfg.Datasource.RetryAttempts,
		RetryWaitMin:      1 * time.Second,
		RetryWaitMax:      30 * time.Second,
		RateLimit:         cfg.Datasource.RateLimitPerSecond,
		RateBurst:         cfg.Datasource.RateLimitBurst,
		CircuitBreakerMax: 5,
	}, httpLogger)

	sourceLogger := log.New(os.Stdout, "datasource: ", log.LstdFlags)
	binance := datasource.NewBinanceClient(httpClient, cfg.Datasource.APIURL, cfg.Datasource.APIKey, cfg.Datasource.BatchSize, sourceLogger)

	svcLogger := log.New(os.Stdout, "ingestion: ", log.LstdFlags)
	ingestionSvc = service.NewIngestionService(
		[]datasource.KlineSource{binance},
		repository.NewPostgresCandleRepository(db),
		svcLogger,
		cfg.Datasource.BatchSize,
	)

	if cfg.Metrics.Enabled {
		healthSrv := health.NewServer(health.Config{
			ServiceName: "data-ingestion",
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

func parseTimeframes(names []string) []models.Timeframe {
	timeframes := make([]models.Timeframe, 0, len(names))
	for _, name := range names {
		timeframes = append(timeframes, models.Timeframe(name))
	}
	return timeframes
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch historical candles for the configured symbols and timeframes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		end := time.Now().UTC()
		start := end.AddDate(0, 0, -cfg.DataIngestion.Schedule.BackfillDays)

		var err error
		if startDate != "" {
			if start, err = time.Parse("2006-01-02", startDate); err != nil {
				return fmt.Errorf("invalid --start-date: %w", err)
			}
		}
		if endDate != "" {
			if end, err = time.Parse("2006-01-02", endDate); err != nil {
				return fmt.Errorf("invalid --end-date: %w", err)
			}
		}

		for _, symbol := range cfg.DataIngestion.Symbols {
			for _, timeframe := range parseTimeframes(cfg.DataIngestion.Timeframes) {
				stats, err := ingestionSvc.IngestHistorical(ctx, cfg.Datasource.Name, symbol, timeframe, start, end)
				if err != nil {
					appLogger.WithError(err).WithFields(logrus.Fields{
						"symbol":    symbol,
						"timeframe": timeframe,
					}).Error("Backfill failed")
					continue
				}
				appLogger.WithFields(logrus.Fields{
					"symbol":    symbol,
					"timeframe": timeframe,
					"stats":     stats.String(),
				}).Info("Backfill complete")
			}
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the scheduled incremental sync until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		schedLogger := log.New(os.Stdout, "scheduler: ", log.LstdFlags)
		sched := scheduler.NewScheduler(ingestionSvc, schedLogger)

		err := sched.ScheduleHistoricalSync(
			cfg.DataIngestion.Schedule.HistoricalSync,
			cfg.Datasource.Name,
			cfg.DataIngestion.Symbols,
			parseTimeframes(cfg.DataIngestion.Timeframes),
			cfg.DataIngestion.Schedule.BackfillDays,
		)
		if err != nil {
			return fmt.Errorf("failed to schedule sync: %w", err)
		}

		if err := sched.Start(); err != nil {
			return err
		}
		appLogger.WithField("next_run", sched.GetNextRun()).Info("Sync scheduler started")

		<-cmd.Context().Done()
		appLogger.Info("Shutdown signal received, stopping scheduler")
		return sched.Stop()
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Store closed bars from the live kline stream until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.DataIngestion.StreamEnabled {
			return fmt.Errorf("streaming is disabled in configuration")
		}

		ctx := cmd.Context()
		streamLogger := log.New(os.Stdout, "stream: ", log.LstdFlags)
		stream := datasource.NewStreamClient(cfg.Datasource.StreamURL, streamLogger)

		stream.AddHandler(func(symbol string, timeframe models.Timeframe, candle models.Candle) error {
			return ingestionSvc.StoreStreamed(ctx, cfg.Datasource.Name, symbol, timeframe, candle)
		})

		timeframes := parseTimeframes(cfg.DataIngestion.Timeframes)
		if err := stream.Connect(ctx, cfg.DataIngestion.Symbols, timeframes); err != nil {
			return fmt.Errorf("failed to connect to stream: %w", err)
		}

		appLogger.WithFields(logrus.Fields{
			"symbols":    cfg.DataIngestion.Symbols,
			"timeframes": cfg.DataIngestion.Timeframes,
		}).Info("Stream connected, storing closed bars")

		<-ctx.Done()
		appLogger.Info("Shutdown signal received, closing stream")
		return stream.Close()
	},
}
