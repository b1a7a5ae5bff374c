// Package config provides configuration management for the Candle Forge application.
package config

import (
	"fmt"
)

// Config represents the complete application configuration
type Config struct {
	App           AppConfig           `mapstructure:"app" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Datasource    DatasourceConfig    `mapstructure:"datasource" validate:"required"`
	Backtest      BacktestConfig      `mapstructure:"backtest" validate:"required"`
	Optimizer     OptimizerConfig     `mapstructure:"optimizer" validate:"required"`
	DataIngestion DataIngestionConfig `mapstructure:"data_ingestion" validate:"required"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Metrics       MetricsConfig       `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// DatasourceConfig represents exchange data API configuration
type DatasourceConfig struct {
	Name                  string  `mapstructure:"name" validate:"required"`
	APIURL                string  `mapstructure:"api_url" validate:"required,url"`
	StreamURL             string  `mapstructure:"stream_url" validate:"required"`
	APIKey                string  `mapstructure:"api_key"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds" validate:"required,gt=0"`
	RetryAttempts         int     `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimitPerSecond    float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst" validate:"required,gt=0"`
	BatchSize             int     `mapstructure:"batch_size" validate:"required,gt=0,lte=1500"`
}

// BacktestConfig represents backtesting configuration
type BacktestConfig struct {
	Symbol           string  `mapstructure:"symbol" validate:"required"`
	Timeframe        string  `mapstructure:"timeframe" validate:"required,timeframe"`
	StartDate        string  `mapstructure:"start_date" validate:"required,dateonly"`
	EndDate          string  `mapstructure:"end_date" validate:"required,dateonly"`
	Strategy         string  `mapstructure:"strategy" validate:"required"`
	InitialCapital   float64 `mapstructure:"initial_capital" validate:"required,gt=0"`
	FeeRate          float64 `mapstructure:"fee_rate" validate:"gte=0,lte=0.05"`
	PositionFraction float64 `mapstructure:"position_fraction" validate:"required,gt=0,lte=1"`
	OutputPath       string  `mapstructure:"output_path"`
}

// OptimizerConfig represents parameter sweep configuration
type OptimizerConfig struct {
	Workers           int     `mapstructure:"workers" validate:"gte=0"`
	RunTimeoutSeconds int     `mapstructure:"run_timeout_seconds" validate:"required,gt=0"`
	TopN              int     `mapstructure:"top_n" validate:"required,gt=0"`
	Objective         string  `mapstructure:"objective" validate:"required"`
	Maximize          bool    `mapstructure:"maximize"`
	Seed              int64   `mapstructure:"seed"`
	Population        int     `mapstructure:"population" validate:"omitempty,gt=1"`
	Generations       int     `mapstructure:"generations" validate:"omitempty,gt=0"`
	TournamentK       int     `mapstructure:"tournament_k" validate:"omitempty,gt=0"`
	CrossoverRate     float64 `mapstructure:"crossover_rate" validate:"gte=0,lte=1"`
	MutationRate      float64 `mapstructure:"mutation_rate" validate:"gte=0,lte=1"`
}

// DataIngestionConfig represents data ingestion configuration
type DataIngestionConfig struct {
	Symbols       []string       `mapstructure:"symbols" validate:"required,min=1"`
	Timeframes    []string       `mapstructure:"timeframes" validate:"required,min=1,dive,timeframe"`
	Schedule      ScheduleConfig `mapstructure:"schedule" validate:"required"`
	StreamEnabled bool           `mapstructure:"stream_enabled"`
}

// ScheduleConfig represents data ingestion scheduling
type ScheduleConfig struct {
	HistoricalSync string `mapstructure:"historical_sync" validate:"required"`
	BackfillDays   int    `mapstructure:"backfill_days" validate:"required,gt=0"`
}

// CacheConfig represents in-memory candle cache configuration
type CacheConfig struct {
	TTLSeconds             int `mapstructure:"ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
