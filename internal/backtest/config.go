package backtest

import (
	"fmt"
	"time"

	"github.com/yourusername/candle-forge/internal/config"
	"github.com/yourusername/candle-forge/internal/models"
)

// RunConfig fully describes one backtest pass
type RunConfig struct {
	Symbol           string
	Timeframe        models.Timeframe
	StartDate        time.Time
	EndDate          time.Time
	Strategy         string
	InitialCapital   float64
	FeeRate          float64
	PositionFraction float64
}

// FromConfig converts the app-level backtest section into a RunConfig
func FromConfig(cfg *config.BacktestConfig) (RunConfig, error) {
	if cfg == nil {
		return RunConfig{}, fmt.Errorf("backtest config is required")
	}
	start, err := time.Parse("2006-01-02", cfg.StartDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", cfg.EndDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("invalid end date: %w", err)
	}

	rc := RunConfig{
		Symbol:           cfg.Symbol,
		Timeframe:        models.Timeframe(cfg.Timeframe),
		StartDate:        start,
		EndDate:          end,
		Strategy:         cfg.Strategy,
		InitialCapital:   cfg.InitialCapital,
		FeeRate:          cfg.FeeRate,
		PositionFraction: cfg.PositionFraction,
	}
	return rc, rc.Validate()
}

// Validate validates the run configuration
func (c RunConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if _, err := c.Timeframe.Duration(); err != nil {
		return err
	}
	if !c.StartDate.Before(c.EndDate) {
		return fmt.Errorf("start date must be before end date")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive")
	}
	if c.FeeRate < 0 || c.FeeRate > 0.05 {
		return fmt.Errorf("fee rate must be between 0 and 0.05")
	}
	if c.PositionFraction < 0 || c.PositionFraction > 1 {
		return fmt.Errorf("position fraction must be between 0 and 1")
	}
	return nil
}

// ElapsedDays returns the span of the run in days
func (c RunConfig) ElapsedDays() float64 {
	return c.EndDate.Sub(c.StartDate).Hours() / 24
}

// SimConfig extracts the simulator settings
func (c RunConfig) SimConfig() SimConfig {
	return SimConfig{
		InitialCapital:   c.InitialCapital,
		FeeRate:          c.FeeRate,
		PositionFraction: c.PositionFraction,
	}
}
