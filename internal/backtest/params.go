package backtest

import (
	"fmt"

	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/strategy"
)

// Simulator-level parameter names. Strategy-level names live in the
// strategy package.
const (
	ParamLeverage            = "leverage"
	ParamDCAEnabled          = "dca_enabled"
	ParamDCAMaxFills         = "dca_max_fills"
	ParamDCAStepPct          = "dca_step_pct"
	ParamDCASizeMult         = "dca_size_mult"
	ParamTrailingEnabled     = "trailing_enabled"
	ParamTrailingActivatePct = "trailing_activate_pct"
	ParamTrailingCallbackPct = "trailing_callback_pct"
)

// MaxLeverage bounds the leverage parameter domain
const MaxLeverage = 125.0

// DefaultParams returns the strategy's defaults merged with simulator
// defaults: averaging-in and trailing off, leverage 1.
func DefaultParams(strat strategy.Strategy) models.ParameterSet {
	params := strat.DefaultParams()
	params[ParamLeverage] = 1
	params[ParamDCAEnabled] = 0
	params[ParamDCAMaxFills] = 3
	params[ParamDCAStepPct] = 0.01
	params[ParamDCASizeMult] = 1
	params[ParamTrailingEnabled] = 0
	params[ParamTrailingActivatePct] = 0.02
	params[ParamTrailingCallbackPct] = 0.01
	return params
}

// ValidateParams re-validates the full parameter set against domain
// constraints. The core never trusts the caller; this runs before any
// simulation starts and fails with ErrInvalidParameters.
func ValidateParams(strat strategy.Strategy, params models.ParameterSet) error {
	lev := params.Get(ParamLeverage, 1)
	if lev < 1 || lev > MaxLeverage {
		return fmt.Errorf("%w: leverage %.2f outside [1, %.0f]", models.ErrInvalidParameters, lev, MaxLeverage)
	}
	if params.GetBool(ParamDCAEnabled, false) {
		fills := params.GetInt(ParamDCAMaxFills, 3)
		if fills < 1 || fills > 10 {
			return fmt.Errorf("%w: dca_max_fills %d outside [1, 10]", models.ErrInvalidParameters, fills)
		}
		if params.Get(ParamDCAStepPct, 0.01) <= 0 {
			return fmt.Errorf("%w: dca_step_pct must be positive", models.ErrInvalidParameters)
		}
		if params.Get(ParamDCASizeMult, 1) < 1 {
			return fmt.Errorf("%w: dca_size_mult must be at least 1", models.ErrInvalidParameters)
		}
	}
	if params.GetBool(ParamTrailingEnabled, false) {
		if params.Get(ParamTrailingActivatePct, 0.01) <= 0 {
			return fmt.Errorf("%w: trailing_activate_pct must be positive", models.ErrInvalidParameters)
		}
		cb := params.Get(ParamTrailingCallbackPct, 0.005)
		if cb <= 0 || cb >= 1 {
			return fmt.Errorf("%w: trailing_callback_pct %.4f outside (0, 1)", models.ErrInvalidParameters, cb)
		}
	}
	return strat.ValidateParams(params)
}
