package strategy

import (
	"fmt"
	"math"

	"github.com/yourusername/candle-forge/internal/indicators"
	"github.com/yourusername/candle-forge/internal/models"
)

// Parameter names understood by the oscillator strategy
const (
	ParamOscPeriod     = "osc_period"
	ParamOversold      = "oversold"
	ParamOverbought    = "overbought"
	ParamEntryMode     = "entry_mode" // 0 = reverse, 1 = follow
	ParamTrendFilter   = "trend_filter"
	ParamTrendMAPeriod = "trend_ma_period"
	ParamUseATRLevels  = "use_atr_levels"
	ParamATRPeriod     = "atr_period"
	ParamTakeProfitPct = "take_profit_pct"
	ParamStopLossPct   = "stop_loss_pct"
	ParamATRTPMult     = "atr_tp_mult"
	ParamATRSLMult     = "atr_sl_mult"
)

// Entry modes
const (
	EntryModeReverse = 0
	EntryModeFollow  = 1
)

// OscillatorStrategy trades threshold crossings of an RSI oscillator.
// In "reverse" mode an entry fires when the oscillator crosses back through
// a threshold from beyond it; in "follow" mode it fires while the oscillator
// remains beyond the threshold, optionally gated by a slow-MA trend filter.
type OscillatorStrategy struct{}

// NewOscillatorStrategy creates the oscillator strategy
func NewOscillatorStrategy() *OscillatorStrategy {
	return &OscillatorStrategy{}
}

// Name returns the strategy name
func (s *OscillatorStrategy) Name() string {
	return "oscillator"
}

// DefaultParams returns the canonical oscillator parameter set
func (s *OscillatorStrategy) DefaultParams() models.ParameterSet {
	return models.ParameterSet{
		ParamOscPeriod:     14,
		ParamOversold:      30,
		ParamOverbought:    70,
		ParamEntryMode:     EntryModeReverse,
		ParamTrendFilter:   0,
		ParamTrendMAPeriod: 200,
		ParamUseATRLevels:  0,
		ParamATRPeriod:     14,
		ParamTakeProfitPct: 0.03,
		ParamStopLossPct:   0.015,
		ParamATRTPMult:     3,
		ParamATRSLMult:     1.5,
	}
}

// ValidateParams checks domain constraints for the oscillator strategy
func (s *OscillatorStrategy) ValidateParams(params models.ParameterSet) error {
	oscPeriod := params.GetInt(ParamOscPeriod, 14)
	if oscPeriod < 2 || oscPeriod > 200 {
		return fmt.Errorf("%w: osc_period %d outside [2, 200]", models.ErrInvalidParameters, oscPeriod)
	}
	oversold := params.Get(ParamOversold, 30)
	overbought := params.Get(ParamOverbought, 70)
	if oversold < 0 || overbought > 100 {
		return fmt.Errorf("%w: thresholds must lie within [0, 100]", models.ErrInvalidParameters)
	}
	if oversold >= overbought {
		return fmt.Errorf("%w: oversold %.2f must be below overbought %.2f", models.ErrInvalidParameters, oversold, overbought)
	}
	mode := params.GetInt(ParamEntryMode, EntryModeReverse)
	if mode != EntryModeReverse && mode != EntryModeFollow {
		return fmt.Errorf("%w: entry_mode %d is not reverse (0) or follow (1)", models.ErrInvalidParameters, mode)
	}
	if params.GetBool(ParamTrendFilter, false) {
		maPeriod := params.GetInt(ParamTrendMAPeriod, 50)
		if maPeriod < 2 || maPeriod > 500 {
			return fmt.Errorf("%w: trend_ma_period %d outside [2, 500]", models.ErrInvalidParameters, maPeriod)
		}
	}
	if params.GetBool(ParamUseATRLevels, false) {
		atrPeriod := params.GetInt(ParamATRPeriod, 14)
		if atrPeriod < 2 || atrPeriod > 200 {
			return fmt.Errorf("%w: atr_period %d outside [2, 200]", models.ErrInvalidParameters, atrPeriod)
		}
		if params.Get(ParamATRTPMult, 3) <= 0 || params.Get(ParamATRSLMult, 1.5) <= 0 {
			return fmt.Errorf("%w: ATR level multiples must be positive", models.ErrInvalidParameters)
		}
	} else {
		if params.Get(ParamTakeProfitPct, 0.02) <= 0 {
			return fmt.Errorf("%w: take_profit_pct must be positive", models.ErrInvalidParameters)
		}
		if params.Get(ParamStopLossPct, 0.01) <= 0 {
			return fmt.Errorf("%w: stop_loss_pct must be positive", models.ErrInvalidParameters)
		}
	}
	return nil
}

// MinWindow returns the minimum candle lookback: twice the oscillator period
// or the longest moving-average period in use, whichever is larger.
func (s *OscillatorStrategy) MinWindow(params models.ParameterSet) int {
	min := 2 * params.GetInt(ParamOscPeriod, 14)
	if params.GetBool(ParamTrendFilter, false) {
		if p := params.GetInt(ParamTrendMAPeriod, 50); p > min {
			min = p
		}
	}
	if params.GetBool(ParamUseATRLevels, false) {
		if p := params.GetInt(ParamATRPeriod, 14) + 1; p > min {
			min = p
		}
	}
	return min
}

// Prepare computes the oscillator, ATR and trend-MA series for the run
func (s *OscillatorStrategy) Prepare(candles []models.Candle, params models.ParameterSet) (Series, error) {
	if len(candles) < s.MinWindow(params) {
		return Series{}, fmt.Errorf("%w: %d candles, need at least %d", models.ErrDataUnavailable, len(candles), s.MinWindow(params))
	}
	series := Series{
		Candles:    candles,
		Oscillator: indicators.RSI(candles, params.GetInt(ParamOscPeriod, 14)),
		ATR:        indicators.ATR(candles, params.GetInt(ParamATRPeriod, 14)),
		TrendMA:    indicators.SMA(candles, params.GetInt(ParamTrendMAPeriod, 50)),
	}
	return series, nil
}

// Analyze evaluates the window and emits at most one signal
func (s *OscillatorStrategy) Analyze(w Window, position *models.Position, params models.ParameterSet) (Signal, error) {
	i := len(w.Oscillator) - 1
	if i < 1 {
		return Hold, nil
	}
	curr := w.Oscillator[i]
	prev := w.Oscillator[i-1]
	if math.IsNaN(curr) || math.IsNaN(prev) {
		return Hold, nil
	}

	oversold := params.Get(ParamOversold, 30)
	overbought := params.Get(ParamOverbought, 70)
	mode := params.GetInt(ParamEntryMode, EntryModeReverse)

	longEntry, shortEntry := false, false
	reason := ""
	switch mode {
	case EntryModeFollow:
		longEntry = curr <= oversold
		shortEntry = curr >= overbought
		reason = fmt.Sprintf("oscillator %.2f beyond threshold", curr)
	default: // reverse
		longEntry = prev < oversold && curr >= oversold
		shortEntry = prev > overbought && curr <= overbought
		reason = fmt.Sprintf("oscillator crossed back through threshold (%.2f -> %.2f)", prev, curr)
	}

	if params.GetBool(ParamTrendFilter, false) {
		ma := w.TrendMA[i]
		if math.IsNaN(ma) {
			return Hold, nil
		}
		price := w.Current().Close
		if longEntry && price <= ma {
			longEntry = false
		}
		if shortEntry && price >= ma {
			shortEntry = false
		}
	}

	if position != nil {
		// An opposing entry condition closes the open position; same-side
		// conditions are handled by the simulator's DCA logic, not here.
		if position.Side == models.SideLong && shortEntry {
			return Signal{Action: ActionCloseLong, Reason: "opposing " + reason}, nil
		}
		if position.Side == models.SideShort && longEntry {
			return Signal{Action: ActionCloseShort, Reason: "opposing " + reason}, nil
		}
		return Hold, nil
	}

	if longEntry {
		return Signal{Action: ActionOpenLong, Reason: reason}, nil
	}
	if shortEntry {
		return Signal{Action: ActionOpenShort, Reason: reason}, nil
	}
	return Hold, nil
}

// Levels computes TP/SL either as fixed percentages from entry or as ATR
// multiples around entry.
func (s *OscillatorStrategy) Levels(side models.Side, entry float64, w Window, params models.ParameterSet) (float64, float64) {
	sign := side.Sign()
	if params.GetBool(ParamUseATRLevels, false) {
		atr := w.CurrentATR()
		if math.IsNaN(atr) || atr <= 0 {
			// ATR not warm yet; fall back to percentage levels
			return percentLevels(side, entry, params)
		}
		tp := entry + sign*atr*params.Get(ParamATRTPMult, 3)
		sl := entry - sign*atr*params.Get(ParamATRSLMult, 1.5)
		return tp, sl
	}
	return percentLevels(side, entry, params)
}

func percentLevels(side models.Side, entry float64, params models.ParameterSet) (float64, float64) {
	sign := side.Sign()
	tp := entry * (1 + sign*params.Get(ParamTakeProfitPct, 0.02))
	sl := entry * (1 - sign*params.Get(ParamStopLossPct, 0.01))
	return tp, sl
}

// OscillatorAt reports whether the oscillator at the window's end is still
// beyond the entry threshold for side. The simulator uses this as the
// auxiliary condition gating DCA fills.
func OscillatorAt(w Window, side models.Side, params models.ParameterSet) bool {
	i := len(w.Oscillator) - 1
	if i < 0 || math.IsNaN(w.Oscillator[i]) {
		return false
	}
	if side == models.SideLong {
		return w.Oscillator[i] <= params.Get(ParamOversold, 30)+10
	}
	return w.Oscillator[i] >= params.Get(ParamOverbought, 70)-10
}
