// Package strategy defines the signal-generation side of the backtester.
// A strategy is a pure function from a bounded trailing window of candles,
// the current position, and a parameter set to a trading signal. Strategies
// never read past the current candle.
package strategy

import (
	"github.com/yourusername/candle-forge/internal/models"
)

// Action is a trading signal action
type Action string

// Signal actions
const (
	ActionOpenLong   Action = "OPEN_LONG"
	ActionOpenShort  Action = "OPEN_SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
	ActionHold       Action = "HOLD"
)

// Signal is the output of one strategy evaluation
type Signal struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Hold is the no-op signal
var Hold = Signal{Action: ActionHold}

// Series carries the full candle slice plus index-aligned indicator arrays
// precomputed once per run. Indicator values before their warmup index are
// NaN. The slices are shared read-only across workers.
type Series struct {
	Candles    []models.Candle
	Oscillator []float64
	ATR        []float64
	TrendMA    []float64
}

// WindowAt returns the trailing window ending at index i. The window shares
// backing arrays with the series; callers must not mutate it.
func (s Series) WindowAt(i int) Window {
	return Window{
		Candles:    s.Candles[:i+1],
		Oscillator: s.Oscillator[:i+1],
		ATR:        s.ATR[:i+1],
		TrendMA:    s.TrendMA[:i+1],
	}
}

// Window is the bounded trailing view a strategy sees: everything up to and
// including the current candle, nothing beyond it.
type Window struct {
	Candles    []models.Candle
	Oscillator []float64
	ATR        []float64
	TrendMA    []float64
}

// Current returns the candle at the window's end
func (w Window) Current() models.Candle {
	return w.Candles[len(w.Candles)-1]
}

// CurrentATR returns the ATR value at the window's end
func (w Window) CurrentATR() float64 {
	return w.ATR[len(w.ATR)-1]
}

// Strategy is the capability interface every signal engine implements
type Strategy interface {
	Name() string

	// DefaultParams returns a complete, valid parameter set to use as the
	// starting point for overrides and sweeps
	DefaultParams() models.ParameterSet

	// ValidateParams checks domain constraints before any simulation starts
	ValidateParams(params models.ParameterSet) error

	// MinWindow returns the number of candles needed before the first
	// signal can be generated, as a function of the indicator periods used
	MinWindow(params models.ParameterSet) int

	// Prepare precomputes indicator series for the candle slice
	Prepare(candles []models.Candle, params models.ParameterSet) (Series, error)

	// Analyze maps the trailing window, current position and parameters to
	// a signal. position is nil when flat.
	Analyze(w Window, position *models.Position, params models.ParameterSet) (Signal, error)

	// Levels computes take-profit and stop-loss prices around entry
	Levels(side models.Side, entry float64, w Window, params models.ParameterSet) (takeProfit, stopLoss float64)
}

// Registry maps strategy names to constructors; the set is closed
var Registry = map[string]func() Strategy{
	"oscillator": func() Strategy { return NewOscillatorStrategy() },
}

// Resolve returns the strategy registered under name, falling back to the
// oscillator strategy for unknown names.
func Resolve(name string) Strategy {
	if build, ok := Registry[name]; ok {
		return build()
	}
	return NewOscillatorStrategy()
}
