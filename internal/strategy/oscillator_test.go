package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/yourusername/candle-forge/internal/models"
)

func windowWithOscillator(prev, curr, price float64) Window {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := []models.Candle{
		{Timestamp: ts, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10},
		{Timestamp: ts.Add(time.Hour), Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10},
	}
	return Window{
		Candles:    candles,
		Oscillator: []float64{prev, curr},
		ATR:        []float64{math.NaN(), math.NaN()},
		TrendMA:    []float64{math.NaN(), math.NaN()},
	}
}

func TestAnalyzeReverseMode(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()

	tests := []struct {
		name string
		prev float64
		curr float64
		want Action
	}{
		{"CrossUpThroughOversold", 25, 32, ActionOpenLong},
		{"CrossDownThroughOverbought", 75, 68, ActionOpenShort},
		{"StillBelowOversold", 20, 25, ActionHold},
		{"StillAboveOverbought", 80, 75, ActionHold},
		{"Neutral", 45, 55, ActionHold},
		{"TouchingThresholdExactly", 25, 30, ActionOpenLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := strat.Analyze(windowWithOscillator(tc.prev, tc.curr, 100), nil, params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sig.Action != tc.want {
				t.Errorf("oscillator %.0f -> %.0f produced %s, want %s", tc.prev, tc.curr, sig.Action, tc.want)
			}
		})
	}
}

func TestAnalyzeFollowMode(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()
	params[ParamEntryMode] = EntryModeFollow

	sig, err := strat.Analyze(windowWithOscillator(20, 25, 100), nil, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != ActionOpenLong {
		t.Errorf("follow mode below oversold produced %s, want OPEN_LONG", sig.Action)
	}

	sig, _ = strat.Analyze(windowWithOscillator(80, 75, 100), nil, params)
	if sig.Action != ActionOpenShort {
		t.Errorf("follow mode above overbought produced %s, want OPEN_SHORT", sig.Action)
	}
}

func TestAnalyzeNaNWarmupHolds(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()

	sig, err := strat.Analyze(windowWithOscillator(math.NaN(), 35, 100), nil, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != ActionHold {
		t.Errorf("NaN oscillator produced %s, want HOLD", sig.Action)
	}
}

func TestAnalyzeTrendFilterBlocksLong(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()
	params[ParamTrendFilter] = 1

	w := windowWithOscillator(25, 32, 100)
	w.TrendMA = []float64{110, 110} // price 100 below the trend MA

	sig, err := strat.Analyze(w, nil, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != ActionHold {
		t.Errorf("long against the trend produced %s, want HOLD", sig.Action)
	}

	w.TrendMA = []float64{90, 90} // price above the trend MA: entry allowed
	sig, _ = strat.Analyze(w, nil, params)
	if sig.Action != ActionOpenLong {
		t.Errorf("long with the trend produced %s, want OPEN_LONG", sig.Action)
	}
}

func TestAnalyzeOpposingSignalClosesPosition(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()

	longPos := models.NewPosition(models.SideLong, time.Now(), 100, 1, 1, 0.05)
	sig, err := strat.Analyze(windowWithOscillator(75, 68, 100), longPos, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Action != ActionCloseLong {
		t.Errorf("short entry condition with a long open produced %s, want CLOSE_LONG", sig.Action)
	}

	shortPos := models.NewPosition(models.SideShort, time.Now(), 100, 1, 1, 0.05)
	sig, _ = strat.Analyze(windowWithOscillator(25, 32, 100), shortPos, params)
	if sig.Action != ActionCloseShort {
		t.Errorf("long entry condition with a short open produced %s, want CLOSE_SHORT", sig.Action)
	}

	// a same-side condition never re-signals while the position is open
	sig, _ = strat.Analyze(windowWithOscillator(25, 32, 100), longPos, params)
	if sig.Action != ActionHold {
		t.Errorf("same-side condition with a position open produced %s, want HOLD", sig.Action)
	}
}

// levelsNear compares computed levels to targets with a float tolerance;
// percentage levels like 100*(1-0.03) do not land exactly on 97.
func levelsNear(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLevelsPercent(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()
	params[ParamTakeProfitPct] = 0.03
	params[ParamStopLossPct] = 0.015

	w := windowWithOscillator(50, 50, 100)

	tp, sl := strat.Levels(models.SideLong, 100, w, params)
	if !levelsNear(tp, 103) || !levelsNear(sl, 98.5) {
		t.Errorf("long levels = (%v, %v), want (103, 98.5)", tp, sl)
	}

	tp, sl = strat.Levels(models.SideShort, 100, w, params)
	if !levelsNear(tp, 97) || !levelsNear(sl, 101.5) {
		t.Errorf("short levels = (%v, %v), want (97, 101.5)", tp, sl)
	}
}

func TestLevelsATR(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()
	params[ParamUseATRLevels] = 1
	params[ParamATRTPMult] = 3
	params[ParamATRSLMult] = 1.5

	w := windowWithOscillator(50, 50, 100)
	w.ATR = []float64{2, 2}

	tp, sl := strat.Levels(models.SideLong, 100, w, params)
	if !levelsNear(tp, 106) || !levelsNear(sl, 97) {
		t.Errorf("ATR long levels = (%v, %v), want (106, 97)", tp, sl)
	}
}

func TestLevelsATRFallback(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()
	params[ParamUseATRLevels] = 1

	// ATR still NaN during warmup falls back to percentage levels
	w := windowWithOscillator(50, 50, 100)
	tp, sl := strat.Levels(models.SideLong, 100, w, params)
	if !levelsNear(tp, 103) || !levelsNear(sl, 98.5) {
		t.Errorf("fallback levels = (%v, %v), want (103, 98.5)", tp, sl)
	}
}

func TestValidateParams(t *testing.T) {
	strat := NewOscillatorStrategy()

	if err := strat.ValidateParams(strat.DefaultParams()); err != nil {
		t.Fatalf("default params rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(models.ParameterSet)
	}{
		{"PeriodTooSmall", func(p models.ParameterSet) { p[ParamOscPeriod] = 1 }},
		{"PeriodTooLarge", func(p models.ParameterSet) { p[ParamOscPeriod] = 500 }},
		{"ThresholdsInverted", func(p models.ParameterSet) { p[ParamOversold] = 70; p[ParamOverbought] = 30 }},
		{"ThresholdOutOfRange", func(p models.ParameterSet) { p[ParamOverbought] = 120 }},
		{"UnknownEntryMode", func(p models.ParameterSet) { p[ParamEntryMode] = 7 }},
		{"NegativeStopLoss", func(p models.ParameterSet) { p[ParamStopLossPct] = -0.01 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := strat.DefaultParams()
			tc.mutate(params)
			if err := strat.ValidateParams(params); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestMinWindow(t *testing.T) {
	strat := NewOscillatorStrategy()
	params := strat.DefaultParams()

	if got := strat.MinWindow(params); got != 28 {
		t.Errorf("MinWindow = %d, want 28 (twice the oscillator period)", got)
	}

	params[ParamTrendFilter] = 1
	params[ParamTrendMAPeriod] = 200
	if got := strat.MinWindow(params); got != 200 {
		t.Errorf("MinWindow with trend filter = %d, want 200", got)
	}
}

func TestWindowAtNeverReadsAhead(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{Timestamp: ts.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	series := Series{
		Candles:    candles,
		Oscillator: []float64{10, 20, 30, 40, 50},
		ATR:        []float64{1, 1, 1, 1, 1},
		TrendMA:    []float64{1, 1, 1, 1, 1},
	}

	w := series.WindowAt(2)
	if len(w.Candles) != 3 {
		t.Fatalf("window at index 2 has %d candles, want 3", len(w.Candles))
	}
	if w.Current().Close != 3 {
		t.Errorf("window current close = %f, want 3", w.Current().Close)
	}
	if w.Oscillator[len(w.Oscillator)-1] != 30 {
		t.Errorf("window current oscillator = %f, want 30", w.Oscillator[len(w.Oscillator)-1])
	}
}
