package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/strategy"
)

// stubStrategy drives the simulator with fixed percentage levels. tpPct and
// slPct of zero disable the respective level.
type stubStrategy struct {
	tpPct float64
	slPct float64
}

func (s stubStrategy) Name() string                                    { return "stub" }
func (s stubStrategy) DefaultParams() models.ParameterSet              { return models.ParameterSet{} }
func (s stubStrategy) ValidateParams(params models.ParameterSet) error { return nil }
func (s stubStrategy) MinWindow(params models.ParameterSet) int        { return 1 }
func (s stubStrategy) Prepare(candles []models.Candle, params models.ParameterSet) (strategy.Series, error) {
	return strategy.Series{Candles: candles}, nil
}
func (s stubStrategy) Analyze(w strategy.Window, position *models.Position, params models.ParameterSet) (strategy.Signal, error) {
	return strategy.Hold, nil
}
func (s stubStrategy) Levels(side models.Side, entry float64, w strategy.Window, params models.ParameterSet) (float64, float64) {
	if s.tpPct == 0 && s.slPct == 0 {
		return 0, 0
	}
	sign := side.Sign()
	return entry * (1 + sign*s.tpPct), entry * (1 - sign*s.slPct)
}

var simStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// stepWindow wraps a single candle as the trailing window the simulator
// sees. The oscillator value feeds the DCA gate: 20 keeps long fills open.
func stepWindow(i int, open, high, low, close, osc float64) strategy.Window {
	c := models.Candle{
		Timestamp: simStart.Add(time.Duration(i) * time.Hour),
		Open:      open, High: high, Low: low, Close: close, Volume: 10,
	}
	return strategy.Window{
		Candles:    []models.Candle{c},
		Oscillator: []float64{osc},
		ATR:        []float64{math.NaN()},
		TrendMA:    []float64{math.NaN()},
	}
}

func openLong() strategy.Signal  { return strategy.Signal{Action: strategy.ActionOpenLong} }
func openShort() strategy.Signal { return strategy.Signal{Action: strategy.ActionOpenShort} }

func TestLongTakeProfit(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0.0005, PositionFraction: 1}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.03, slPct: 0.015}, models.ParameterSet{})

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 50), openLong())
	if sim.Position() == nil {
		t.Fatal("expected an open position after entry signal")
	}
	if sim.Position().Size != 100 {
		t.Errorf("position size = %f, want 100", sim.Position().Size)
	}

	// high 104 reaches the 103 take profit
	sim.Step(stepWindow(1, 100, 104, 99.8, 103.5, 50), strategy.Hold)

	trades := sim.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != models.ExitTakeProfit {
		t.Errorf("exit reason = %s, want take_profit", tr.ExitReason)
	}
	if tr.ExitPrice != 103 {
		t.Errorf("exit price = %f, want the 103 level, not the candle close", tr.ExitPrice)
	}

	// entry fee 100*100*0.0005 = 5, exit fee 103*100*0.0005 = 5.15
	wantFees := 5.0 + 5.15
	if math.Abs(tr.Fees-wantFees) > 1e-9 {
		t.Errorf("fees = %f, want %f", tr.Fees, wantFees)
	}
	wantPnL := (103.0-100.0)*100 - wantFees
	if math.Abs(tr.PnL-wantPnL) > 1e-9 {
		t.Errorf("pnl = %f, want %f", tr.PnL, wantPnL)
	}
}

func TestTakeProfitBeatsStopLossSameCandle(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.03, slPct: 0.015}, models.ParameterSet{})

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 50), openLong())
	// one candle spans both the 103 TP and the 98.5 SL
	sim.Step(stepWindow(1, 100, 104, 98, 101, 50), strategy.Hold)

	trades := sim.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitReason != models.ExitTakeProfit {
		t.Errorf("exit reason = %s, want take_profit to win the priority", trades[0].ExitReason)
	}
}

func TestShortStopLoss(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.03, slPct: 0.015}, models.ParameterSet{})

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 80), openShort())
	// short stop loss sits at 101.5; high 102 crosses it
	sim.Step(stepWindow(1, 100, 102, 99.9, 101, 80), strategy.Hold)

	trades := sim.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != models.ExitStopLoss {
		t.Errorf("exit reason = %s, want stop_loss", tr.ExitReason)
	}
	if tr.ExitPrice != 101.5 {
		t.Errorf("exit price = %f, want 101.5", tr.ExitPrice)
	}
	if tr.PnL >= 0 {
		t.Errorf("short stopped out should lose, pnl = %f", tr.PnL)
	}
}

func TestDCAAveragesEntry(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	params := models.ParameterSet{
		ParamDCAEnabled:  1,
		ParamDCAMaxFills: 2,
		ParamDCAStepPct:  0.01,
		ParamDCASizeMult: 1,
	}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.5, slPct: 0.5}, params)

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 20), openLong())
	p := sim.Position()
	if p == nil {
		t.Fatal("expected an open position")
	}
	if len(p.DCALevels) != 2 {
		t.Fatalf("expected 2 precomputed DCA levels, got %d", len(p.DCALevels))
	}
	if math.Abs(p.DCALevels[0]-99) > 1e-9 {
		t.Errorf("first DCA level = %f, want 99", p.DCALevels[0])
	}

	// low touches the 99 level with the oscillator still stretched
	sim.Step(stepWindow(1, 99.6, 99.8, 98.9, 99.2, 20), strategy.Hold)

	p = sim.Position()
	if len(p.Entries) != 2 {
		t.Fatalf("expected 2 fills after DCA, got %d", len(p.Entries))
	}
	// equal-size fills at 100 and 99 average to 99.5
	if math.Abs(p.AvgEntry-99.5) > 1e-9 {
		t.Errorf("average entry = %f, want 99.5", p.AvgEntry)
	}
	// the remaining forward level re-anchors on the new average
	if len(p.DCALevels) != 1 {
		t.Fatalf("expected 1 remaining DCA level, got %d", len(p.DCALevels))
	}
	if math.Abs(p.DCALevels[0]-99.5*0.99) > 1e-9 {
		t.Errorf("next DCA level = %f, want %f", p.DCALevels[0], 99.5*0.99)
	}
}

func TestDCAMaxFillsRespected(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	params := models.ParameterSet{
		ParamDCAEnabled:  1,
		ParamDCAMaxFills: 1,
		ParamDCAStepPct:  0.01,
		ParamDCASizeMult: 1,
	}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.5, slPct: 0.5}, params)

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 20), openLong())
	sim.Step(stepWindow(1, 99.6, 99.8, 98.9, 99.2, 20), strategy.Hold)
	sim.Step(stepWindow(2, 99, 99.1, 97.5, 98, 20), strategy.Hold)

	if got := len(sim.Position().Entries); got != 2 {
		t.Errorf("expected the base fill plus exactly 1 DCA fill, got %d fills", got)
	}
}

func TestDCABlockedWhenOscillatorRecovered(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	params := models.ParameterSet{
		ParamDCAEnabled:  1,
		ParamDCAMaxFills: 2,
		ParamDCAStepPct:  0.01,
		ParamDCASizeMult: 1,
	}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.5, slPct: 0.5}, params)

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 20), openLong())
	// price crosses the level but the oscillator is back to neutral
	sim.Step(stepWindow(1, 99.6, 99.8, 98.9, 99.2, 55), strategy.Hold)

	if got := len(sim.Position().Entries); got != 1 {
		t.Errorf("expected no DCA fill with a recovered oscillator, got %d fills", got)
	}
}

func TestTrailingStopRatchet(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	params := models.ParameterSet{
		ParamTrailingEnabled:     1,
		ParamTrailingActivatePct: 0.02,
		ParamTrailingCallbackPct: 0.01,
	}
	sim := NewSimulator(cfg, stubStrategy{}, params)

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 50), openLong())

	// high 103 clears the 2% activation; trailing price = 103 * 0.99
	sim.Step(stepWindow(1, 100, 103, 102, 102.5, 50), strategy.Hold)
	p := sim.Position()
	if !p.Trailing.Activated {
		t.Fatal("expected trailing stop activated after a 3% favorable move")
	}
	if math.Abs(p.Trailing.Price-103*0.99) > 1e-9 {
		t.Errorf("trailing price = %f, want %f", p.Trailing.Price, 103*0.99)
	}

	// new high 105 ratchets the watermark and tightens the stop
	sim.Step(stepWindow(2, 103, 105, 104, 104.5, 50), strategy.Hold)
	if math.Abs(p.Trailing.Watermark-105) > 1e-9 {
		t.Errorf("watermark = %f, want 105", p.Trailing.Watermark)
	}
	if math.Abs(p.Trailing.Price-105*0.99) > 1e-9 {
		t.Errorf("trailing price = %f, want %f", p.Trailing.Price, 105*0.99)
	}

	// a lower high never loosens the stop; low 103 crosses 103.95 and exits
	sim.Step(stepWindow(3, 104.5, 104.6, 103, 103.2, 50), strategy.Hold)
	trades := sim.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].ExitReason != models.ExitTrailingStop {
		t.Errorf("exit reason = %s, want trailing_stop", trades[0].ExitReason)
	}
	if math.Abs(trades[0].ExitPrice-105*0.99) > 1e-9 {
		t.Errorf("exit price = %f, want the ratcheted %f", trades[0].ExitPrice, 105*0.99)
	}
}

func TestCloseBlocksEntrySameCandle(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.03, slPct: 0.015}, models.ParameterSet{})

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 50), openLong())
	// stop loss hits and an entry signal arrives on the same candle
	sim.Step(stepWindow(1, 99, 99.5, 98, 98.2, 50), openLong())

	if len(sim.Trades()) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(sim.Trades()))
	}
	if sim.Position() != nil {
		t.Error("entry on the candle that closed a position must be blocked")
	}
}

func TestFinishClosesAtLastClose(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	sim := NewSimulator(cfg, stubStrategy{}, models.ParameterSet{})

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 50), openLong())
	last := stepWindow(1, 100, 102, 100, 101.5, 50).Current()
	sim.Step(strategy.Window{Candles: []models.Candle{last}, Oscillator: []float64{50}, ATR: []float64{math.NaN()}, TrendMA: []float64{math.NaN()}}, strategy.Hold)
	sim.Finish(last)

	trades := sim.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade after Finish, got %d", len(trades))
	}
	if trades[0].ExitReason != models.ExitEndOfData {
		t.Errorf("exit reason = %s, want end_of_data", trades[0].ExitReason)
	}
	if trades[0].ExitPrice != 101.5 {
		t.Errorf("exit price = %f, want the final close 101.5", trades[0].ExitPrice)
	}
	if sim.Position() != nil {
		t.Error("expected no open position after Finish")
	}
	// the final equity point reflects the realized close
	curve := sim.EquityCurve()
	final := curve[len(curve)-1].Value
	if math.Abs(final-(10000+1.5*100)) > 1e-9 {
		t.Errorf("final equity = %f, want %f", final, 10000+1.5*100)
	}
}

func TestOneEquityPointPerCandle(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0.0005, PositionFraction: 0.5}
	sim := NewSimulator(cfg, stubStrategy{tpPct: 0.03, slPct: 0.015}, models.ParameterSet{})

	for i := 0; i < 7; i++ {
		sig := strategy.Hold
		if i == 2 {
			sig = openLong()
		}
		sim.Step(stepWindow(i, 100, 100.6, 99.4, 100, 50), sig)
	}
	if got := len(sim.EquityCurve()); got != 7 {
		t.Errorf("equity curve has %d points, want one per candle (7)", got)
	}
}

func TestDrawdownTracksRunningPeak(t *testing.T) {
	cfg := SimConfig{InitialCapital: 10000, FeeRate: 0, PositionFraction: 1}
	sim := NewSimulator(cfg, stubStrategy{}, models.ParameterSet{})

	sim.Step(stepWindow(0, 100, 100.5, 99.5, 100, 50), openLong())
	sim.Step(stepWindow(1, 100, 106, 100, 105, 50), strategy.Hold) // equity peak
	sim.Step(stepWindow(2, 105, 105, 100, 101, 50), strategy.Hold) // pullback

	curve := sim.EquityCurve()
	if curve[1].Drawdown != 0 {
		t.Errorf("drawdown at the peak = %f, want 0", curve[1].Drawdown)
	}
	peak := curve[1].Value
	want := (peak - curve[2].Value) / peak
	if math.Abs(curve[2].Drawdown-want) > 1e-9 {
		t.Errorf("drawdown after pullback = %f, want %f", curve[2].Drawdown, want)
	}
}
