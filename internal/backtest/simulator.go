package backtest

import (
	"math"

	"github.com/yourusername/candle-forge/internal/models"
	"github.com/yourusername/candle-forge/internal/strategy"
)

// SimConfig holds the execution-model settings shared by every run
type SimConfig struct {
	InitialCapital   float64
	FeeRate          float64 // flat rate per fill and per exit, e.g. 0.0005
	PositionFraction float64 // fraction of equity committed per base entry
}

// Simulator is the position/order state machine. It consumes one candle and
// the current signal at a time and appends exactly one equity point per
// processed candle. Each worker owns its own instance; only the candle
// series is shared.
type Simulator struct {
	cfg    SimConfig
	strat  strategy.Strategy
	params models.ParameterSet

	cash     float64
	position *models.Position
	baseSize float64 // size of the initial fill, anchor for DCA sizing
	peak     float64 // running equity peak for drawdown
	trades   []models.Trade
	equity   EquityCurve
}

// NewSimulator creates a simulator for one run
func NewSimulator(cfg SimConfig, strat strategy.Strategy, params models.ParameterSet) *Simulator {
	if cfg.PositionFraction <= 0 || cfg.PositionFraction > 1 {
		cfg.PositionFraction = 1
	}
	return &Simulator{
		cfg:    cfg,
		strat:  strat,
		params: params,
		cash:   cfg.InitialCapital,
		peak:   cfg.InitialCapital,
	}
}

// Trades returns the closed trades so far
func (s *Simulator) Trades() []models.Trade {
	return s.trades
}

// EquityCurve returns the equity points recorded so far
func (s *Simulator) EquityCurve() EquityCurve {
	return s.equity
}

// Position returns the open position, or nil when flat
func (s *Simulator) Position() *models.Position {
	return s.position
}

// Step processes one candle with its signal. Exit checks run first, in
// TP -> SL -> trailing -> opposing-signal priority, and a close on this
// candle blocks any new entry or DCA fill until the next candle.
func (s *Simulator) Step(w strategy.Window, sig strategy.Signal) {
	candle := w.Current()
	closedNow := false

	if s.position != nil {
		closedNow = s.checkExits(candle, sig)
	}

	if !closedNow {
		if s.position != nil {
			s.checkDCA(w, candle)
		} else {
			s.checkEntry(w, candle, sig)
		}
	}

	s.recordEquity(candle)
}

// Finish closes any still-open position at the final candle's close so the
// trade list accounts for the whole run.
func (s *Simulator) Finish(last models.Candle) {
	if s.position == nil {
		return
	}
	s.closePosition(last, last.Close, models.ExitEndOfData)
	// replace the final equity point so it reflects the realized close
	if len(s.equity) > 0 {
		s.equity = s.equity[:len(s.equity)-1]
	}
	s.recordEquity(last)
}

func (s *Simulator) checkExits(candle models.Candle, sig strategy.Signal) bool {
	p := s.position
	sign := p.Side.Sign()

	// Take profit first: the favorable extreme reached the level.
	if p.TakeProfit > 0 && sign*(favorableExtreme(candle, p.Side)-p.TakeProfit) >= 0 {
		s.closePosition(candle, p.TakeProfit, models.ExitTakeProfit)
		return true
	}

	// Stop loss: the adverse extreme crossed the level.
	if p.StopLoss > 0 && sign*(adverseExtreme(candle, p.Side)-p.StopLoss) <= 0 {
		s.closePosition(candle, p.StopLoss, models.ExitStopLoss)
		return true
	}

	// Trailing stop: activate once the favorable move clears the threshold,
	// then ratchet with the best favorable price. The trailing price only
	// tightens, never loosens.
	if s.params.GetBool(ParamTrailingEnabled, false) {
		s.updateTrailing(candle)
		if p.Trailing.Activated && sign*(adverseExtreme(candle, p.Side)-p.Trailing.Price) <= 0 {
			s.closePosition(candle, p.Trailing.Price, models.ExitTrailingStop)
			return true
		}
	}

	// Opposing signal closes at the candle close.
	if (p.Side == models.SideLong && sig.Action == strategy.ActionCloseLong) ||
		(p.Side == models.SideShort && sig.Action == strategy.ActionCloseShort) {
		s.closePosition(candle, candle.Close, models.ExitSignal)
		return true
	}

	return false
}

func (s *Simulator) updateTrailing(candle models.Candle) {
	p := s.position
	sign := p.Side.Sign()
	best := favorableExtreme(candle, p.Side)

	if !p.Trailing.Activated {
		activate := s.params.Get(ParamTrailingActivatePct, 0.01)
		if sign*(best-p.AvgEntry)/p.AvgEntry >= activate {
			p.Trailing.Activated = true
			p.Trailing.Watermark = best
			p.Trailing.Price = trailingPrice(best, p.Side, s.params)
		}
		return
	}

	if sign*(best-p.Trailing.Watermark) > 0 {
		p.Trailing.Watermark = best
	}
	candidate := trailingPrice(p.Trailing.Watermark, p.Side, s.params)
	if sign*(candidate-p.Trailing.Price) > 0 {
		p.Trailing.Price = candidate
	}
}

func (s *Simulator) checkDCA(w strategy.Window, candle models.Candle) {
	if !s.params.GetBool(ParamDCAEnabled, false) {
		return
	}
	p := s.position
	maxFills := s.params.GetInt(ParamDCAMaxFills, 3)
	if len(p.Entries)-1 >= maxFills || len(p.DCALevels) == 0 {
		return
	}

	level := p.DCALevels[0]
	crossed := false
	if p.Side == models.SideLong {
		crossed = candle.Low <= level
	} else {
		crossed = candle.High >= level
	}
	if !crossed || !strategy.OscillatorAt(w, p.Side, s.params) {
		return
	}

	mult := s.params.Get(ParamDCASizeMult, 1)
	size := s.baseSize * math.Pow(mult, float64(len(p.Entries)))
	fee := level * size * s.cfg.FeeRate
	p.AddFill(models.Fill{Timestamp: candle.Timestamp, Price: level, Size: size, Fee: fee})

	// the new average moves every forward level and the TP/SL pair
	p.DCALevels = dcaLevels(p.Side, p.AvgEntry, s.params, maxFills-(len(p.Entries)-1))
	p.TakeProfit, p.StopLoss = s.strat.Levels(p.Side, p.AvgEntry, w, s.params)
}

func (s *Simulator) checkEntry(w strategy.Window, candle models.Candle, sig strategy.Signal) {
	var side models.Side
	switch sig.Action {
	case strategy.ActionOpenLong:
		side = models.SideLong
	case strategy.ActionOpenShort:
		side = models.SideShort
	default:
		return
	}

	leverage := s.params.Get(ParamLeverage, 1)
	price := candle.Close
	size := s.cash * s.cfg.PositionFraction * leverage / price
	if size <= 0 {
		return
	}
	fee := price * size * s.cfg.FeeRate

	s.position = models.NewPosition(side, candle.Timestamp, price, size, leverage, fee)
	s.baseSize = size
	s.position.TakeProfit, s.position.StopLoss = s.strat.Levels(side, price, w, s.params)
	if s.params.GetBool(ParamDCAEnabled, false) {
		s.position.DCALevels = dcaLevels(side, price, s.params, s.params.GetInt(ParamDCAMaxFills, 3))
	}
}

func (s *Simulator) closePosition(candle models.Candle, price float64, reason models.ExitReason) {
	p := s.position
	exitFee := price * p.Size * s.cfg.FeeRate
	totalFees := p.FeesPaid + exitFee
	pnl := p.Side.Sign()*(price-p.AvgEntry)*p.Size - totalFees

	s.cash += pnl
	s.trades = append(s.trades, models.Trade{
		Side:       p.Side,
		EntryTime:  p.OpenedAt,
		ExitTime:   candle.Timestamp,
		EntryPrice: p.AvgEntry,
		ExitPrice:  price,
		Size:       p.Size,
		Leverage:   p.Leverage,
		PnL:        pnl,
		Fees:       totalFees,
		ExitReason: reason,
		DCAFills:   len(p.Entries) - 1,
	})
	p.Status = models.PositionClosed
	s.position = nil
}

func (s *Simulator) recordEquity(candle models.Candle) {
	value := s.cash
	if s.position != nil {
		value += s.position.UnrealizedPnL(candle.Close) - s.position.FeesPaid
	}

	if value > s.peak {
		s.peak = value
	}
	drawdown := 0.0
	if s.peak > 0 && value < s.peak {
		drawdown = (s.peak - value) / s.peak
	}
	s.equity = append(s.equity, EquityPoint{Time: candle.Timestamp, Value: value, Drawdown: drawdown})
}

// dcaLevels precomputes the forward averaging-in levels below (long) or
// above (short) the reference price.
func dcaLevels(side models.Side, ref float64, params models.ParameterSet, count int) []float64 {
	if count <= 0 {
		return nil
	}
	step := params.Get(ParamDCAStepPct, 0.01)
	levels := make([]float64, 0, count)
	for k := 1; k <= count; k++ {
		levels = append(levels, ref*(1-side.Sign()*step*float64(k)))
	}
	return levels
}

func trailingPrice(watermark float64, side models.Side, params models.ParameterSet) float64 {
	callback := params.Get(ParamTrailingCallbackPct, 0.005)
	return watermark * (1 - side.Sign()*callback)
}

func favorableExtreme(c models.Candle, side models.Side) float64 {
	if side == models.SideLong {
		return c.High
	}
	return c.Low
}

func adverseExtreme(c models.Candle, side models.Side) float64 {
	if side == models.SideLong {
		return c.Low
	}
	return c.High
}
