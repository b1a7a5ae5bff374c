package models

import "time"

// ExitReason names what closed a trade
type ExitReason string

// Exit reasons, in the priority order they are evaluated
const (
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitSignal       ExitReason = "signal"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Trade is the immutable snapshot of a fully closed position
type Trade struct {
	Side       Side       `json:"side"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Size       float64    `json:"size"`
	Leverage   float64    `json:"leverage"`
	PnL        float64    `json:"pnl"`
	Fees       float64    `json:"fees"`
	ExitReason ExitReason `json:"exit_reason"`
	DCAFills   int        `json:"dca_fills"`
}

// Duration returns how long the trade was open
func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
