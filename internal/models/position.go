package models

import (
	"time"
)

// Side is the direction of a position
type Side string

// Position sides
const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for long and -1 for short
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// PositionStatus tracks the lifecycle of a position
type PositionStatus string

// Position statuses
const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Fill is one individual entry into a position
type Fill struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Fee       float64   `json:"fee"`
}

// TrailingState holds the trailing-stop sub-state of a position. Once
// activated, Price only tightens in the position's favor.
type TrailingState struct {
	Activated bool    `json:"activated"`
	Watermark float64 `json:"watermark"`
	Price     float64 `json:"price"`
}

// Position is the single mutable position per simulated instrument.
// Averaging-in mutates the same position rather than creating a second one.
type Position struct {
	Side       Side           `json:"side"`
	AvgEntry   float64        `json:"avg_entry"`
	Size       float64        `json:"size"`
	Leverage   float64        `json:"leverage"`
	Entries    []Fill         `json:"entries"`
	StopLoss   float64        `json:"stop_loss"`
	TakeProfit float64        `json:"take_profit"`
	Trailing   TrailingState  `json:"trailing"`
	DCALevels  []float64      `json:"dca_levels"`
	FeesPaid   float64        `json:"fees_paid"`
	OpenedAt   time.Time      `json:"opened_at"`
	Status     PositionStatus `json:"status"`
}

// NewPosition opens a position with its first fill
func NewPosition(side Side, ts time.Time, price, size, leverage, fee float64) *Position {
	p := &Position{
		Side:     side,
		Leverage: leverage,
		OpenedAt: ts,
		Status:   PositionOpen,
	}
	p.AddFill(Fill{Timestamp: ts, Price: price, Size: size, Fee: fee})
	return p
}

// AddFill records an entry and recomputes the size-weighted average entry
// price across all fills so far.
func (p *Position) AddFill(fill Fill) {
	notional := p.AvgEntry*p.Size + fill.Price*fill.Size
	p.Size += fill.Size
	if p.Size > 0 {
		p.AvgEntry = notional / p.Size
	}
	p.FeesPaid += fill.Fee
	p.Entries = append(p.Entries, fill)
}

// UnrealizedPnL returns the mark-to-market PnL at price, before fees
func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.Side.Sign() * (price - p.AvgEntry) * p.Size
}

// MovePct returns the favorable price move from the average entry, signed so
// positive is in the position's favor for either side.
func (p *Position) MovePct(price float64) float64 {
	if p.AvgEntry == 0 {
		return 0
	}
	return p.Side.Sign() * (price - p.AvgEntry) / p.AvgEntry
}
