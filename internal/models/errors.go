package models

import "errors"

// Custom errors
var (
	ErrDataUnavailable   = errors.New("insufficient candle data for requested window")
	ErrInvalidParameters = errors.New("invalid strategy parameters")
	ErrSimulationFailure = errors.New("simulation failed")
	ErrEvaluationTimeout = errors.New("candidate evaluation timed out")
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTimeframe  = errors.New("unsupported timeframe")
)
