package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundData mirrors a latestRoundData-style feed answer. An Answer that is
// zero or negative means the feed has no usable price for that round.
type RoundData struct {
	RoundID         uint64
	Answer          decimal.Decimal
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// Usable reports whether the round carries a positive answer.
// Negative and zero answers are "unavailable", never coerced to zero.
func (r RoundData) Usable() bool {
	return r.Answer.IsPositive()
}

// Age returns how long ago the round was updated.
func (r RoundData) Age(now time.Time) time.Duration {
	return now.Sub(r.UpdatedAt)
}

// PriceSource identifies which tier of the oracle stack produced a quote.
type PriceSource int

const (
	SourceUnknown PriceSource = iota
	SourceOverride
	SourcePrimary
	SourceFallback
	SourceEmergency
)

func (s PriceSource) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourcePrimary:
		return "primary"
	case SourceFallback:
		return "fallback"
	case SourceEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// PriceQuote is a resolved price in the unit of account.
type PriceQuote struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
	Source    PriceSource
}

// RelativeDeviationBps returns |a-b| / b expressed in basis points, floored.
// Used for the fallback-versus-last-primary deviation check.
func RelativeDeviationBps(a, b decimal.Decimal) int64 {
	if b.IsZero() {
		return MaxBps
	}
	return a.Sub(b).Abs().Mul(bpsDenominator).Div(b).Floor().IntPart()
}
