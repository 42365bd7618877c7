package entity

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MaxBps is the basis-point representation of 100%.
const MaxBps int64 = 10000

var bpsDenominator = decimal.NewFromInt(MaxBps)

// ValidateBps checks that a basis-point value lies in [0, 10000].
func ValidateBps(bps int64) error {
	if bps < 0 || bps > MaxBps {
		return errors.Errorf("basis points out of range [0, %d]: %d", MaxBps, bps)
	}
	return nil
}

// ApplyBps returns value * bps / 10000, floored. Every percentage
// application in the engine goes through here so mint and burn paths
// share one rounding policy and dust always accrues to the pool.
func ApplyBps(value decimal.Decimal, bps int64) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(bps)).Div(bpsDenominator).Floor()
}

// ProRata returns amount * numerator / denominator, floored.
// Used for proportional share math: multiplication strictly before
// division to minimise rounding loss.
func ProRata(amount, numerator, denominator decimal.Decimal) decimal.Decimal {
	return amount.Mul(numerator).Div(denominator).Floor()
}
