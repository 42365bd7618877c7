// Package venue defines the external-venue collaborators that strategies
// move capital through, plus in-memory simulators. The engine never
// depends on a concrete venue implementation.
//
// Venues pull collateral and deposits from their counterparty via
// allowance, and push released funds back by transfer. Failures are
// reported as errors, never swallowed.
package venue

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PerpVenue is a synthetic-exposure venue holding one leveraged position
// per counterparty strategy.
type PerpVenue interface {
	// Address identifies the venue on the base-asset ledger; the
	// counterparty approves it before opening or growing a position.
	Address() common.Address
	// OpenPosition pulls collateral and opens a position of the given
	// size, returning the venue's position identifier.
	OpenPosition(collateral, size decimal.Decimal) (string, error)
	// ResizePosition changes the position to the new absolute size,
	// pulling additional collateral on growth and releasing freed
	// collateral to the counterparty on shrink.
	ResizePosition(id string, newSize decimal.Decimal) error
	// ClosePosition unwinds the position and transfers the recovered
	// base-asset value to the counterparty, returning it.
	ClosePosition(id string) (decimal.Decimal, error)
	// PositionSize returns the current position size.
	PositionSize(id string) (decimal.Decimal, error)
	// FundingRate returns the venue's current periodic funding rate;
	// positive means the position pays.
	FundingRate() (decimal.Decimal, error)
}

// YieldVenue is a yield-bearing venue (lending pool, bill ladder,
// staking contract) holding base-asset deposits.
type YieldVenue interface {
	Address() common.Address
	// Deposit pulls amount from the counterparty into the venue.
	Deposit(amount decimal.Decimal) error
	// Withdraw releases up to amount back to the counterparty and
	// returns what was actually released, which may be less when the
	// venue is illiquid.
	Withdraw(amount decimal.Decimal) (decimal.Decimal, error)
	// Balance is the current deposited principal.
	Balance() (decimal.Decimal, error)
	// CollectYield realises accrued yield, transfers it to the
	// counterparty and returns it.
	CollectYield() (decimal.Decimal, error)
}
