// Package strategy contains the capital-allocation strategies the vault
// deploys pooled funds into: a leveraged synthetic-exposure strategy and
// a family of yield strategies. The vault and wrappers see only the
// Allocator interface and never a concrete type.
package strategy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/meridianvault/meridian/internal/entity"
)

// Allocator is the contract between the vault and anything it can
// allocate capital to. Implementations report value in the base asset.
type Allocator interface {
	// Address identifies the allocator on the base-asset ledger;
	// capital is transferred there before AllocateCapital is called.
	Address() common.Address
	// GetValueInBaseAsset reports the allocator's total value in base
	// units, including capital in transit.
	GetValueInBaseAsset() (decimal.Decimal, error)
	// AllocateCapital deploys base-asset units already transferred to
	// the allocator's address.
	AllocateCapital(amount decimal.Decimal) error
	// WithdrawCapital returns up to amount to the beneficiary and
	// reports what was actually released.
	WithdrawCapital(amount decimal.Decimal) (decimal.Decimal, error)
	// HarvestYield realises accumulated yield, forwards it to the
	// beneficiary and returns the net amount.
	HarvestYield() (decimal.Decimal, error)
}

// pricer is the slice of the oracle the strategies need.
type pricer interface {
	GetPrice(asset common.Address) (entity.PriceQuote, error)
}
