package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Vault events. These are journaled append-only for observability and
// replayed on startup; JSON tags fix the wire shape.

type DepositEvent struct {
	User   common.Address  `json:"user"`
	Amount decimal.Decimal `json:"amount"`
	Shares decimal.Decimal `json:"shares"`
	At     time.Time       `json:"at"`
}

type WithdrawEvent struct {
	User   common.Address  `json:"user"`
	Amount decimal.Decimal `json:"amount"`
	Shares decimal.Decimal `json:"shares"`
	At     time.Time       `json:"at"`
}

type RebalancedEvent struct {
	At       time.Time `json:"at"`
	Warnings []string  `json:"warnings,omitempty"`
}

type AssetAddedEvent struct {
	Wrapper   common.Address `json:"wrapper"`
	WeightBps int64          `json:"weight_bps"`
	At        time.Time      `json:"at"`
}

type AssetRemovedEvent struct {
	Wrapper common.Address `json:"wrapper"`
	At      time.Time      `json:"at"`
}

type HarvestEvent struct {
	Proceeds decimal.Decimal `json:"proceeds"`
	Fee      decimal.Decimal `json:"fee"`
	At       time.Time       `json:"at"`
}
