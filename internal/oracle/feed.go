// Package oracle resolves asset prices in the unit of account through a
// tiered feed stack: manual override, primary, fallback with deviation
// check, emergency. A per-asset circuit breaker forces resolution to fail
// until explicitly cleared.
package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/meridianvault/meridian/internal/entity"
)

// Feed is a latestRoundData-style price source.
type Feed interface {
	LatestRoundData(asset common.Address) (entity.RoundData, error)
}

// StaticFeed is a settable in-memory feed used in simulation and tests.
type StaticFeed struct {
	mu     sync.RWMutex
	rounds map[common.Address]entity.RoundData
	err    error
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{rounds: make(map[common.Address]entity.RoundData)}
}

// SetPrice records a new round for the asset at the given time.
func (f *StaticFeed) SetPrice(asset common.Address, price decimal.Decimal, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.rounds[asset]
	f.rounds[asset] = entity.RoundData{
		RoundID:         prev.RoundID + 1,
		Answer:          price,
		StartedAt:       at,
		UpdatedAt:       at,
		AnsweredInRound: prev.RoundID + 1,
	}
}

// Fail makes every subsequent read return err until reset with Fail(nil).
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) LatestRoundData(asset common.Address) (entity.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return entity.RoundData{}, f.err
	}
	round, ok := f.rounds[asset]
	if !ok {
		return entity.RoundData{}, errors.Errorf("no round data for asset %s", asset.Hex())
	}
	return round, nil
}
