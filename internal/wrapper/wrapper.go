// Package wrapper composes one synthetic-exposure strategy and one
// yield strategy into a single allocatable unit. The vault holds
// wrappers as opaque allocators; a wrapper holds its strategy pair the
// same way, transferred at construction.
package wrapper

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/internal/entity"
	"github.com/meridianvault/meridian/internal/guard"
	"github.com/meridianvault/meridian/internal/strategy"
	"github.com/meridianvault/meridian/internal/token"
)

// AssetWrapper routes allocated capital between an exposure strategy
// and a yield strategy per a configured split, and reports their
// combined value in the base asset.
type AssetWrapper struct {
	mu       sync.Mutex
	gd       guard.Guard
	l        *zap.Logger
	base     token.Token
	addr     common.Address
	ben      common.Address
	exposure strategy.Allocator
	yield    strategy.Allocator
	splitBps int64 // share of each allocation routed to the exposure side
}

func New(l *zap.Logger, base token.Token, addr, beneficiary common.Address,
	exposure, yield strategy.Allocator, splitBps int64) (*AssetWrapper, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if base == nil || exposure == nil || yield == nil {
		return nil, errors.New("token and both strategies are required")
	}
	if addr == (common.Address{}) || beneficiary == (common.Address{}) {
		return nil, errors.Wrap(entity.ErrZeroAddress, "wrapper address")
	}
	if err := entity.ValidateBps(splitBps); err != nil {
		return nil, errors.Wrap(err, "exposure split")
	}
	return &AssetWrapper{
		l:        l,
		base:     base,
		addr:     addr,
		ben:      beneficiary,
		exposure: exposure,
		yield:    yield,
		splitBps: splitBps,
	}, nil
}

func (w *AssetWrapper) Address() common.Address {
	return w.addr
}

// GetValueInBaseAsset is the exposure value plus the yield value plus
// anything idle at the wrapper's own address.
func (w *AssetWrapper) GetValueInBaseAsset() (decimal.Decimal, error) {
	ev, err := w.exposure.GetValueInBaseAsset()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "exposure value")
	}
	yv, err := w.yield.GetValueInBaseAsset()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "yield value")
	}
	return ev.Add(yv).Add(w.base.BalanceOf(w.addr)), nil
}

// AllocateCapital splits capital already at the wrapper's address
// between the two strategies.
func (w *AssetWrapper) AllocateCapital(amount decimal.Decimal) error {
	if err := w.gd.Enter("allocate capital"); err != nil {
		return err
	}
	defer w.gd.Exit()

	w.mu.Lock()
	defer w.mu.Unlock()

	if !amount.IsPositive() {
		return errors.Wrap(entity.ErrZeroAmount, "allocate capital")
	}

	toExposure := entity.ApplyBps(amount, w.splitBps)
	toYield := amount.Sub(toExposure)

	if toExposure.IsPositive() {
		if err := w.base.Transfer(w.addr, w.exposure.Address(), toExposure); err != nil {
			return errors.Wrap(err, "fund exposure strategy")
		}
		if err := w.exposure.AllocateCapital(toExposure); err != nil {
			return errors.Wrap(err, "allocate to exposure")
		}
	}
	if toYield.IsPositive() {
		if err := w.base.Transfer(w.addr, w.yield.Address(), toYield); err != nil {
			return errors.Wrap(err, "fund yield strategy")
		}
		if err := w.yield.AllocateCapital(toYield); err != nil {
			return errors.Wrap(err, "allocate to yield")
		}
	}
	return nil
}

// WithdrawCapital drains the yield side first, then shrinks the
// exposure side, and forwards what was freed to the beneficiary.
func (w *AssetWrapper) WithdrawCapital(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := w.gd.Enter("withdraw capital"); err != nil {
		return decimal.Zero, err
	}
	defer w.gd.Exit()

	w.mu.Lock()
	defer w.mu.Unlock()

	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "withdraw capital")
	}

	remaining := amount.Sub(w.base.BalanceOf(w.addr))

	if remaining.IsPositive() {
		freed, err := w.yield.WithdrawCapital(remaining)
		if err != nil {
			w.l.Warn("yield-side withdrawal failed", zap.Error(err))
		} else {
			remaining = remaining.Sub(freed)
		}
	}
	if remaining.IsPositive() {
		freed, err := w.exposure.WithdrawCapital(remaining)
		if err != nil {
			w.l.Warn("exposure-side withdrawal failed", zap.Error(err))
		} else {
			remaining = remaining.Sub(freed)
		}
	}

	actual := decimal.Min(amount, w.base.BalanceOf(w.addr))
	if actual.IsPositive() {
		if err := w.base.Transfer(w.addr, w.ben, actual); err != nil {
			return decimal.Zero, errors.Wrap(err, "return capital")
		}
	}
	return actual, nil
}

// HarvestYield collects from both sides and forwards the sum to the
// beneficiary.
func (w *AssetWrapper) HarvestYield() (decimal.Decimal, error) {
	if err := w.gd.Enter("harvest yield"); err != nil {
		return decimal.Zero, err
	}
	defer w.gd.Exit()

	w.mu.Lock()
	defer w.mu.Unlock()

	total := decimal.Zero
	for _, side := range []strategy.Allocator{w.yield, w.exposure} {
		harvested, err := side.HarvestYield()
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "harvest")
		}
		total = total.Add(harvested)
	}
	if !total.IsPositive() {
		return decimal.Zero, nil
	}
	if err := w.base.Transfer(w.addr, w.ben, total); err != nil {
		return decimal.Zero, errors.Wrap(err, "forward harvest")
	}
	return total, nil
}
