package venue

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/internal/entity"
	"github.com/meridianvault/meridian/internal/token"
)

// SimulatePerp is an in-memory perp venue backed by the shared ledger
// token. Tests and simulation wiring can inject failures and set a mark
// shift applied to collateral on close.
type SimulatePerp struct {
	mu           sync.Mutex
	logger       *zap.Logger
	ledger       *token.LedgerToken
	addr         common.Address
	counterparty common.Address
	nextID       int
	positions    map[string]simPosition
	fundingRate  decimal.Decimal
	markShift    decimal.Decimal // multiplicative PnL factor applied on close, 1.0 = flat
	failNext     error
}

type simPosition struct {
	collateral decimal.Decimal
	size       decimal.Decimal
}

func NewSimulatePerp(logger *zap.Logger, ledger *token.LedgerToken, addr, counterparty common.Address) *SimulatePerp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatePerp{
		logger:       logger,
		ledger:       ledger,
		addr:         addr,
		counterparty: counterparty,
		positions:    make(map[string]simPosition),
		markShift:    decimal.NewFromInt(1),
	}
}

func (v *SimulatePerp) Address() common.Address {
	return v.addr
}

// SetFundingRate moves the venue's funding rate.
func (v *SimulatePerp) SetFundingRate(rate decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fundingRate = rate
}

// SetMarkShift sets the PnL factor applied to collateral on close.
func (v *SimulatePerp) SetMarkShift(shift decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markShift = shift
}

// FailNext makes the next state-changing call return err.
func (v *SimulatePerp) FailNext(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNext = err
}

func (v *SimulatePerp) takeFailure() error {
	err := v.failNext
	v.failNext = nil
	return err
}

func (v *SimulatePerp) OpenPosition(collateral, size decimal.Decimal) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(); err != nil {
		return "", err
	}
	if !collateral.IsPositive() || !size.IsPositive() {
		return "", errors.Wrap(entity.ErrZeroAmount, "open position")
	}
	if err := v.ledger.TransferFrom(v.addr, v.counterparty, v.addr, collateral); err != nil {
		return "", errors.Wrap(err, "pull collateral")
	}
	v.nextID++
	id := fmt.Sprintf("pos-%d", v.nextID)
	v.positions[id] = simPosition{collateral: collateral, size: size}
	v.logger.Debug("position opened",
		zap.String("id", id),
		zap.String("collateral", collateral.String()),
		zap.String("size", size.String()))
	return id, nil
}

func (v *SimulatePerp) ResizePosition(id string, newSize decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(); err != nil {
		return err
	}
	pos, ok := v.positions[id]
	if !ok {
		return errors.Errorf("unknown position %s", id)
	}
	if !newSize.IsPositive() {
		return errors.Wrap(entity.ErrZeroAmount, "resize position")
	}

	// collateral scales with size, preserving the entry leverage
	newCollateral := entity.ProRata(pos.collateral, newSize, pos.size)
	switch {
	case newCollateral.GreaterThan(pos.collateral):
		extra := newCollateral.Sub(pos.collateral)
		if err := v.ledger.TransferFrom(v.addr, v.counterparty, v.addr, extra); err != nil {
			return errors.Wrap(err, "pull additional collateral")
		}
	case newCollateral.LessThan(pos.collateral):
		freed := pos.collateral.Sub(newCollateral)
		if err := v.ledger.Transfer(v.addr, v.counterparty, freed); err != nil {
			return errors.Wrap(err, "release collateral")
		}
	}
	pos.collateral = newCollateral
	pos.size = newSize
	v.positions[id] = pos
	return nil
}

func (v *SimulatePerp) ClosePosition(id string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(); err != nil {
		return decimal.Zero, err
	}
	pos, ok := v.positions[id]
	if !ok {
		return decimal.Zero, errors.Errorf("unknown position %s", id)
	}

	recovered := pos.collateral.Mul(v.markShift).Floor()
	if pnl := recovered.Sub(pos.collateral); pnl.IsPositive() {
		if err := v.ledger.Mint(v.addr, pnl); err != nil {
			return decimal.Zero, errors.Wrap(err, "settle profit")
		}
	} else if pnl.IsNegative() {
		if err := v.ledger.Burn(v.addr, pnl.Neg()); err != nil {
			return decimal.Zero, errors.Wrap(err, "settle loss")
		}
	}
	if recovered.IsPositive() {
		if err := v.ledger.Transfer(v.addr, v.counterparty, recovered); err != nil {
			return decimal.Zero, errors.Wrap(err, "return collateral")
		}
	}
	delete(v.positions, id)
	return recovered, nil
}

func (v *SimulatePerp) PositionSize(id string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[id]
	if !ok {
		return decimal.Zero, errors.Errorf("unknown position %s", id)
	}
	return pos.size, nil
}

func (v *SimulatePerp) FundingRate() (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fundingRate, nil
}

// SimulateYield is an in-memory yield venue. Accrued yield is minted on
// collection, modelling yield entering the system from outside.
type SimulateYield struct {
	mu           sync.Mutex
	ledger       *token.LedgerToken
	addr         common.Address
	counterparty common.Address
	principal    decimal.Decimal
	accrued      decimal.Decimal
	liquidity    decimal.Decimal // cap on single-withdrawal size, zero = unlimited
	failNext     error
}

func NewSimulateYield(ledger *token.LedgerToken, addr, counterparty common.Address) *SimulateYield {
	return &SimulateYield{ledger: ledger, addr: addr, counterparty: counterparty}
}

func (v *SimulateYield) Address() common.Address {
	return v.addr
}

// Accrue adds yield that the next CollectYield realises.
func (v *SimulateYield) Accrue(amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.accrued = v.accrued.Add(amount)
}

// LimitLiquidity caps how much a single Withdraw can release.
func (v *SimulateYield) LimitLiquidity(cap decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.liquidity = cap
}

// FailNext makes the next state-changing call return err.
func (v *SimulateYield) FailNext(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNext = err
}

func (v *SimulateYield) takeFailure() error {
	err := v.failNext
	v.failNext = nil
	return err
}

func (v *SimulateYield) Deposit(amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return errors.Wrap(entity.ErrZeroAmount, "yield deposit")
	}
	if err := v.ledger.TransferFrom(v.addr, v.counterparty, v.addr, amount); err != nil {
		return errors.Wrap(err, "pull deposit")
	}
	v.principal = v.principal.Add(amount)
	return nil
}

func (v *SimulateYield) Withdraw(amount decimal.Decimal) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(); err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "yield withdraw")
	}
	released := amount
	if released.GreaterThan(v.principal) {
		released = v.principal
	}
	if v.liquidity.IsPositive() && released.GreaterThan(v.liquidity) {
		released = v.liquidity
	}
	if released.IsPositive() {
		if err := v.ledger.Transfer(v.addr, v.counterparty, released); err != nil {
			return decimal.Zero, errors.Wrap(err, "release principal")
		}
		v.principal = v.principal.Sub(released)
	}
	return released, nil
}

func (v *SimulateYield) Balance() (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.principal, nil
}

func (v *SimulateYield) CollectYield() (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.takeFailure(); err != nil {
		return decimal.Zero, err
	}
	out := v.accrued
	if out.IsPositive() {
		if err := v.ledger.Mint(v.addr, out); err != nil {
			return decimal.Zero, errors.Wrap(err, "realise yield")
		}
		if err := v.ledger.Transfer(v.addr, v.counterparty, out); err != nil {
			return decimal.Zero, errors.Wrap(err, "pay out yield")
		}
	}
	v.accrued = decimal.Zero
	return out, nil
}
