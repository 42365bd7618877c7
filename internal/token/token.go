// Package token provides the fungible-token surface the vault and
// strategies move value through. The engine depends only on the Token
// interface; LedgerToken is the in-memory implementation used for the
// vault's share ledger and for simulation.
package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/meridianvault/meridian/internal/entity"
)

// Token is the standard fungible interface: success is an error-free
// return, failure is an error. No non-standard transfer semantics are
// assumed beyond that.
type Token interface {
	Transfer(from, to common.Address, amount decimal.Decimal) error
	TransferFrom(spender, from, to common.Address, amount decimal.Decimal) error
	Approve(owner, spender common.Address, amount decimal.Decimal) error
	BalanceOf(account common.Address) decimal.Decimal
	Allowance(owner, spender common.Address) decimal.Decimal
}

// LedgerToken is an in-memory balance ledger with allowances.
type LedgerToken struct {
	mu          sync.RWMutex
	symbol      string
	balances    map[common.Address]decimal.Decimal
	allowances  map[common.Address]map[common.Address]decimal.Decimal
	totalSupply decimal.Decimal
}

func NewLedgerToken(symbol string) *LedgerToken {
	return &LedgerToken{
		symbol:     symbol,
		balances:   make(map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

func (t *LedgerToken) Symbol() string {
	return t.symbol
}

func (t *LedgerToken) BalanceOf(account common.Address) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[account]
}

func (t *LedgerToken) TotalSupply() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply
}

func (t *LedgerToken) Allowance(owner, spender common.Address) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[owner][spender]
}

func (t *LedgerToken) Transfer(from, to common.Address, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transfer(from, to, amount)
}

func (t *LedgerToken) TransferFrom(spender, from, to common.Address, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[from][spender]
	if allowed.LessThan(amount) {
		return errors.Wrapf(entity.ErrInsufficientBalance, "%s allowance %s < %s", t.symbol, allowed, amount)
	}
	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = allowed.Sub(amount)
	return nil
}

func (t *LedgerToken) Approve(owner, spender common.Address, amount decimal.Decimal) error {
	if spender == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "approve spender")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]decimal.Decimal)
	}
	t.allowances[owner][spender] = amount
	return nil
}

// Mint credits new units to an account. Used by the share ledger and by
// simulation faucets; a real deployment replaces LedgerToken entirely.
func (t *LedgerToken) Mint(to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(entity.ErrZeroAmount, "mint %s", t.symbol)
	}
	if to == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "mint recipient")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = t.balances[to].Add(amount)
	t.totalSupply = t.totalSupply.Add(amount)
	return nil
}

// Burn removes units from an account, failing when the balance is short.
func (t *LedgerToken) Burn(from common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(entity.ErrZeroAmount, "burn %s", t.symbol)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balances[from]
	if balance.LessThan(amount) {
		return errors.Wrapf(entity.ErrInsufficientBalance, "burn %s: balance %s < %s", t.symbol, balance, amount)
	}
	t.balances[from] = balance.Sub(amount)
	t.totalSupply = t.totalSupply.Sub(amount)
	return nil
}

func (t *LedgerToken) transfer(from, to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(entity.ErrZeroAmount, "transfer %s", t.symbol)
	}
	if to == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "transfer recipient")
	}
	balance := t.balances[from]
	if balance.LessThan(amount) {
		return errors.Wrapf(entity.ErrInsufficientBalance, "%s: balance %s < %s", t.symbol, balance, amount)
	}
	t.balances[from] = balance.Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}
