// Package vault implements the share-accounting core: it pools the base
// asset from depositors, mints and burns proportional shares, tracks a
// weighted set of asset wrappers and rebalances capital to target
// weights. Wrappers are held as opaque allocators; the vault never
// depends on a concrete strategy.
package vault

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/internal/entity"
	"github.com/meridianvault/meridian/internal/guard"
	"github.com/meridianvault/meridian/internal/strategy"
	"github.com/meridianvault/meridian/internal/token"
)

var (
	// ErrPaused rejects deposits while the vault is paused. Withdrawals
	// stay available: pausing freezes inflows, never user exits.
	ErrPaused = errors.New("vault is paused")
	// ErrWeightExceeded rejects registry changes pushing the total
	// target weight above 100%.
	ErrWeightExceeded = errors.New("total weight exceeds 10000 bps")
	// ErrRebalanceTooSoon rejects a rebalance before the interval has
	// elapsed, so operators can tell a skipped run from an executed one.
	ErrRebalanceTooSoon = errors.New("rebalance interval not elapsed")
	// ErrUnknownWrapper rejects operations on an unregistered wrapper.
	ErrUnknownWrapper = errors.New("wrapper not registered")
	// ErrRebalancePartial reports a rebalance that completed with some
	// wrappers failing; the failures are listed in the error text.
	ErrRebalancePartial = errors.New("rebalance completed with failures")
)

type wrapperEntry struct {
	allocator strategy.Allocator
	weightBps int64
	status    entity.WrapperStatus
}

// Config bounds a vault instance.
type Config struct {
	Owner             common.Address
	Address           common.Address
	FeeRecipient      common.Address
	HarvestFeeBps     int64
	RebalanceInterval time.Duration
}

func (c Config) validate() error {
	if c.Owner == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "vault owner")
	}
	if c.Address == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "vault address")
	}
	if err := entity.ValidateBps(c.HarvestFeeBps); err != nil {
		return errors.Wrap(err, "harvest fee")
	}
	if c.HarvestFeeBps > 0 && c.FeeRecipient == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "fee recipient")
	}
	if c.RebalanceInterval <= 0 {
		return errors.New("rebalance interval must be positive")
	}
	return nil
}

// Vault is the share-accounting engine.
type Vault struct {
	mu     sync.Mutex
	gd     guard.Guard
	l      *zap.Logger
	cfg    Config
	base   token.Token
	shares *token.LedgerToken

	registry       []common.Address // registration order, the rebalance tie-break
	wrappers       map[common.Address]*wrapperEntry
	totalWeightBps int64

	paused         bool
	lastRebalanced time.Time
	journal        *Journal

	// now is swappable so interval gating is testable.
	now func() time.Time
}

// New constructs a vault. The journal is optional; pass nil to run
// without event persistence.
func New(l *zap.Logger, cfg Config, base token.Token, journal *Journal) (*Vault, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if base == nil {
		return nil, errors.New("base asset token is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "vault config")
	}
	return &Vault{
		l:        l,
		cfg:      cfg,
		base:     base,
		shares:   token.NewLedgerToken("mSHARE"),
		wrappers: make(map[common.Address]*wrapperEntry),
		journal:  journal,
		now:      time.Now,
	}, nil
}

func (v *Vault) Address() common.Address {
	return v.cfg.Address
}

// BalanceOf returns an account's share balance.
func (v *Vault) BalanceOf(account common.Address) decimal.Decimal {
	return v.shares.BalanceOf(account)
}

// TotalSupply returns the outstanding share supply.
func (v *Vault) TotalSupply() decimal.Decimal {
	return v.shares.TotalSupply()
}

// TotalWeight returns the sum of active target weights in bps.
func (v *Vault) TotalWeight() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalWeightBps
}

// IsPaused reports whether deposits are currently blocked.
func (v *Vault) IsPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// TotalAssets is the base-asset balance held directly plus the reported
// value of every active wrapper.
func (v *Vault) TotalAssets() (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAssetsLocked()
}

func (v *Vault) totalAssetsLocked() (decimal.Decimal, error) {
	total := v.base.BalanceOf(v.cfg.Address)
	for _, addr := range v.registry {
		entry := v.wrappers[addr]
		if entry.status != entity.WrapperActive {
			continue
		}
		value, err := entry.allocator.GetValueInBaseAsset()
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "value of wrapper %s", addr.Hex())
		}
		total = total.Add(value)
	}
	return total, nil
}

// SharePrice is totalAssets per share; 1 when no shares exist.
func (v *Vault) SharePrice() (decimal.Decimal, error) {
	supply := v.shares.TotalSupply()
	if supply.IsZero() {
		return decimal.NewFromInt(1), nil
	}
	assets, err := v.TotalAssets()
	if err != nil {
		return decimal.Zero, err
	}
	return assets.Div(supply), nil
}

// Deposit pulls amount of the base asset from the caller and mints
// proportional shares: 1:1 on an empty vault, assets*supply/totalAssets
// afterwards, computed against pre-deposit totals. Share-count updates
// are finalised before the external pull so a reentrant observer sees
// post-update state.
func (v *Vault) Deposit(caller common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := v.gd.Enter("deposit"); err != nil {
		return decimal.Zero, err
	}
	defer v.gd.Exit()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return decimal.Zero, errors.Wrap(ErrPaused, "deposit")
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "deposit")
	}
	if caller == (common.Address{}) {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAddress, "depositor")
	}

	assetsBefore, err := v.totalAssetsLocked()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "total assets")
	}

	supply := v.shares.TotalSupply()
	var minted decimal.Decimal
	if supply.IsZero() {
		minted = amount
	} else {
		minted = entity.ProRata(amount, supply, assetsBefore)
	}
	if !minted.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "deposit too small to mint shares")
	}

	if err := v.shares.Mint(caller, minted); err != nil {
		return decimal.Zero, errors.Wrap(err, "mint shares")
	}
	if err := v.base.TransferFrom(v.cfg.Address, caller, v.cfg.Address, amount); err != nil {
		// roll back the mint so a failed pull leaves no partial state
		if burnErr := v.shares.Burn(caller, minted); burnErr != nil {
			v.l.Error("failed to roll back share mint", zap.Error(burnErr))
		}
		return decimal.Zero, errors.Wrap(err, "pull deposit")
	}

	event := entity.DepositEvent{User: caller, Amount: amount, Shares: minted, At: v.now()}
	v.appendJournal(journalKeyDeposit, event)
	v.l.Info("deposit",
		zap.String("user", caller.Hex()),
		zap.String("amount", amount.String()),
		zap.String("shares", minted.String()))
	return minted, nil
}

// Withdraw burns the caller's shares and pays out the proportional
// assets, pulling any shortfall from active wrappers in registration
// order. When wrappers release less than the claim the payout is capped
// and shares are burned pro-rata to what was actually paid, so the
// caller keeps a claim on the unrecovered remainder. Withdrawals work
// while paused.
func (v *Vault) Withdraw(caller common.Address, shares decimal.Decimal) (decimal.Decimal, error) {
	if err := v.gd.Enter("withdraw"); err != nil {
		return decimal.Zero, err
	}
	defer v.gd.Exit()

	v.mu.Lock()
	defer v.mu.Unlock()

	if !shares.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "withdraw shares")
	}
	balance := v.shares.BalanceOf(caller)
	if balance.LessThan(shares) {
		return decimal.Zero, errors.Wrapf(entity.ErrInsufficientBalance, "shares: balance %s < %s", balance, shares)
	}

	assets, err := v.totalAssetsLocked()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "total assets")
	}
	supply := v.shares.TotalSupply()
	payout := entity.ProRata(shares, assets, supply)

	burn := shares
	if idle := v.base.BalanceOf(v.cfg.Address); idle.LessThan(payout) {
		if err := v.reclaimLocked(payout.Sub(idle)); err != nil {
			return decimal.Zero, errors.Wrap(err, "reclaim capital")
		}
		if got := v.base.BalanceOf(v.cfg.Address); got.LessThan(payout) {
			// wrappers released less than their reported value; only the
			// share of the claim that was actually paid is burned, with
			// the burn rounded up so dust stays with the pool
			burn = shares.Mul(got).Div(payout).Ceil()
			payout = got
		}
	}
	if !payout.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "no liquidity to pay out")
	}

	if err := v.shares.Burn(caller, burn); err != nil {
		return decimal.Zero, errors.Wrap(err, "burn shares")
	}
	if err := v.base.Transfer(v.cfg.Address, caller, payout); err != nil {
		if mintErr := v.shares.Mint(caller, burn); mintErr != nil {
			v.l.Error("failed to roll back share burn", zap.Error(mintErr))
		}
		return decimal.Zero, errors.Wrap(err, "pay out withdrawal")
	}

	event := entity.WithdrawEvent{User: caller, Amount: payout, Shares: burn, At: v.now()}
	v.appendJournal(journalKeyWithdraw, event)
	v.l.Info("withdraw",
		zap.String("user", caller.Hex()),
		zap.String("amount", payout.String()),
		zap.String("shares", burn.String()))
	return payout, nil
}

// reclaimLocked pulls the shortfall from active wrappers in
// registration order until covered.
func (v *Vault) reclaimLocked(shortfall decimal.Decimal) error {
	for _, addr := range v.registry {
		if !shortfall.IsPositive() {
			return nil
		}
		entry := v.wrappers[addr]
		if entry.status != entity.WrapperActive {
			continue
		}
		freed, err := entry.allocator.WithdrawCapital(shortfall)
		if err != nil {
			v.l.Warn("wrapper withdrawal failed during reclaim",
				zap.String("wrapper", addr.Hex()),
				zap.Error(err))
			continue
		}
		shortfall = shortfall.Sub(freed)
	}
	if shortfall.IsPositive() {
		v.l.Warn("reclaim left a shortfall", zap.String("shortfall", shortfall.String()))
	}
	return nil
}

// AddAsset registers a wrapper at the given target weight, activating
// it. Fails without state change when the weight would push the total
// above 100%.
func (v *Vault) AddAsset(caller common.Address, w strategy.Allocator, weightBps int64) error {
	if caller != v.cfg.Owner {
		return errors.Wrap(entity.ErrNotOwner, "add asset")
	}
	if w == nil {
		return errors.New("wrapper is required")
	}
	if weightBps <= 0 {
		return errors.New("weight must be positive")
	}
	if err := entity.ValidateBps(weightBps); err != nil {
		return errors.Wrap(err, "wrapper weight")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	addr := w.Address()
	if entry, exists := v.wrappers[addr]; exists && entry.status == entity.WrapperActive {
		return errors.Errorf("wrapper %s already active", addr.Hex())
	}
	if v.totalWeightBps+weightBps > entity.MaxBps {
		return errors.Wrapf(ErrWeightExceeded, "%d + %d", v.totalWeightBps, weightBps)
	}

	if entry, exists := v.wrappers[addr]; exists {
		entry.allocator = w
		entry.weightBps = weightBps
		entry.status = entity.WrapperActive
	} else {
		v.wrappers[addr] = &wrapperEntry{allocator: w, weightBps: weightBps, status: entity.WrapperActive}
		v.registry = append(v.registry, addr)
	}
	v.totalWeightBps += weightBps

	v.appendJournal(journalKeyAssetAdd, entity.AssetAddedEvent{Wrapper: addr, WeightBps: weightBps, At: v.now()})
	v.l.Info("asset added", zap.String("wrapper", addr.Hex()), zap.Int64("weight_bps", weightBps))
	return nil
}

// UpdateAssetWeight changes an active wrapper's target weight.
func (v *Vault) UpdateAssetWeight(caller, wrapper common.Address, newWeightBps int64) error {
	if caller != v.cfg.Owner {
		return errors.Wrap(entity.ErrNotOwner, "update asset weight")
	}
	if newWeightBps <= 0 {
		return errors.New("weight must be positive")
	}
	if err := entity.ValidateBps(newWeightBps); err != nil {
		return errors.Wrap(err, "wrapper weight")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	entry, exists := v.wrappers[wrapper]
	if !exists || entry.status != entity.WrapperActive {
		return errors.Wrapf(ErrUnknownWrapper, "%s", wrapper.Hex())
	}
	if v.totalWeightBps-entry.weightBps+newWeightBps > entity.MaxBps {
		return errors.Wrapf(ErrWeightExceeded, "%d - %d + %d", v.totalWeightBps, entry.weightBps, newWeightBps)
	}
	v.totalWeightBps += newWeightBps - entry.weightBps
	entry.weightBps = newWeightBps
	return nil
}

// RemoveAsset liquidates the wrapper's position back to idle balance,
// zeroes its weight and deactivates it.
func (v *Vault) RemoveAsset(caller, wrapper common.Address) error {
	if caller != v.cfg.Owner {
		return errors.Wrap(entity.ErrNotOwner, "remove asset")
	}
	if err := v.gd.Enter("remove asset"); err != nil {
		return err
	}
	defer v.gd.Exit()

	v.mu.Lock()
	defer v.mu.Unlock()

	entry, exists := v.wrappers[wrapper]
	if !exists || entry.status != entity.WrapperActive {
		return errors.Wrapf(ErrUnknownWrapper, "%s", wrapper.Hex())
	}

	value, err := entry.allocator.GetValueInBaseAsset()
	if err != nil {
		return errors.Wrap(err, "wrapper value")
	}
	if value.IsPositive() {
		if _, err := entry.allocator.WithdrawCapital(value); err != nil {
			return errors.Wrap(err, "liquidate wrapper")
		}
	}

	v.totalWeightBps -= entry.weightBps
	entry.weightBps = 0
	entry.status = entity.WrapperInactive

	v.appendJournal(journalKeyAssetDrop, entity.AssetRemovedEvent{Wrapper: wrapper, At: v.now()})
	v.l.Info("asset removed", zap.String("wrapper", wrapper.Hex()))
	return nil
}

// Rebalance moves each active wrapper toward its target value,
// totalAssets * weight / 10000, in registration order. A failure on one
// wrapper is isolated: the rest proceed and the failures surface as an
// aggregate warning error alongside the completed run.
func (v *Vault) Rebalance(caller common.Address) error {
	if caller != v.cfg.Owner {
		return errors.Wrap(entity.ErrNotOwner, "rebalance")
	}
	if err := v.gd.Enter("rebalance"); err != nil {
		return err
	}
	defer v.gd.Exit()

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if !v.lastRebalanced.IsZero() && now.Sub(v.lastRebalanced) < v.cfg.RebalanceInterval {
		return errors.Wrapf(ErrRebalanceTooSoon, "last at %s", v.lastRebalanced.Format(time.RFC3339))
	}

	totalAssets, err := v.totalAssetsLocked()
	if err != nil {
		return errors.Wrap(err, "total assets")
	}

	var warnings []string
	for _, addr := range v.registry {
		entry := v.wrappers[addr]
		if entry.status != entity.WrapperActive {
			continue
		}
		if err := v.rebalanceWrapperLocked(addr, entry, totalAssets); err != nil {
			warnings = append(warnings, errors.Wrapf(err, "wrapper %s", addr.Hex()).Error())
		}
	}

	v.lastRebalanced = now
	v.appendJournal(journalKeyRebalance, entity.RebalancedEvent{At: now, Warnings: warnings})
	v.l.Info("rebalanced",
		zap.String("total_assets", totalAssets.String()),
		zap.Strings("warnings", warnings))

	if len(warnings) > 0 {
		return errors.Wrap(ErrRebalancePartial, strings.Join(warnings, "; "))
	}
	return nil
}

func (v *Vault) rebalanceWrapperLocked(addr common.Address, entry *wrapperEntry, totalAssets decimal.Decimal) error {
	target := entity.ApplyBps(totalAssets, entry.weightBps)
	current, err := entry.allocator.GetValueInBaseAsset()
	if err != nil {
		return errors.Wrap(err, "value")
	}

	switch {
	case target.GreaterThan(current):
		delta := decimal.Min(target.Sub(current), v.base.BalanceOf(v.cfg.Address))
		if !delta.IsPositive() {
			return nil
		}
		if err := v.base.Transfer(v.cfg.Address, addr, delta); err != nil {
			return errors.Wrap(err, "fund wrapper")
		}
		if err := entry.allocator.AllocateCapital(delta); err != nil {
			// capital stays at the wrapper's address and remains part
			// of its reported value; surfaced, not rolled back
			return errors.Wrap(err, "allocate")
		}
	case current.GreaterThan(target):
		if _, err := entry.allocator.WithdrawCapital(current.Sub(target)); err != nil {
			return errors.Wrap(err, "withdraw")
		}
	}
	return nil
}

// HarvestYield harvests every active wrapper, takes the harvest fee and
// leaves the remainder as idle balance, raising the share price for all
// holders without minting shares.
func (v *Vault) HarvestYield(caller common.Address) (decimal.Decimal, error) {
	if caller != v.cfg.Owner {
		return decimal.Zero, errors.Wrap(entity.ErrNotOwner, "harvest yield")
	}
	if err := v.gd.Enter("harvest yield"); err != nil {
		return decimal.Zero, err
	}
	defer v.gd.Exit()

	v.mu.Lock()
	defer v.mu.Unlock()

	proceeds := decimal.Zero
	for _, addr := range v.registry {
		entry := v.wrappers[addr]
		if entry.status != entity.WrapperActive {
			continue
		}
		harvested, err := entry.allocator.HarvestYield()
		if err != nil {
			v.l.Warn("wrapper harvest failed",
				zap.String("wrapper", addr.Hex()),
				zap.Error(err))
			continue
		}
		proceeds = proceeds.Add(harvested)
	}

	fee := entity.ApplyBps(proceeds, v.cfg.HarvestFeeBps)
	if fee.IsPositive() {
		if err := v.base.Transfer(v.cfg.Address, v.cfg.FeeRecipient, fee); err != nil {
			return decimal.Zero, errors.Wrap(err, "pay harvest fee")
		}
	}

	net := proceeds.Sub(fee)
	v.appendJournal(journalKeyHarvest, entity.HarvestEvent{Proceeds: proceeds, Fee: fee, At: v.now()})
	v.l.Info("yield harvested",
		zap.String("proceeds", proceeds.String()),
		zap.String("fee", fee.String()))
	return net, nil
}

// Pause blocks deposits. Withdrawals remain available.
func (v *Vault) Pause(caller common.Address) error {
	if caller != v.cfg.Owner {
		return errors.Wrap(entity.ErrNotOwner, "pause")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = true
	v.l.Warn("vault paused")
	return nil
}

// Unpause re-enables deposits.
func (v *Vault) Unpause(caller common.Address) error {
	if caller != v.cfg.Owner {
		return errors.Wrap(entity.ErrNotOwner, "unpause")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = false
	v.l.Info("vault unpaused")
	return nil
}

func (v *Vault) appendJournal(kind string, event any) {
	if v.journal == nil {
		return
	}
	if err := v.journal.Append(kind, event); err != nil {
		v.l.Error("journal append failed", zap.String("kind", kind), zap.Error(err))
	}
}

// History replays the journaled events, oldest first. Empty when the
// vault runs without a journal.
func (v *Vault) History() []Record {
	if v.journal == nil {
		return nil
	}
	return v.journal.Replay()
}

// Close releases the journal, if any.
func (v *Vault) Close() error {
	if v.journal == nil {
		return nil
	}
	return v.journal.Close()
}
