package strategy

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/internal/entity"
	"github.com/meridianvault/meridian/internal/guard"
	"github.com/meridianvault/meridian/internal/token"
	"github.com/meridianvault/meridian/internal/venue"
)

// LeverageScale expresses leverage in hundredths: 100 = 1.00x.
const LeverageScale int64 = 100

var (
	// ErrPositionOpen rejects OpenExposure when a position already exists.
	ErrPositionOpen = errors.New("position already open")
	// ErrPositionClosed rejects adjustments without an open position.
	ErrPositionClosed = errors.New("no open position")
	// ErrPositionTooLarge rejects exposure beyond the configured cap.
	ErrPositionTooLarge = errors.New("exposure exceeds max position size")
	// ErrSlippage reports a close that recovered less than the slippage
	// bound allows. EmergencyExit never fails with this.
	ErrSlippage = errors.New("close recovered less than slippage bound")
)

// ExposureConfig bounds an exposure strategy.
type ExposureConfig struct {
	Leverage         int64           // initial leverage, hundredths
	MinLeverage      int64           // lower optimisation bound
	MaxLeverage      int64           // upper optimisation bound
	MaxPositionSize  decimal.Decimal // notional cap in base units
	ManagementFeeBps int64           // taken from harvested yield
	MaxSlippageBps   int64           // tolerated recovery shortfall on close
	FundingCeiling   decimal.Decimal // funding rate at which leverage pins to min
	FundingWindow    int             // observations the leverage optimiser averages
}

func (c ExposureConfig) validate() error {
	if c.MinLeverage < LeverageScale {
		return errors.Errorf("min leverage below 1.00x: %d", c.MinLeverage)
	}
	if c.MaxLeverage < c.MinLeverage {
		return errors.Errorf("max leverage %d below min %d", c.MaxLeverage, c.MinLeverage)
	}
	if c.Leverage < c.MinLeverage || c.Leverage > c.MaxLeverage {
		return errors.Errorf("leverage %d outside [%d, %d]", c.Leverage, c.MinLeverage, c.MaxLeverage)
	}
	if !c.MaxPositionSize.IsPositive() {
		return errors.New("max position size must be positive")
	}
	if err := entity.ValidateBps(c.ManagementFeeBps); err != nil {
		return errors.Wrap(err, "management fee")
	}
	if err := entity.ValidateBps(c.MaxSlippageBps); err != nil {
		return errors.Wrap(err, "max slippage")
	}
	if !c.FundingCeiling.IsPositive() {
		return errors.New("funding ceiling must be positive")
	}
	if c.FundingWindow < 1 {
		return errors.New("funding window must be at least 1")
	}
	return nil
}

// ExposureStrategy holds one leveraged synthetic-exposure position on a
// perp venue. Collateral bookkeeping is fully collateralised: the
// collateral counter always equals the venue's post-operation backing.
type ExposureStrategy struct {
	mu    sync.Mutex
	gd    guard.Guard
	l     *zap.Logger
	asset entity.Asset
	base  token.Token
	addr  common.Address
	ben   common.Address
	perp  venue.PerpVenue
	px    pricer
	cfg   ExposureConfig

	positionID      string
	leverage        int64
	notional        decimal.Decimal
	size            decimal.Decimal
	totalDeposited  decimal.Decimal
	totalCollateral decimal.Decimal
	unpaidFunding   decimal.Decimal
	funding         *entity.FundingHistory

	// secondary yield venue for parked collateral returns; optional
	secondary venue.YieldVenue
}

func NewExposureStrategy(l *zap.Logger, asset entity.Asset, base token.Token, addr, beneficiary common.Address,
	perp venue.PerpVenue, px pricer, cfg ExposureConfig) (*ExposureStrategy, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if base == nil || perp == nil || px == nil {
		return nil, errors.New("token, venue and pricer are required")
	}
	if addr == (common.Address{}) || beneficiary == (common.Address{}) {
		return nil, errors.Wrap(entity.ErrZeroAddress, "exposure strategy address")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "exposure config")
	}
	return &ExposureStrategy{
		l:        l,
		asset:    asset,
		base:     base,
		addr:     addr,
		ben:      beneficiary,
		perp:     perp,
		px:       px,
		cfg:      cfg,
		leverage: cfg.Leverage,
		funding:  entity.NewFundingHistory(cfg.FundingWindow * 4),
	}, nil
}

// AttachSecondaryYield points parked-collateral returns at a yield venue.
func (s *ExposureStrategy) AttachSecondaryYield(v venue.YieldVenue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secondary = v
}

func (s *ExposureStrategy) Address() common.Address {
	return s.addr
}

// Leverage returns the current target leverage in hundredths.
func (s *ExposureStrategy) Leverage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leverage
}

// TotalCollateral returns the collateral currently backing the position.
func (s *ExposureStrategy) TotalCollateral() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCollateral
}

// OpenExposure opens the position at the given notional, pulling the
// required collateral from the strategy's idle balance. Fails when a
// position is already open; AllocateCapital dispatches between open and
// adjust.
func (s *ExposureStrategy) OpenExposure(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := s.gd.Enter("open exposure"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(amount)
}

func (s *ExposureStrategy) openLocked(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "open exposure")
	}
	if s.positionID != "" {
		return decimal.Zero, ErrPositionOpen
	}
	if amount.GreaterThan(s.cfg.MaxPositionSize) {
		return decimal.Zero, errors.Wrapf(ErrPositionTooLarge, "%s > %s", amount, s.cfg.MaxPositionSize)
	}

	quote, err := s.px.GetPrice(s.asset.Address)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "price exposure asset")
	}

	collateral := entity.ProRata(amount, decimal.NewFromInt(LeverageScale), decimal.NewFromInt(s.leverage))
	size := amount.Div(quote.Price)

	if err := s.base.Approve(s.addr, s.perp.Address(), collateral); err != nil {
		return decimal.Zero, errors.Wrap(err, "approve collateral")
	}
	id, err := s.perp.OpenPosition(collateral, size)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "venue open")
	}

	s.positionID = id
	s.notional = amount
	s.size = size
	s.totalDeposited = s.totalDeposited.Add(collateral)
	s.totalCollateral = collateral

	s.l.Info("exposure opened",
		zap.String("asset", s.asset.Symbol),
		zap.String("notional", amount.String()),
		zap.String("collateral", collateral.String()),
		zap.Int64("leverage", s.leverage))
	return amount, nil
}

// AdjustExposure grows (positive delta) or shrinks (negative delta) the
// open position by a notional delta. Shrinking to zero or below closes
// the position entirely.
func (s *ExposureStrategy) AdjustExposure(delta decimal.Decimal) (decimal.Decimal, error) {
	if err := s.gd.Enter("adjust exposure"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(delta)
}

func (s *ExposureStrategy) adjustLocked(delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "adjust exposure")
	}
	if s.positionID == "" {
		return decimal.Zero, ErrPositionClosed
	}

	newNotional := s.notional.Add(delta)
	if !newNotional.IsPositive() {
		return s.closeLocked(false)
	}
	if newNotional.GreaterThan(s.cfg.MaxPositionSize) {
		return decimal.Zero, errors.Wrapf(ErrPositionTooLarge, "%s > %s", newNotional, s.cfg.MaxPositionSize)
	}

	newSize := s.size.Mul(newNotional).Div(s.notional)
	newCollateral := entity.ProRata(s.totalCollateral, newNotional, s.notional)

	if extra := newCollateral.Sub(s.totalCollateral); extra.IsPositive() {
		if err := s.base.Approve(s.addr, s.perp.Address(), extra); err != nil {
			return decimal.Zero, errors.Wrap(err, "approve collateral")
		}
	}
	if err := s.perp.ResizePosition(s.positionID, newSize); err != nil {
		return decimal.Zero, errors.Wrap(err, "venue resize")
	}

	if delta.IsPositive() {
		s.totalDeposited = s.totalDeposited.Add(newCollateral.Sub(s.totalCollateral))
	}
	s.notional = newNotional
	s.size = newSize
	s.totalCollateral = newCollateral
	return newNotional, nil
}

// CloseExposure shrinks the position by a notional amount, closing it
// fully when amount reaches the whole notional. A full close checks the
// recovered value against the slippage bound.
func (s *ExposureStrategy) CloseExposure(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := s.gd.Enter("close exposure"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "close exposure")
	}
	if s.positionID == "" {
		return decimal.Zero, ErrPositionClosed
	}
	if amount.GreaterThanOrEqual(s.notional) {
		return s.closeLocked(true)
	}
	return s.adjustLocked(amount.Neg())
}

// closeLocked unwinds the venue position and zeroes the books.
func (s *ExposureStrategy) closeLocked(checkSlippage bool) (decimal.Decimal, error) {
	expected := s.totalCollateral
	recovered, err := s.perp.ClosePosition(s.positionID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "venue close")
	}

	s.positionID = ""
	s.notional = decimal.Zero
	s.size = decimal.Zero
	s.totalCollateral = decimal.Zero

	if checkSlippage {
		minOut := entity.ApplyBps(expected, entity.MaxBps-s.cfg.MaxSlippageBps)
		if recovered.LessThan(minOut) {
			return recovered, errors.Wrapf(ErrSlippage, "recovered %s, bound %s", recovered, minOut)
		}
	}
	return recovered, nil
}

// EmergencyExit force-closes the position regardless of slippage bounds
// and returns all recoverable value to the beneficiary. A venue failure
// is reported, never retried.
func (s *ExposureStrategy) EmergencyExit() (decimal.Decimal, error) {
	if err := s.gd.Enter("emergency exit"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.positionID != "" {
		if _, err := s.closeLocked(false); err != nil {
			return decimal.Zero, errors.Wrap(err, "emergency close")
		}
	}

	recovered := s.base.BalanceOf(s.addr)
	if recovered.IsPositive() {
		if err := s.base.Transfer(s.addr, s.ben, recovered); err != nil {
			return decimal.Zero, errors.Wrap(err, "return funds")
		}
	}
	s.l.Warn("emergency exit completed",
		zap.String("asset", s.asset.Symbol),
		zap.String("recovered", recovered.String()))
	return recovered, nil
}

// GetCurrentExposureValue reports the position's equity: the collateral
// backing it plus mark-to-market PnL against the entry notional. At an
// unchanged price this equals exactly the capital the position consumed,
// so reported value never exceeds what a close can realise. The same
// price source backs every read path so valuation cannot be arbitraged
// between them.
func (s *ExposureStrategy) GetCurrentExposureValue() (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposureValueLocked()
}

func (s *ExposureStrategy) exposureValueLocked() (decimal.Decimal, error) {
	if s.positionID == "" {
		return decimal.Zero, nil
	}
	quote, err := s.px.GetPrice(s.asset.Address)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "price exposure asset")
	}
	size, err := s.perp.PositionSize(s.positionID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "venue position size")
	}
	// notional/size is the entry price, so mark minus notional is the
	// unrealised PnL; equity below zero is a wiped-out position
	equity := s.totalCollateral.Add(quote.Price.Mul(size).Sub(s.notional)).Floor()
	return decimal.Max(decimal.Zero, equity), nil
}

// GetValueInBaseAsset is the position value plus idle balance held at
// the strategy's address.
func (s *ExposureStrategy) GetValueInBaseAsset() (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.exposureValueLocked()
	if err != nil {
		return decimal.Zero, err
	}
	return value.Add(s.base.BalanceOf(s.addr)), nil
}

// AllocateCapital deploys collateral already transferred to the
// strategy's address, opening the position on the first allocation and
// scaling it afterwards.
func (s *ExposureStrategy) AllocateCapital(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrap(entity.ErrZeroAmount, "allocate capital")
	}

	s.mu.Lock()
	open := s.positionID != ""
	notional := entity.ProRata(amount, decimal.NewFromInt(s.leverage), decimal.NewFromInt(LeverageScale))
	s.mu.Unlock()

	var err error
	if open {
		_, err = s.AdjustExposure(notional)
	} else {
		_, err = s.OpenExposure(notional)
	}
	return err
}

// WithdrawCapital frees up to amount of base-asset value, shrinking the
// position when idle balance is short, and transfers it to the
// beneficiary.
func (s *ExposureStrategy) WithdrawCapital(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "withdraw capital")
	}

	s.mu.Lock()
	idle := s.base.BalanceOf(s.addr)
	shortfall := amount.Sub(idle)
	positionOpen := s.positionID != ""
	lev := s.leverage
	s.mu.Unlock()

	if shortfall.IsPositive() && positionOpen {
		notionalDelta := entity.ProRata(shortfall, decimal.NewFromInt(lev), decimal.NewFromInt(LeverageScale))
		if _, err := s.AdjustExposure(notionalDelta.Neg()); err != nil && !errors.Is(err, ErrSlippage) {
			return decimal.Zero, errors.Wrap(err, "shrink exposure")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	available := s.base.BalanceOf(s.addr)
	actual := decimal.Min(amount, available)
	if actual.IsPositive() {
		if err := s.base.Transfer(s.addr, s.ben, actual); err != nil {
			return decimal.Zero, errors.Wrap(err, "return capital")
		}
	}
	return actual, nil
}

// RecordFunding samples the venue's funding rate into the optimisation
// history and accrues the period's funding cost against the notional.
func (s *ExposureStrategy) RecordFunding(at time.Time) error {
	rate, err := s.perp.FundingRate()
	if err != nil {
		return errors.Wrap(err, "venue funding rate")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.funding.Record(rate, at)
	if s.positionID != "" {
		cost := rate.Mul(s.notional).Floor()
		s.unpaidFunding = decimal.Max(decimal.Zero, s.unpaidFunding.Add(cost))
	}
	return nil
}

// HarvestYield collects returns from the secondary yield allocation,
// nets them against accrued funding cost and the management fee, and
// forwards the remainder to the beneficiary.
func (s *ExposureStrategy) HarvestYield() (decimal.Decimal, error) {
	if err := s.gd.Enter("harvest yield"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	gross := decimal.Zero
	if s.secondary != nil {
		collected, err := s.secondary.CollectYield()
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "collect secondary yield")
		}
		gross = collected
	}
	if !gross.IsPositive() {
		return decimal.Zero, nil
	}

	fundingPaid := decimal.Min(gross, s.unpaidFunding)
	if fundingPaid.IsPositive() {
		if err := s.base.Transfer(s.addr, s.perp.Address(), fundingPaid); err != nil {
			return decimal.Zero, errors.Wrap(err, "settle funding")
		}
		s.unpaidFunding = s.unpaidFunding.Sub(fundingPaid)
	}

	net := gross.Sub(fundingPaid)
	fee := entity.ApplyBps(net, s.cfg.ManagementFeeBps)
	payout := net.Sub(fee)
	if payout.IsPositive() {
		if err := s.base.Transfer(s.addr, s.ben, payout); err != nil {
			return decimal.Zero, errors.Wrap(err, "pay out yield")
		}
	}
	return payout, nil
}
