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

// YieldKind selects the flavour of a yield strategy. The vault never
// sees the kind; it only changes how capital sits at the venue.
type YieldKind int

const (
	// Lending deploys everything to the venue and withdraws on demand.
	Lending YieldKind = iota
	// TokenizedBill accrues like a discount bill; principal pulled
	// before maturity pays an early-exit penalty back to the venue.
	TokenizedBill
	// Staking keeps a liquidity buffer idle so withdrawals up to the
	// buffer never touch the venue's unbonding path.
	Staking
)

func (k YieldKind) String() string {
	switch k {
	case TokenizedBill:
		return "tokenized-bill"
	case Staking:
		return "staking"
	default:
		return "lending"
	}
}

// YieldConfig parameterises a yield strategy.
type YieldConfig struct {
	Kind YieldKind
	// BufferBps is the share of each allocation kept idle (Staking).
	BufferBps int64
	// EarlyExitPenaltyBps applies to principal pulled before Maturity
	// (TokenizedBill).
	EarlyExitPenaltyBps int64
	Maturity            time.Time
}

func (c YieldConfig) validate() error {
	if err := entity.ValidateBps(c.BufferBps); err != nil {
		return errors.Wrap(err, "buffer")
	}
	if err := entity.ValidateBps(c.EarlyExitPenaltyBps); err != nil {
		return errors.Wrap(err, "early exit penalty")
	}
	if c.Kind == TokenizedBill && c.Maturity.IsZero() {
		return errors.New("tokenized-bill strategy requires a maturity")
	}
	return nil
}

// YieldStrategy deploys base-asset capital into a yield venue and
// reports value in base units.
type YieldStrategy struct {
	mu   sync.Mutex
	gd   guard.Guard
	l    *zap.Logger
	base token.Token
	addr common.Address
	ben  common.Address
	yv   venue.YieldVenue
	cfg  YieldConfig

	// now is swappable so maturity checks are testable.
	now func() time.Time
}

func NewYieldStrategy(l *zap.Logger, base token.Token, addr, beneficiary common.Address,
	yv venue.YieldVenue, cfg YieldConfig) (*YieldStrategy, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if base == nil || yv == nil {
		return nil, errors.New("token and venue are required")
	}
	if addr == (common.Address{}) || beneficiary == (common.Address{}) {
		return nil, errors.Wrap(entity.ErrZeroAddress, "yield strategy address")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "yield config")
	}
	return &YieldStrategy{
		l:    l,
		base: base,
		addr: addr,
		ben:  beneficiary,
		yv:   yv,
		cfg:  cfg,
		now:  time.Now,
	}, nil
}

func (s *YieldStrategy) Address() common.Address {
	return s.addr
}

// GetValueInBaseAsset is venue principal plus idle balance at the
// strategy's address.
func (s *YieldStrategy) GetValueInBaseAsset() (decimal.Decimal, error) {
	principal, err := s.yv.Balance()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "venue balance")
	}
	return principal.Add(s.base.BalanceOf(s.addr)), nil
}

// AllocateCapital deposits capital already transferred to the strategy's
// address, keeping the configured buffer idle.
func (s *YieldStrategy) AllocateCapital(amount decimal.Decimal) error {
	if err := s.gd.Enter("allocate capital"); err != nil {
		return err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return errors.Wrap(entity.ErrZeroAmount, "allocate capital")
	}

	deposit := amount
	if s.cfg.Kind == Staking && s.cfg.BufferBps > 0 {
		deposit = amount.Sub(entity.ApplyBps(amount, s.cfg.BufferBps))
	}
	if !deposit.IsPositive() {
		return nil
	}

	if err := s.base.Approve(s.addr, s.yv.Address(), deposit); err != nil {
		return errors.Wrap(err, "approve venue")
	}
	if err := s.yv.Deposit(deposit); err != nil {
		return errors.Wrap(err, "venue deposit")
	}
	return nil
}

// WithdrawCapital releases up to amount to the beneficiary: idle buffer
// first, venue principal for the rest. A tokenized-bill strategy pays
// the early-exit penalty on principal pulled before maturity.
func (s *YieldStrategy) WithdrawCapital(amount decimal.Decimal) (decimal.Decimal, error) {
	if err := s.gd.Enter("withdraw capital"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "withdraw capital")
	}

	idle := s.base.BalanceOf(s.addr)
	if shortfall := amount.Sub(idle); shortfall.IsPositive() {
		released, err := s.yv.Withdraw(shortfall)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "venue withdraw")
		}
		if s.cfg.Kind == TokenizedBill && s.now().Before(s.cfg.Maturity) && s.cfg.EarlyExitPenaltyBps > 0 {
			penalty := entity.ApplyBps(released, s.cfg.EarlyExitPenaltyBps)
			if penalty.IsPositive() {
				if err := s.base.Transfer(s.addr, s.yv.Address(), penalty); err != nil {
					return decimal.Zero, errors.Wrap(err, "pay early exit penalty")
				}
				s.l.Warn("early exit penalty paid",
					zap.String("kind", s.cfg.Kind.String()),
					zap.String("penalty", penalty.String()))
			}
		}
	}

	actual := decimal.Min(amount, s.base.BalanceOf(s.addr))
	if actual.IsPositive() {
		if err := s.base.Transfer(s.addr, s.ben, actual); err != nil {
			return decimal.Zero, errors.Wrap(err, "return capital")
		}
	}
	return actual, nil
}

// HarvestYield realises the venue's accrued yield and forwards it to
// the beneficiary.
func (s *YieldStrategy) HarvestYield() (decimal.Decimal, error) {
	if err := s.gd.Enter("harvest yield"); err != nil {
		return decimal.Zero, err
	}
	defer s.gd.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	collected, err := s.yv.CollectYield()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "collect yield")
	}
	if !collected.IsPositive() {
		return decimal.Zero, nil
	}
	if err := s.base.Transfer(s.addr, s.ben, collected); err != nil {
		return decimal.Zero, errors.Wrap(err, "pay out yield")
	}
	return collected, nil
}
