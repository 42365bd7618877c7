package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/internal/entity"
)

var (
	// ErrPriceUnavailable is the terminal failure after every tier
	// (override, primary, fallback, emergency) declined to answer.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrCircuitBreaker fails all reads for an asset until the breaker
	// is cleared.
	ErrCircuitBreaker = errors.New("circuit breaker triggered")
	// ErrOraclePaused fails reads for an asset whose config is paused.
	ErrOraclePaused = errors.New("oracle paused for asset")
)

type override struct {
	price  decimal.Decimal
	expiry time.Time
}

type breaker struct {
	tripped bool
	reason  string
}

// Router resolves prices through the tiered feed stack configured per
// asset in a ConfigStore. Feeds are registered by address so config can
// reference them without embedding.
type Router struct {
	mu                sync.RWMutex
	owner             common.Address
	emergencyOperator common.Address
	configs           *ConfigStore
	feeds             map[common.Address]Feed
	overrides         map[common.Address]override
	breakers          map[common.Address]breaker
	lastPrimary       map[common.Address]decimal.Decimal
	logger            *zap.Logger

	// now is swappable so staleness windows can be tested deterministically.
	now func() time.Time
}

func NewRouter(owner, emergencyOperator common.Address, configs *ConfigStore, logger *zap.Logger) (*Router, error) {
	if owner == (common.Address{}) {
		return nil, errors.Wrap(entity.ErrZeroAddress, "oracle router owner")
	}
	if configs == nil {
		return nil, errors.New("config store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		owner:             owner,
		emergencyOperator: emergencyOperator,
		configs:           configs,
		feeds:             make(map[common.Address]Feed),
		overrides:         make(map[common.Address]override),
		breakers:          make(map[common.Address]breaker),
		lastPrimary:       make(map[common.Address]decimal.Decimal),
		logger:            logger,
		now:               time.Now,
	}, nil
}

// RegisterFeed binds a feed implementation to the address oracle configs
// refer to it by.
func (r *Router) RegisterFeed(caller, addr common.Address, feed Feed) error {
	if caller != r.owner {
		return errors.Wrap(entity.ErrNotOwner, "register feed")
	}
	if addr == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "feed address")
	}
	if feed == nil {
		return errors.New("feed is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[addr] = feed
	return nil
}

// SetOverride pins a manual price for the asset until expiry. While
// unexpired it takes precedence over every feed tier.
func (r *Router) SetOverride(caller, asset common.Address, price decimal.Decimal, expiry time.Time) error {
	if caller != r.owner {
		return errors.Wrap(entity.ErrNotOwner, "set price override")
	}
	if !price.IsPositive() {
		return errors.Wrap(entity.ErrZeroAmount, "override price")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[asset] = override{price: price, expiry: expiry}
	r.logger.Info("manual price override set",
		zap.String("asset", asset.Hex()),
		zap.String("price", price.String()),
		zap.Time("expiry", expiry))
	return nil
}

// ClearOverride drops a manual override before its expiry.
func (r *Router) ClearOverride(caller, asset common.Address) error {
	if caller != r.owner {
		return errors.Wrap(entity.ErrNotOwner, "clear price override")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, asset)
	return nil
}

// TripBreaker halts all price reads for the asset. Owner or the
// designated emergency operator only.
func (r *Router) TripBreaker(caller, asset common.Address, reason string) error {
	if caller != r.owner && caller != r.emergencyOperator {
		return errors.Wrap(entity.ErrNotOwner, "trip circuit breaker")
	}
	if reason == "" {
		return errors.New("circuit breaker reason is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[asset] = breaker{tripped: true, reason: reason}
	r.logger.Warn("circuit breaker tripped",
		zap.String("asset", asset.Hex()),
		zap.String("reason", reason))
	return nil
}

// ClearBreaker re-enables price reads for the asset.
func (r *Router) ClearBreaker(caller, asset common.Address) error {
	if caller != r.owner && caller != r.emergencyOperator {
		return errors.Wrap(entity.ErrNotOwner, "clear circuit breaker")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, asset)
	r.logger.Info("circuit breaker cleared", zap.String("asset", asset.Hex()))
	return nil
}

// GetPrice resolves the asset's price in the unit of account.
//
// Resolution order: unexpired manual override, then circuit-breaker
// check, then primary if fresh, then fallback if fresh and within the
// deviation bound of the last known primary price, then emergency.
func (r *Router) GetPrice(asset common.Address) (entity.PriceQuote, error) {
	now := r.now()

	r.mu.RLock()
	ovr, hasOverride := r.overrides[asset]
	brk := r.breakers[asset]
	r.mu.RUnlock()

	if hasOverride && now.Before(ovr.expiry) {
		return entity.PriceQuote{Price: ovr.price, UpdatedAt: now, Source: entity.SourceOverride}, nil
	}

	if brk.tripped {
		return entity.PriceQuote{}, errors.Wrapf(ErrCircuitBreaker, "asset %s: %s", asset.Hex(), brk.reason)
	}

	cfg, err := r.configs.Get(asset)
	if err != nil {
		return entity.PriceQuote{}, errors.Wrap(ErrPriceUnavailable, err.Error())
	}
	if cfg.IsPaused {
		return entity.PriceQuote{}, errors.Wrapf(ErrOraclePaused, "asset %s", asset.Hex())
	}

	if round, err := r.readFeed(cfg.Primary, asset); err == nil && round.Usable() {
		if round.Age(now) <= cfg.MaxStaleness {
			r.mu.Lock()
			r.lastPrimary[asset] = round.Answer
			r.mu.Unlock()
			return entity.PriceQuote{Price: round.Answer, UpdatedAt: round.UpdatedAt, Source: entity.SourcePrimary}, nil
		}
		// stale primary still anchors the fallback deviation check
		r.mu.Lock()
		r.lastPrimary[asset] = round.Answer
		r.mu.Unlock()
	}

	if quote, ok := r.tryFallback(cfg, asset, now); ok {
		return quote, nil
	}

	if round, err := r.readFeed(cfg.Emergency, asset); err == nil && round.Usable() {
		r.logger.Warn("price resolved via emergency oracle",
			zap.String("asset", asset.Hex()),
			zap.String("price", round.Answer.String()))
		return entity.PriceQuote{Price: round.Answer, UpdatedAt: round.UpdatedAt, Source: entity.SourceEmergency}, nil
	}

	return entity.PriceQuote{}, errors.Wrapf(ErrPriceUnavailable, "asset %s: all oracle tiers exhausted", asset.Hex())
}

func (r *Router) tryFallback(cfg Config, asset common.Address, now time.Time) (entity.PriceQuote, bool) {
	round, err := r.readFeed(cfg.Fallback, asset)
	if err != nil || !round.Usable() || round.Age(now) > cfg.MaxStaleness {
		return entity.PriceQuote{}, false
	}

	r.mu.RLock()
	anchor, hasAnchor := r.lastPrimary[asset]
	r.mu.RUnlock()

	if hasAnchor && anchor.IsPositive() {
		if dev := entity.RelativeDeviationBps(round.Answer, anchor); dev > cfg.MaxDeviationBps {
			r.logger.Warn("fallback price rejected on deviation",
				zap.String("asset", asset.Hex()),
				zap.String("fallback", round.Answer.String()),
				zap.String("anchor", anchor.String()),
				zap.Int64("deviation_bps", dev))
			return entity.PriceQuote{}, false
		}
	}

	return entity.PriceQuote{Price: round.Answer, UpdatedAt: round.UpdatedAt, Source: entity.SourceFallback}, true
}

func (r *Router) readFeed(addr, asset common.Address) (entity.RoundData, error) {
	if addr == (common.Address{}) {
		return entity.RoundData{}, errors.New("feed not configured")
	}
	r.mu.RLock()
	feed, ok := r.feeds[addr]
	r.mu.RUnlock()
	if !ok {
		return entity.RoundData{}, errors.Errorf("feed %s not registered", addr.Hex())
	}
	return feed.LatestRoundData(asset)
}
