// Package router selects the best-priced swap adapter for a token pair
// and executes the swap through that adapter only. Concrete DEX adapter
// plumbing lives outside the engine; StaticAdapter covers simulation.
package router

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/internal/entity"
)

var (
	// ErrNoAdapter is returned when no registered adapter supports the pair.
	ErrNoAdapter = errors.New("no adapter supports pair")
	// ErrInsufficientOutput is returned when the chosen adapter's actual
	// output falls below the caller's minimum.
	ErrInsufficientOutput = errors.New("swap output below minimum")
)

// SwapAdapter is one DEX venue the router can route through.
type SwapAdapter interface {
	Supports(tokenIn, tokenOut common.Address) bool
	ExpectedOut(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) (decimal.Decimal, error)
	Swap(tokenIn, tokenOut common.Address, amountIn, minAmountOut decimal.Decimal) (decimal.Decimal, error)
}

// Router holds the registered adapter set. Registration is owner-gated
// and keyed by adapter address for membership tests.
type Router struct {
	mu       sync.RWMutex
	owner    common.Address
	logger   *zap.Logger
	adapters map[common.Address]SwapAdapter
	order    []common.Address // registration order, the quote tie-break
}

func New(owner common.Address, logger *zap.Logger) (*Router, error) {
	if owner == (common.Address{}) {
		return nil, errors.Wrap(entity.ErrZeroAddress, "router owner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		owner:    owner,
		logger:   logger,
		adapters: make(map[common.Address]SwapAdapter),
	}, nil
}

// Register adds an adapter under its address.
func (r *Router) Register(caller, addr common.Address, adapter SwapAdapter) error {
	if caller != r.owner {
		return errors.Wrap(entity.ErrNotOwner, "register adapter")
	}
	if addr == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "adapter address")
	}
	if adapter == nil {
		return errors.New("adapter is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[addr]; exists {
		return errors.Errorf("adapter %s already registered", addr.Hex())
	}
	r.adapters[addr] = adapter
	r.order = append(r.order, addr)
	return nil
}

// Deregister removes an adapter.
func (r *Router) Deregister(caller, addr common.Address) error {
	if caller != r.owner {
		return errors.Wrap(entity.ErrNotOwner, "deregister adapter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[addr]; !exists {
		return errors.Errorf("adapter %s not registered", addr.Hex())
	}
	delete(r.adapters, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Has reports adapter membership.
func (r *Router) Has(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[addr]
	return ok
}

// Count returns the number of registered adapters.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// GetExpectedAmount quotes the best output among supporting adapters.
func (r *Router) GetExpectedAmount(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) (decimal.Decimal, error) {
	_, best, err := r.selectAdapter(tokenIn, tokenOut, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	return best, nil
}

// Swap executes through the single best-quoting adapter and enforces
// the caller's minimum on the actual output.
func (r *Router) Swap(tokenIn, tokenOut common.Address, amountIn, minAmountOut decimal.Decimal) (decimal.Decimal, error) {
	if !amountIn.IsPositive() {
		return decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "swap amount")
	}

	adapter, expected, err := r.selectAdapter(tokenIn, tokenOut, amountIn)
	if err != nil {
		return decimal.Zero, err
	}

	out, err := adapter.Swap(tokenIn, tokenOut, amountIn, minAmountOut)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "adapter swap")
	}
	if out.LessThan(minAmountOut) {
		return decimal.Zero, errors.Wrapf(ErrInsufficientOutput, "got %s, want at least %s", out, minAmountOut)
	}

	r.logger.Info("swap routed",
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("expected", expected.String()),
		zap.String("actual", out.String()))
	return out, nil
}

// selectAdapter returns the adapter with the strictly greatest quote,
// visiting adapters in registration order so an equal quote never
// displaces an earlier one.
func (r *Router) selectAdapter(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) (SwapAdapter, decimal.Decimal, error) {
	if !amountIn.IsPositive() {
		return nil, decimal.Zero, errors.Wrap(entity.ErrZeroAmount, "quote amount")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best      SwapAdapter
		bestQuote decimal.Decimal
	)
	for _, addr := range r.order {
		adapter := r.adapters[addr]
		if !adapter.Supports(tokenIn, tokenOut) {
			continue
		}
		quote, err := adapter.ExpectedOut(tokenIn, tokenOut, amountIn)
		if err != nil {
			r.logger.Warn("adapter quote failed",
				zap.String("adapter", addr.Hex()),
				zap.Error(err))
			continue
		}
		if best == nil || quote.GreaterThan(bestQuote) {
			best = adapter
			bestQuote = quote
		}
	}
	if best == nil {
		return nil, decimal.Zero, errors.Wrapf(ErrNoAdapter, "%s -> %s", tokenIn.Hex(), tokenOut.Hex())
	}
	return best, bestQuote, nil
}
