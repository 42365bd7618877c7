package router

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/meridianvault/meridian/internal/entity"
)

type pairKey struct {
	in  common.Address
	out common.Address
}

// StaticAdapter quotes from a fixed rate table with a configurable
// execution haircut. Used in simulation and tests.
type StaticAdapter struct {
	mu          sync.RWMutex
	rates       map[pairKey]decimal.Decimal
	slippageBps int64 // haircut applied to execution relative to the quote
}

func NewStaticAdapter(slippageBps int64) (*StaticAdapter, error) {
	if err := entity.ValidateBps(slippageBps); err != nil {
		return nil, errors.Wrap(err, "adapter slippage")
	}
	return &StaticAdapter{
		rates:       make(map[pairKey]decimal.Decimal),
		slippageBps: slippageBps,
	}, nil
}

// SetRate fixes the tokenIn -> tokenOut conversion rate.
func (a *StaticAdapter) SetRate(tokenIn, tokenOut common.Address, rate decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rates[pairKey{in: tokenIn, out: tokenOut}] = rate
}

func (a *StaticAdapter) Supports(tokenIn, tokenOut common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.rates[pairKey{in: tokenIn, out: tokenOut}]
	return ok
}

func (a *StaticAdapter) ExpectedOut(tokenIn, tokenOut common.Address, amountIn decimal.Decimal) (decimal.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rate, ok := a.rates[pairKey{in: tokenIn, out: tokenOut}]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrNoAdapter, "%s -> %s", tokenIn.Hex(), tokenOut.Hex())
	}
	return amountIn.Mul(rate).Floor(), nil
}

func (a *StaticAdapter) Swap(tokenIn, tokenOut common.Address, amountIn, minAmountOut decimal.Decimal) (decimal.Decimal, error) {
	expected, err := a.ExpectedOut(tokenIn, tokenOut, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	out := entity.ApplyBps(expected, entity.MaxBps-a.slippageBps)
	if out.LessThan(minAmountOut) {
		return decimal.Zero, errors.Wrapf(ErrInsufficientOutput, "got %s, want at least %s", out, minAmountOut)
	}
	return out, nil
}
