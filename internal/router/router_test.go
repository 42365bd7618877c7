package router

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianvault/meridian/internal/entity"
)

var (
	owner    = entity.DeriveAddress("test/router/owner")
	stranger = entity.DeriveAddress("test/router/stranger")
	usdc     = entity.DeriveAddress("test/token/usdc")
	weth     = entity.DeriveAddress("test/token/weth")
	adapterA = entity.DeriveAddress("test/adapter/a")
	adapterB = entity.DeriveAddress("test/adapter/b")
)

func newRouterFixture(t *testing.T) *Router {
	t.Helper()
	r, err := New(owner, nil)
	require.NoError(t, err)
	return r
}

func TestRegister_OwnerGated(t *testing.T) {
	r := newRouterFixture(t)
	adapter, err := NewStaticAdapter(0)
	require.NoError(t, err)

	err = r.Register(stranger, adapterA, adapter)
	require.ErrorIs(t, err, entity.ErrNotOwner)
	require.Equal(t, 0, r.Count())

	require.NoError(t, r.Register(owner, adapterA, adapter))
	require.True(t, r.Has(adapterA))
	require.Equal(t, 1, r.Count())

	// same address twice is rejected
	require.Error(t, r.Register(owner, adapterA, adapter))
}

func TestDeregister(t *testing.T) {
	r := newRouterFixture(t)
	adapter, err := NewStaticAdapter(0)
	require.NoError(t, err)
	require.NoError(t, r.Register(owner, adapterA, adapter))

	require.ErrorIs(t, r.Deregister(stranger, adapterA), entity.ErrNotOwner)
	require.NoError(t, r.Deregister(owner, adapterA))
	require.False(t, r.Has(adapterA))
	require.Error(t, r.Deregister(owner, adapterA))
}

func TestSwap_RoutesThroughBestQuote(t *testing.T) {
	r := newRouterFixture(t)

	cheap, err := NewStaticAdapter(0)
	require.NoError(t, err)
	cheap.SetRate(usdc, weth, decimal.NewFromFloat(0.00049))

	rich, err := NewStaticAdapter(0)
	require.NoError(t, err)
	rich.SetRate(usdc, weth, decimal.NewFromFloat(0.0005))

	require.NoError(t, r.Register(owner, adapterA, cheap))
	require.NoError(t, r.Register(owner, adapterB, rich))

	amountIn := decimal.NewFromInt(1_000_000)
	expected, err := r.GetExpectedAmount(usdc, weth, amountIn)
	require.NoError(t, err)
	require.True(t, expected.Equal(decimal.NewFromInt(500)), "expected %s", expected)

	out, err := r.Swap(usdc, weth, amountIn, decimal.NewFromInt(500))
	require.NoError(t, err)
	require.True(t, out.Equal(decimal.NewFromInt(500)))
}

func TestSwap_EqualQuoteKeepsEarlierAdapter(t *testing.T) {
	r := newRouterFixture(t)

	first, err := NewStaticAdapter(0)
	require.NoError(t, err)
	first.SetRate(usdc, weth, decimal.NewFromFloat(0.0005))

	// identical rate but a 1% execution haircut: if it were chosen the
	// actual output would drop below the quote
	second, err := NewStaticAdapter(100)
	require.NoError(t, err)
	second.SetRate(usdc, weth, decimal.NewFromFloat(0.0005))

	require.NoError(t, r.Register(owner, adapterA, first))
	require.NoError(t, r.Register(owner, adapterB, second))

	out, err := r.Swap(usdc, weth, decimal.NewFromInt(1_000_000), decimal.NewFromInt(500))
	require.NoError(t, err)
	require.True(t, out.Equal(decimal.NewFromInt(500)))
}

func TestSwap_EnforcesMinimumOutput(t *testing.T) {
	r := newRouterFixture(t)

	adapter, err := NewStaticAdapter(200) // 2% haircut on execution
	require.NoError(t, err)
	adapter.SetRate(usdc, weth, decimal.NewFromFloat(0.0005))
	require.NoError(t, r.Register(owner, adapterA, adapter))

	// quote says 500 but execution delivers 490
	_, err = r.Swap(usdc, weth, decimal.NewFromInt(1_000_000), decimal.NewFromInt(495))
	require.ErrorIs(t, err, ErrInsufficientOutput)

	out, err := r.Swap(usdc, weth, decimal.NewFromInt(1_000_000), decimal.NewFromInt(490))
	require.NoError(t, err)
	require.True(t, out.Equal(decimal.NewFromInt(490)))
}

func TestSwap_NoAdapterForPair(t *testing.T) {
	r := newRouterFixture(t)

	adapter, err := NewStaticAdapter(0)
	require.NoError(t, err)
	adapter.SetRate(usdc, weth, decimal.NewFromFloat(0.0005))
	require.NoError(t, r.Register(owner, adapterA, adapter))

	// reverse direction was never configured
	_, err = r.Swap(weth, usdc, decimal.NewFromInt(10), decimal.Zero)
	require.ErrorIs(t, err, ErrNoAdapter)

	_, err = r.GetExpectedAmount(weth, usdc, decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrNoAdapter)
}

func TestSwap_RejectsZeroAmount(t *testing.T) {
	r := newRouterFixture(t)
	_, err := r.Swap(usdc, weth, decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, entity.ErrZeroAmount)
}
