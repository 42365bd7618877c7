package venue

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianvault/meridian/internal/entity"
	"github.com/meridianvault/meridian/internal/token"
)

var (
	perpAddr  = entity.DeriveAddress("test/venue/perp")
	yieldAddr = entity.DeriveAddress("test/venue/yield")
	trader    = entity.DeriveAddress("test/venue/trader")
)

func newPerpFixture(t *testing.T) (*token.LedgerToken, *SimulatePerp) {
	t.Helper()
	ledger := token.NewLedgerToken("USDC")
	require.NoError(t, ledger.Mint(trader, decimal.NewFromInt(100_000)))
	require.NoError(t, ledger.Approve(trader, perpAddr, decimal.NewFromInt(100_000)))
	return ledger, NewSimulatePerp(nil, ledger, perpAddr, trader)
}

func TestPerp_OpenPullsCollateral(t *testing.T) {
	ledger, perp := newPerpFixture(t)

	id, err := perp.OpenPosition(decimal.NewFromInt(10_000), decimal.NewFromInt(10))
	require.NoError(t, err)
	require.True(t, ledger.BalanceOf(perpAddr).Equal(decimal.NewFromInt(10_000)))
	require.True(t, ledger.BalanceOf(trader).Equal(decimal.NewFromInt(90_000)))

	size, err := perp.PositionSize(id)
	require.NoError(t, err)
	require.True(t, size.Equal(decimal.NewFromInt(10)))
}

func TestPerp_ResizeScalesCollateral(t *testing.T) {
	ledger, perp := newPerpFixture(t)
	id, err := perp.OpenPosition(decimal.NewFromInt(10_000), decimal.NewFromInt(10))
	require.NoError(t, err)

	// halving the size releases half the collateral
	require.NoError(t, perp.ResizePosition(id, decimal.NewFromInt(5)))
	require.True(t, ledger.BalanceOf(perpAddr).Equal(decimal.NewFromInt(5_000)))

	// growing it pulls the difference back in
	require.NoError(t, perp.ResizePosition(id, decimal.NewFromInt(15)))
	require.True(t, ledger.BalanceOf(perpAddr).Equal(decimal.NewFromInt(15_000)))
}

func TestPerp_CloseSettlesPnL(t *testing.T) {
	ledger, perp := newPerpFixture(t)
	id, err := perp.OpenPosition(decimal.NewFromInt(10_000), decimal.NewFromInt(10))
	require.NoError(t, err)

	perp.SetMarkShift(decimal.NewFromFloat(0.9))
	recovered, err := perp.ClosePosition(id)
	require.NoError(t, err)
	require.True(t, recovered.Equal(decimal.NewFromInt(9_000)))
	require.True(t, ledger.BalanceOf(trader).Equal(decimal.NewFromInt(99_000)))
	// the loss left the system entirely
	require.True(t, ledger.TotalSupply().Equal(decimal.NewFromInt(99_000)))

	_, err = perp.PositionSize(id)
	require.Error(t, err)
}

func TestPerp_FailNext(t *testing.T) {
	_, perp := newPerpFixture(t)
	perp.FailNext(errors.New("venue down"))

	_, err := perp.OpenPosition(decimal.NewFromInt(100), decimal.NewFromInt(1))
	require.Error(t, err)

	// the failure is one-shot
	_, err = perp.OpenPosition(decimal.NewFromInt(100), decimal.NewFromInt(1))
	require.NoError(t, err)
}

func newYieldFixture(t *testing.T) (*token.LedgerToken, *SimulateYield) {
	t.Helper()
	ledger := token.NewLedgerToken("USDC")
	require.NoError(t, ledger.Mint(trader, decimal.NewFromInt(10_000)))
	require.NoError(t, ledger.Approve(trader, yieldAddr, decimal.NewFromInt(10_000)))
	return ledger, NewSimulateYield(ledger, yieldAddr, trader)
}

func TestYield_DepositWithdrawRoundTrip(t *testing.T) {
	ledger, yv := newYieldFixture(t)

	require.NoError(t, yv.Deposit(decimal.NewFromInt(6_000)))
	balance, err := yv.Balance()
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(6_000)))

	released, err := yv.Withdraw(decimal.NewFromInt(10_000))
	require.NoError(t, err)
	// capped at principal
	require.True(t, released.Equal(decimal.NewFromInt(6_000)))
	require.True(t, ledger.BalanceOf(trader).Equal(decimal.NewFromInt(10_000)))
}

func TestYield_LiquidityCap(t *testing.T) {
	_, yv := newYieldFixture(t)
	require.NoError(t, yv.Deposit(decimal.NewFromInt(6_000)))
	yv.LimitLiquidity(decimal.NewFromInt(4_000))

	released, err := yv.Withdraw(decimal.NewFromInt(6_000))
	require.NoError(t, err)
	require.True(t, released.Equal(decimal.NewFromInt(4_000)))
}

func TestYield_CollectMintsAccrued(t *testing.T) {
	ledger, yv := newYieldFixture(t)
	require.NoError(t, yv.Deposit(decimal.NewFromInt(5_000)))
	yv.Accrue(decimal.NewFromInt(250))

	out, err := yv.CollectYield()
	require.NoError(t, err)
	require.True(t, out.Equal(decimal.NewFromInt(250)))
	require.True(t, ledger.BalanceOf(trader).Equal(decimal.NewFromInt(5_250)))

	// a second collection has nothing to pay
	out, err = yv.CollectYield()
	require.NoError(t, err)
	require.True(t, out.IsZero())
}
