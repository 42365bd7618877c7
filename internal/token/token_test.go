package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridianvault/meridian/internal/entity"
)

var (
	alice = entity.DeriveAddress("test/alice")
	bob   = entity.DeriveAddress("test/bob")
	carol = entity.DeriveAddress("test/carol")
)

func TestLedgerToken_TransferAndBalance(t *testing.T) {
	tok := NewLedgerToken("USDC")
	require.NoError(t, tok.Mint(alice, decimal.NewFromInt(1000)))

	require.NoError(t, tok.Transfer(alice, bob, decimal.NewFromInt(400)))
	require.True(t, tok.BalanceOf(alice).Equal(decimal.NewFromInt(600)))
	require.True(t, tok.BalanceOf(bob).Equal(decimal.NewFromInt(400)))
	require.True(t, tok.TotalSupply().Equal(decimal.NewFromInt(1000)))
}

func TestLedgerToken_TransferFailures(t *testing.T) {
	tok := NewLedgerToken("USDC")
	require.NoError(t, tok.Mint(alice, decimal.NewFromInt(100)))

	err := tok.Transfer(alice, bob, decimal.NewFromInt(101))
	require.ErrorIs(t, err, entity.ErrInsufficientBalance)
	require.True(t, tok.BalanceOf(alice).Equal(decimal.NewFromInt(100)))

	require.ErrorIs(t, tok.Transfer(alice, bob, decimal.Zero), entity.ErrZeroAmount)
	require.ErrorIs(t, tok.Transfer(alice, common.Address{}, decimal.NewFromInt(1)), entity.ErrZeroAddress)
}

func TestLedgerToken_TransferFromRespectsAllowance(t *testing.T) {
	tok := NewLedgerToken("USDC")
	require.NoError(t, tok.Mint(alice, decimal.NewFromInt(1000)))
	require.NoError(t, tok.Approve(alice, carol, decimal.NewFromInt(300)))

	require.NoError(t, tok.TransferFrom(carol, alice, bob, decimal.NewFromInt(200)))
	require.True(t, tok.Allowance(alice, carol).Equal(decimal.NewFromInt(100)))

	err := tok.TransferFrom(carol, alice, bob, decimal.NewFromInt(200))
	require.ErrorIs(t, err, entity.ErrInsufficientBalance)
}

func TestLedgerToken_BurnFailsOverBalance(t *testing.T) {
	tok := NewLedgerToken("mSHARE")
	require.NoError(t, tok.Mint(alice, decimal.NewFromInt(50)))

	require.ErrorIs(t, tok.Burn(alice, decimal.NewFromInt(51)), entity.ErrInsufficientBalance)
	require.NoError(t, tok.Burn(alice, decimal.NewFromInt(50)))
	require.True(t, tok.TotalSupply().IsZero())
}
