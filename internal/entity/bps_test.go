package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidateBps(t *testing.T) {
	require.NoError(t, ValidateBps(0))
	require.NoError(t, ValidateBps(10000))
	require.Error(t, ValidateBps(-1))
	require.Error(t, ValidateBps(10001))
}

func TestApplyBps_FloorsTowardPool(t *testing.T) {
	cases := []struct {
		value    int64
		bps      int64
		expected int64
	}{
		{10000, 5000, 5000},
		{10000, 10000, 10000},
		{10000, 0, 0},
		{3, 3333, 0},     // 0.9999 floors to 0
		{1001, 5000, 500}, // 500.5 floors to 500
		{999, 10000, 999},
	}
	for _, c := range cases {
		got := ApplyBps(decimal.NewFromInt(c.value), c.bps)
		require.True(t, got.Equal(decimal.NewFromInt(c.expected)),
			"ApplyBps(%d, %d) = %s, want %d", c.value, c.bps, got, c.expected)
	}
}

func TestProRata_MultiplicationBeforeDivision(t *testing.T) {
	// 1*2/3 floored is 0; 1000000*1/3 keeps precision before flooring
	got := ProRata(decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3))
	require.True(t, got.Equal(decimal.Zero))

	got = ProRata(decimal.NewFromInt(1_000_000), decimal.NewFromInt(1), decimal.NewFromInt(3))
	require.True(t, got.Equal(decimal.NewFromInt(333_333)))
}

func TestRelativeDeviationBps(t *testing.T) {
	dev := RelativeDeviationBps(decimal.NewFromInt(800), decimal.NewFromInt(1000))
	require.Equal(t, int64(2000), dev)

	dev = RelativeDeviationBps(decimal.NewFromInt(990), decimal.NewFromInt(1000))
	require.Equal(t, int64(100), dev)

	dev = RelativeDeviationBps(decimal.NewFromInt(1000), decimal.NewFromInt(1000))
	require.Equal(t, int64(0), dev)

	// zero anchor is treated as maximally deviant
	dev = RelativeDeviationBps(decimal.NewFromInt(100), decimal.Zero)
	require.Equal(t, MaxBps, dev)
}

func TestFundingHistory_Eviction(t *testing.T) {
	h := NewFundingHistory(3)
	for i := 1; i <= 5; i++ {
		h.Record(decimal.NewFromInt(int64(i)), time.Unix(int64(i), 0))
	}
	require.Equal(t, 3, h.Len())
	rates := h.Rates()
	require.True(t, rates[0].Equal(decimal.NewFromInt(3)))
	require.True(t, h.Latest().Equal(decimal.NewFromInt(5)))
}

func TestNewAsset_Validation(t *testing.T) {
	_, err := NewAsset("", DeriveAddress("x"))
	require.Error(t, err)

	a, err := NewAsset("ETH", DeriveAddress("eth"))
	require.NoError(t, err)
	require.Equal(t, "ETH", a.Symbol)
}

func TestDeriveAddress_Deterministic(t *testing.T) {
	require.Equal(t, DeriveAddress("vault"), DeriveAddress("vault"))
	require.NotEqual(t, DeriveAddress("vault"), DeriveAddress("wrapper"))
}
