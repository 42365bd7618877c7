package guard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianvault/meridian/internal/entity"
)

func TestGuard_SingleEntry(t *testing.T) {
	var g Guard

	require.NoError(t, g.Enter("deposit"))
	err := g.Enter("withdraw")
	require.ErrorIs(t, err, entity.ErrReentrantCall)
	require.Contains(t, err.Error(), "withdraw")

	g.Exit()
	require.NoError(t, g.Enter("withdraw"))
	g.Exit()
}
