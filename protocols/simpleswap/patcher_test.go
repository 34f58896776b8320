package simpleswap

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatcher(t *testing.T) {
	t.Run("should handle an empty diff", func(t *testing.T) {
		newState, err := Patcher(basePool(), PoolDiff{})
		require.NoError(t, err)
		assert.Equal(t, basePool(), newState)
	})

	t.Run("should apply updates", func(t *testing.T) {
		diff := PoolDiff{Reserve0: big.NewInt(1100), ShareSupply: big.NewInt(1500)}

		newState, err := Patcher(basePool(), diff)
		require.NoError(t, err)
		assert.Equal(t, int64(1100), newState.Reserve0.Int64())
		assert.Equal(t, int64(2000), newState.Reserve1.Int64(), "untouched field must carry over")
		assert.Equal(t, int64(1500), newState.ShareSupply.Int64())
	})

	t.Run("should verify deep copy", func(t *testing.T) {
		prev := basePool()
		diff := PoolDiff{Reserve1: big.NewInt(2500)}

		newState, err := Patcher(prev, diff)
		require.NoError(t, err)

		// Mutating the inputs after the patch must not leak into the result.
		prev.Reserve0.SetInt64(9999)
		diff.Reserve1.SetInt64(9999)
		assert.Equal(t, int64(1000), newState.Reserve0.Int64())
		assert.Equal(t, int64(2500), newState.Reserve1.Int64())
	})

	t.Run("should round trip with Differ", func(t *testing.T) {
		next := basePool()
		next.Reserve0 = big.NewInt(1010)
		next.Reserve1 = big.NewInt(1981)

		diff, err := Differ(basePool(), next)
		require.NoError(t, err)
		patched, err := Patcher(basePool(), diff)
		require.NoError(t, err)
		assert.Equal(t, next, patched)
	})
}
