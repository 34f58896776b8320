package differ

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/protocols/simpleswap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeState(sequence uint64, reserve0, reserve1, supply int64) *engine.State {
	return &engine.State{
		Sequence:  sequence,
		Timestamp: 1_000 + sequence,
		Schema:    engine.PoolSchema,
		Pool: simpleswap.Pool{
			Address:     common.HexToAddress("0x9001"),
			Token0:      common.HexToAddress("0xa0"),
			Token1:      common.HexToAddress("0xa1"),
			Reserve0:    big.NewInt(reserve0),
			Reserve1:    big.NewInt(reserve1),
			ShareSupply: big.NewInt(supply),
			FeeBps:      simpleswap.FeeBps,
		},
	}
}

func newTestDiffer(t *testing.T) *StateDiffer {
	t.Helper()
	d, err := NewStateDiffer(&StateDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func TestNewStateDiffer(t *testing.T) {
	t.Run("should fail without a registry", func(t *testing.T) {
		_, err := NewStateDiffer(&StateDifferConfig{Logger: slog.Default()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Registry")
	})

	t.Run("should fail without a logger", func(t *testing.T) {
		_, err := NewStateDiffer(&StateDifferConfig{Registry: prometheus.NewRegistry()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Logger")
	})
}

func TestStateDiffer_Diff(t *testing.T) {
	d := newTestDiffer(t)

	t.Run("should carry only changed pool fields", func(t *testing.T) {
		diff, err := d.Diff(makeState(1, 100, 100, 100), makeState(2, 110, 91, 100))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), diff.FromSequence)
		assert.Equal(t, uint64(2), diff.ToSequence)
		assert.Equal(t, uint64(1_002), diff.Timestamp)
		assert.Equal(t, engine.PoolSchema, diff.Schema)
		assert.Equal(t, "110", diff.Pool.Reserve0.String())
		assert.Equal(t, "91", diff.Pool.Reserve1.String())
		assert.Nil(t, diff.Pool.ShareSupply)
	})

	t.Run("should produce an empty diff for identical pools", func(t *testing.T) {
		diff, err := d.Diff(makeState(1, 5, 5, 5), makeState(2, 5, 5, 5))
		require.NoError(t, err)
		assert.True(t, diff.Pool.IsEmpty())
	})

	t.Run("should reject a sequence that does not advance", func(t *testing.T) {
		_, err := d.Diff(makeState(3, 1, 1, 1), makeState(3, 2, 2, 2))
		require.Error(t, err)
	})

	t.Run("should reject states carrying errors", func(t *testing.T) {
		bad := makeState(2, 1, 1, 1)
		bad.Error = "capture failed"
		_, err := d.Diff(makeState(1, 1, 1, 1), bad)
		require.Error(t, err)
	})

	t.Run("should reject a different pool", func(t *testing.T) {
		other := makeState(2, 1, 1, 1)
		other.Pool.Address = common.HexToAddress("0x9002")
		_, err := d.Diff(makeState(1, 1, 1, 1), other)
		require.ErrorIs(t, err, simpleswap.ErrIdentityChanged)
	})
}
