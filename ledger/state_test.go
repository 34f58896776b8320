package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	carol = common.HexToAddress("0xca401")

	tokenA = TokenMeta{Address: common.HexToAddress("0x1000"), Name: "Token A", Symbol: "TKA", Decimals: 18}
	tokenB = TokenMeta{Address: common.HexToAddress("0x2000"), Name: "Token B", Symbol: "TKB", Decimals: 6}
)

func n(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func newFundedToken(t *testing.T) (*State, *Token) {
	t.Helper()
	s := NewState()
	tok, err := s.Deploy(tokenA)
	require.NoError(t, err)
	require.NoError(t, tok.Mint(alice, n(1_000)))
	return s, tok
}

func TestDeploy(t *testing.T) {
	s := NewState()

	t.Run("should deploy and resolve tokens", func(t *testing.T) {
		tok, err := s.Deploy(tokenA)
		require.NoError(t, err)
		assert.Equal(t, tokenA.Address, tok.Address())
		assert.Equal(t, tokenA, tok.Meta())

		resolved, err := s.Token(tokenA.Address)
		require.NoError(t, err)
		assert.Equal(t, tok.Address(), resolved.Address())
	})

	t.Run("should reject duplicate addresses", func(t *testing.T) {
		_, err := s.Deploy(tokenA)
		assert.ErrorIs(t, err, ErrTokenExists)
	})

	t.Run("should reject the zero address", func(t *testing.T) {
		_, err := s.Deploy(TokenMeta{Symbol: "ZERO"})
		assert.Error(t, err)
	})

	t.Run("should fail to resolve unknown tokens", func(t *testing.T) {
		_, err := s.Token(common.HexToAddress("0xdead"))
		assert.ErrorIs(t, err, ErrUnknownToken)
	})

	t.Run("should list tokens ordered by address", func(t *testing.T) {
		_, err := s.Deploy(tokenB)
		require.NoError(t, err)
		metas := s.Tokens()
		require.Len(t, metas, 2)
		assert.Equal(t, tokenA.Address, metas[0].Address)
		assert.Equal(t, tokenB.Address, metas[1].Address)
	})
}

func TestTransfers(t *testing.T) {
	t.Run("should move balances", func(t *testing.T) {
		_, tok := newFundedToken(t)

		require.NoError(t, tok.Transfer(alice, bob, n(300)))
		assert.Equal(t, uint64(700), tok.BalanceOf(alice).Uint64())
		assert.Equal(t, uint64(300), tok.BalanceOf(bob).Uint64())
		assert.Equal(t, uint64(1_000), tok.TotalSupply().Uint64(), "transfers must not change supply")
	})

	t.Run("should reject overdrafts", func(t *testing.T) {
		_, tok := newFundedToken(t)

		err := tok.Transfer(alice, bob, n(1_001))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, uint64(1_000), tok.BalanceOf(alice).Uint64())
		assert.True(t, tok.BalanceOf(bob).IsZero())
	})

	t.Run("should treat self transfers as no-ops", func(t *testing.T) {
		_, tok := newFundedToken(t)

		require.NoError(t, tok.Transfer(alice, alice, n(500)))
		assert.Equal(t, uint64(1_000), tok.BalanceOf(alice).Uint64())
	})

	t.Run("should consume allowance on TransferFrom", func(t *testing.T) {
		_, tok := newFundedToken(t)

		require.NoError(t, tok.Approve(alice, bob, n(400)))
		require.NoError(t, tok.TransferFrom(bob, alice, carol, n(150)))

		assert.Equal(t, uint64(250), tok.Allowance(alice, bob).Uint64())
		assert.Equal(t, uint64(150), tok.BalanceOf(carol).Uint64())
		assert.Equal(t, uint64(850), tok.BalanceOf(alice).Uint64())

		err := tok.TransferFrom(bob, alice, carol, n(251))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("should not decrement an unlimited allowance", func(t *testing.T) {
		_, tok := newFundedToken(t)

		require.NoError(t, tok.Approve(alice, bob, maxUint256))
		require.NoError(t, tok.TransferFrom(bob, alice, carol, n(10)))
		assert.True(t, tok.Allowance(alice, bob).Eq(maxUint256))
	})

	t.Run("should return copies", func(t *testing.T) {
		_, tok := newFundedToken(t)

		b := tok.BalanceOf(alice)
		b.SetUint64(0)
		assert.Equal(t, uint64(1_000), tok.BalanceOf(alice).Uint64())
	})

	t.Run("should reject nil amounts", func(t *testing.T) {
		_, tok := newFundedToken(t)
		assert.ErrorIs(t, tok.Transfer(alice, bob, nil), ErrNilAmount)
		assert.ErrorIs(t, tok.Mint(alice, nil), ErrNilAmount)
	})
}

func TestMintBurn(t *testing.T) {
	t.Run("should track supply", func(t *testing.T) {
		_, tok := newFundedToken(t)

		require.NoError(t, tok.Mint(bob, n(500)))
		assert.Equal(t, uint64(1_500), tok.TotalSupply().Uint64())

		require.NoError(t, tok.Burn(alice, n(1_000)))
		assert.Equal(t, uint64(500), tok.TotalSupply().Uint64())
		assert.True(t, tok.BalanceOf(alice).IsZero())
	})

	t.Run("should refuse to burn more than held", func(t *testing.T) {
		_, tok := newFundedToken(t)

		err := tok.Burn(alice, n(1_001))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, uint64(1_000), tok.TotalSupply().Uint64())
	})

	t.Run("should refuse to overflow supply", func(t *testing.T) {
		_, tok := newFundedToken(t)

		err := tok.Mint(bob, maxUint256)
		assert.ErrorIs(t, err, ErrSupplyOverflow)
		assert.Equal(t, uint64(1_000), tok.TotalSupply().Uint64())
	})
}

func TestSnapshots(t *testing.T) {
	t.Run("should revert every write after the snapshot", func(t *testing.T) {
		s, tok := newFundedToken(t)

		snap := s.Snapshot()
		require.NoError(t, tok.Transfer(alice, bob, n(100)))
		require.NoError(t, tok.Approve(alice, carol, n(50)))
		require.NoError(t, tok.Mint(carol, n(7)))
		require.NoError(t, tok.Burn(alice, n(1)))

		s.RevertToSnapshot(snap)

		assert.Equal(t, uint64(1_000), tok.BalanceOf(alice).Uint64())
		assert.True(t, tok.BalanceOf(bob).IsZero())
		assert.True(t, tok.BalanceOf(carol).IsZero())
		assert.True(t, tok.Allowance(alice, carol).IsZero())
		assert.Equal(t, uint64(1_000), tok.TotalSupply().Uint64())
	})

	t.Run("should support nested snapshots", func(t *testing.T) {
		s, tok := newFundedToken(t)

		outer := s.Snapshot()
		require.NoError(t, tok.Transfer(alice, bob, n(100)))
		inner := s.Snapshot()
		require.NoError(t, tok.Transfer(alice, bob, n(200)))

		s.RevertToSnapshot(inner)
		assert.Equal(t, uint64(100), tok.BalanceOf(bob).Uint64())

		s.RevertToSnapshot(outer)
		assert.True(t, tok.BalanceOf(bob).IsZero())
	})

	t.Run("should panic on an unknown revision", func(t *testing.T) {
		s, _ := newFundedToken(t)
		assert.Panics(t, func() { s.RevertToSnapshot(1_000) })
	})
}

func TestAtomic(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("should commit on success", func(t *testing.T) {
		s, tok := newFundedToken(t)

		err := s.Atomic(func() error {
			return tok.Transfer(alice, bob, n(10))
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(10), tok.BalanceOf(bob).Uint64())
	})

	t.Run("should roll back every write on failure", func(t *testing.T) {
		s, tok := newFundedToken(t)

		err := s.Atomic(func() error {
			require.NoError(t, tok.Transfer(alice, bob, n(10)))
			require.NoError(t, tok.Mint(carol, n(5)))
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, uint64(1_000), tok.BalanceOf(alice).Uint64())
		assert.True(t, tok.BalanceOf(bob).IsZero())
		assert.Equal(t, uint64(1_000), tok.TotalSupply().Uint64())
	})

	t.Run("should keep writes made before the transaction", func(t *testing.T) {
		s, tok := newFundedToken(t)
		require.NoError(t, tok.Transfer(alice, carol, n(1)))

		_ = s.Atomic(func() error {
			_ = tok.Transfer(alice, bob, n(10))
			return errBoom
		})
		assert.Equal(t, uint64(1), tok.BalanceOf(carol).Uint64())
	})

	t.Run("should not journal writes made outside a transaction", func(t *testing.T) {
		s, tok := newFundedToken(t)
		for i := 0; i < 100; i++ {
			require.NoError(t, tok.Transfer(alice, bob, n(1)))
			require.NoError(t, tok.Approve(alice, carol, n(uint64(i))))
		}
		assert.Empty(t, s.journal.entries)

		require.NoError(t, s.Atomic(func() error {
			return tok.Transfer(bob, carol, n(1))
		}))
		assert.Empty(t, s.journal.entries)
		require.NoError(t, tok.Mint(carol, n(1)))
		assert.Empty(t, s.journal.entries)

		snap := s.Snapshot()
		require.NoError(t, tok.Transfer(bob, carol, n(1)))
		assert.NotEmpty(t, s.journal.entries)
		s.RevertToSnapshot(snap)
		assert.Equal(t, uint64(99), tok.BalanceOf(bob).Uint64())
		assert.Equal(t, uint64(2), tok.BalanceOf(carol).Uint64())
	})

	t.Run("should serialize concurrent transactions", func(t *testing.T) {
		s, tok := newFundedToken(t)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(fail bool) {
				defer wg.Done()
				_ = s.Atomic(func() error {
					if err := tok.Transfer(alice, bob, n(1)); err != nil {
						return err
					}
					if fail {
						return errBoom
					}
					return nil
				})
			}(i%2 == 0)
		}
		wg.Wait()

		assert.Equal(t, uint64(25), tok.BalanceOf(bob).Uint64())
		assert.Equal(t, uint64(975), tok.BalanceOf(alice).Uint64())
	})
}
