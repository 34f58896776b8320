package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/defistate/simpleswap-go/differ"
	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/ledger"
	"github.com/defistate/simpleswap-go/pool"
	"github.com/defistate/simpleswap-go/streams/jsonrpc"
	"github.com/defistate/simpleswap-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token0Addr = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	token1Addr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	sharesAddr = common.HexToAddress("0x00000000000000000000000000000000000005a5")
	poolAddr   = common.HexToAddress("0x0000000000000000000000000000000000009001")
	alice      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type testEnv struct {
	server   *Server
	client   *rpc.Client
	state    *ledger.State
	token0   *ledger.Token
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, bufferSize uint) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()

	state := ledger.NewState()
	token0, err := state.Deploy(ledger.TokenMeta{Address: token0Addr, Symbol: "TK0", Decimals: 18})
	require.NoError(t, err)
	token1, err := state.Deploy(ledger.TokenMeta{Address: token1Addr, Symbol: "TK1", Decimals: 18})
	require.NoError(t, err)
	shares, err := state.Deploy(ledger.TokenMeta{Address: sharesAddr, Symbol: "SHARE", Decimals: 18})
	require.NoError(t, err)

	for _, holder := range []common.Address{alice, bob} {
		for _, tok := range []*ledger.Token{token0, token1} {
			require.NoError(t, tok.Mint(holder, uint256.NewInt(1_000_000)))
			require.NoError(t, tok.Approve(holder, poolAddr, new(uint256.Int).SetAllOne()))
		}
	}

	p, err := pool.New(pool.Config{
		Address: poolAddr,
		Asset0:  token0Addr,
		Asset1:  token1Addr,
		Assets: pool.ResolverFunc(func(ref common.Address) (pool.Asset, error) {
			tok, err := state.Token(ref)
			if err != nil {
				return nil, err
			}
			return tok, nil
		}),
		Shares:   shares,
		Host:     state,
		Logger:   logger,
		Registry: registry,
	})
	require.NoError(t, err)

	ops, err := stateops.NewStateOps(logger, registry)
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Pool:       p,
		Tokens:     state,
		Differ:     ops,
		Registry:   registry,
		Logger:     logger,
		BufferSize: bufferSize,
	})
	require.NoError(t, err)

	client := rpc.DialInProc(srv.RPC())
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})

	return &testEnv{server: srv, client: client, state: state, token0: token0, registry: registry}
}

func big64(v int64) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(v))
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
}

func TestServer_Calls(t *testing.T) {
	env := newTestEnv(t, 8)
	ctx := context.Background()

	var added jsonrpc.AddLiquidityResult
	require.NoError(t, env.client.CallContext(ctx, &added, "amm_addLiquidity", alice, big64(100), big64(100)))
	assert.Equal(t, int64(100), added.Shares.ToInt().Int64())

	var quoted hexutil.Big
	require.NoError(t, env.client.CallContext(ctx, &quoted, "amm_quote", token0Addr, big64(10)))
	assert.Equal(t, int64(9), quoted.ToInt().Int64())

	var swapped jsonrpc.SwapResult
	require.NoError(t, env.client.CallContext(ctx, &swapped, "amm_simpleSwap", bob, token0Addr, big64(10)))
	assert.Equal(t, int64(9), swapped.AmountOut.ToInt().Int64())

	var removed jsonrpc.RemoveLiquidityResult
	require.NoError(t, env.client.CallContext(ctx, &removed, "amm_removeLiquidity", alice, big64(50)))
	assert.Equal(t, int64(55), removed.Amount0.ToInt().Int64())
	assert.Equal(t, int64(45), removed.Amount1.ToInt().Int64())

	var out hexutil.Big
	require.NoError(t, env.client.CallContext(ctx, &out, "amm_getAmountOut", big64(10), big64(100), big64(100)))
	assert.Equal(t, int64(9), out.ToInt().Int64())

	var in hexutil.Big
	require.NoError(t, env.client.CallContext(ctx, &in, "amm_getAmountIn", big64(9), big64(100), big64(100)))
	assert.Equal(t, int64(10), in.ToInt().Int64())

	// reserves are (55, 46) here
	require.NoError(t, env.client.CallContext(ctx, &in, "amm_quoteIn", token0Addr, big64(5)))
	assert.Equal(t, int64(7), in.ToInt().Int64())

	var state engine.State
	require.NoError(t, env.client.CallContext(ctx, &state, "amm_state"))
	assert.Equal(t, uint64(3), state.Sequence)
	assert.Equal(t, "55", state.Pool.Reserve0.String())
	assert.Equal(t, "46", state.Pool.Reserve1.String())
	assert.Equal(t, "50", state.Pool.ShareSupply.String())

	var tokens []ledger.TokenMeta
	require.NoError(t, env.client.CallContext(ctx, &tokens, "amm_tokens"))
	assert.Len(t, tokens, 3)
}

func TestServer_TokenCalls(t *testing.T) {
	env := newTestEnv(t, 8)
	ctx := context.Background()
	carol := common.HexToAddress("0xca01")

	require.NoError(t, env.client.CallContext(ctx, nil, "amm_transfer", token0Addr, alice, carol, big64(25)))
	require.NoError(t, env.client.CallContext(ctx, nil, "amm_approve", token0Addr, carol, poolAddr, big64(5)))

	var balance hexutil.Big
	require.NoError(t, env.client.CallContext(ctx, &balance, "amm_balanceOf", token0Addr, carol))
	assert.Equal(t, int64(25), balance.ToInt().Int64())
	assert.Equal(t, "5", env.token0.Allowance(carol, poolAddr).Dec())

	err := env.client.CallContext(ctx, nil, "amm_transfer", token0Addr, carol, alice, big64(26))
	require.Error(t, err)

	err = env.client.CallContext(ctx, &balance, "amm_balanceOf", common.HexToAddress("0xdead"), carol)
	require.Error(t, err)
}

func TestServer_PoolErrors(t *testing.T) {
	env := newTestEnv(t, 8)
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		args   []any
		code   int
		reason string
	}{
		{"should tag a zero deposit", "amm_addLiquidity", []any{alice, big64(0), big64(5)}, jsonrpc.CodeInvalidAmount, pool.ReasonInvalidAmount},
		{"should tag an empty-pool withdrawal", "amm_removeLiquidity", []any{alice, big64(1)}, jsonrpc.CodeDivisionByZero, pool.ReasonDivisionByZero},
		{"should tag a foreign asset", "amm_simpleSwap", []any{bob, common.HexToAddress("0xff"), big64(10)}, jsonrpc.CodeInvalidAsset, pool.ReasonInvalidAsset},
		{"should tag a zero-reserve quote", "amm_getAmountOut", []any{big64(1), big64(0), big64(10)}, jsonrpc.CodeDivisionByZero, pool.ReasonDivisionByZero},
		{"should tag a draining exact-output quote", "amm_getAmountIn", []any{big64(10), big64(10), big64(10)}, jsonrpc.CodeInsufficientLiquidity, pool.ReasonInsufficientLiquidity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var res json.RawMessage
			err := env.client.CallContext(ctx, &res, tc.method, tc.args...)
			require.Error(t, err)

			var rpcErr rpc.Error
			require.True(t, errors.As(err, &rpcErr))
			assert.Equal(t, tc.code, rpcErr.ErrorCode())

			var dataErr rpc.DataError
			require.True(t, errors.As(err, &dataErr))
			assert.Equal(t, tc.reason, dataErr.ErrorData())

			assert.ErrorIs(t, jsonrpc.DecodeError(err), pool.ErrorForReason(tc.reason))
		})
	}

	assert.Equal(t, uint64(0), env.server.State().Sequence, "failed calls must not publish")
}

func TestServer_StateStream(t *testing.T) {
	env := newTestEnv(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan *jsonrpc.SubscriptionEvent, 8)
	sub, err := env.client.Subscribe(ctx, jsonrpc.Namespace, events, jsonrpc.StateStreamSubscriptionMethod)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	next := func() *jsonrpc.SubscriptionEvent {
		select {
		case e := <-events:
			return e
		case err := <-sub.Err():
			t.Fatalf("subscription failed: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for stream event")
		}
		return nil
	}

	full := next()
	require.Equal(t, jsonrpc.EventTypeFull, full.Type)
	var state engine.State
	require.NoError(t, json.Unmarshal(full.Payload, &state))
	assert.Equal(t, uint64(0), state.Sequence)
	assert.Equal(t, poolAddr, state.Pool.Address)

	var added jsonrpc.AddLiquidityResult
	require.NoError(t, env.client.CallContext(ctx, &added, "amm_addLiquidity", alice, big64(100), big64(100)))

	diffEvent := next()
	require.Equal(t, jsonrpc.EventTypeDiff, diffEvent.Type)
	var diff differ.StateDiff
	require.NoError(t, json.Unmarshal(diffEvent.Payload, &diff))
	assert.Equal(t, uint64(0), diff.FromSequence)
	assert.Equal(t, uint64(1), diff.ToSequence)
	assert.Equal(t, "100", diff.Pool.Reserve0.String())
	assert.Equal(t, "100", diff.Pool.ShareSupply.String())
}

func TestServer_ResyncsSlowSubscriber(t *testing.T) {
	env := newTestEnv(t, 2)

	slow := make(chan *jsonrpc.SubscriptionEvent, 2)
	slow <- &jsonrpc.SubscriptionEvent{Type: jsonrpc.EventTypeFull}
	env.server.mu.Lock()
	env.server.subscribers["slow"] = slow
	env.server.mu.Unlock()

	// the first diff fits, the second finds the queue full
	require.NoError(t, env.server.mutate(func() error { return nil }))
	require.NoError(t, env.server.mutate(func() error { return nil }))

	env.server.mu.Lock()
	_, stillThere := env.server.subscribers["slow"]
	env.server.mu.Unlock()
	assert.True(t, stillThere, "a slow subscriber should be kept")

	require.Len(t, slow, 1, "the backlog should be replaced by a single event")
	event := <-slow
	require.Equal(t, jsonrpc.EventTypeFull, event.Type)
	var state engine.State
	require.NoError(t, json.Unmarshal(event.Payload, &state))
	assert.Equal(t, uint64(2), state.Sequence)

	require.NoError(t, env.server.mutate(func() error { return nil }))
	event = <-slow
	require.Equal(t, jsonrpc.EventTypeDiff, event.Type)
	var diff differ.StateDiff
	require.NoError(t, json.Unmarshal(event.Payload, &diff))
	assert.Equal(t, uint64(2), diff.FromSequence, "diffs should chain from the resync state")
}

func TestServer_StreamStaysConsistentWhenSubscriberLags(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events := make(chan *jsonrpc.SubscriptionEvent, 128)
	sub, err := env.client.Subscribe(ctx, jsonrpc.Namespace, events, jsonrpc.StateStreamSubscriptionMethod)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	const swaps = 20
	var added jsonrpc.AddLiquidityResult
	require.NoError(t, env.client.CallContext(ctx, &added, "amm_addLiquidity", alice, big64(10_000), big64(10_000)))
	for i := 0; i < swaps; i++ {
		var swapped jsonrpc.SwapResult
		require.NoError(t, env.client.CallContext(ctx, &swapped, "amm_simpleSwap", bob, token0Addr, big64(10)))
	}
	final := env.server.State()
	require.Equal(t, uint64(swaps+1), final.Sequence)

	var sequence uint64
	var seenFull bool
	for sequence < final.Sequence || !seenFull {
		select {
		case e := <-events:
			switch e.Type {
			case jsonrpc.EventTypeFull:
				var state engine.State
				require.NoError(t, json.Unmarshal(e.Payload, &state))
				require.GreaterOrEqual(t, state.Sequence, sequence)
				sequence, seenFull = state.Sequence, true
			case jsonrpc.EventTypeDiff:
				require.True(t, seenFull, "a diff arrived before any full state")
				var diff differ.StateDiff
				require.NoError(t, json.Unmarshal(e.Payload, &diff))
				require.Equal(t, sequence, diff.FromSequence, "the stream skipped a transition")
				sequence = diff.ToSequence
			}
		case err := <-sub.Err():
			t.Fatalf("subscription ended: %v", err)
		case <-ctx.Done():
			t.Fatalf("stream stalled at sequence %d, server is at %d", sequence, final.Sequence)
		}
	}
	assert.Equal(t, final.Sequence, sequence)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, 8)
	var added jsonrpc.AddLiquidityResult
	require.NoError(t, env.client.CallContext(context.Background(), &added, "amm_addLiquidity", alice, big64(100), big64(100)))

	families, err := env.registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, name := range []string{
		"simpleswap_stream_subscribers",
		"simpleswap_differ_diff_duration_seconds",
		"simpleswap_pool_operations_total",
		"simpleswap_pool_reserve",
	} {
		assert.True(t, names[name], "missing metric %s", name)
	}
}
