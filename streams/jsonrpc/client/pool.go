package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/ledger"
	"github.com/defistate/simpleswap-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// PoolClient issues typed calls against the "amm" namespace. Pool failures
// come back as *jsonrpc.Error, so errors.Is matches the pool sentinels.
type PoolClient struct {
	rpc *rpc.Client
}

// DialPool connects to a pool server over HTTP or WebSocket.
func DialPool(ctx context.Context, url string) (*PoolClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewPoolClient(c), nil
}

// NewPoolClient wraps an existing connection.
func NewPoolClient(c *rpc.Client) *PoolClient {
	return &PoolClient{rpc: c}
}

// Close closes the underlying connection.
func (pc *PoolClient) Close() {
	pc.rpc.Close()
}

func (pc *PoolClient) call(ctx context.Context, result any, method string, args ...any) error {
	if err := pc.rpc.CallContext(ctx, result, jsonrpc.Namespace+"_"+method, args...); err != nil {
		return jsonrpc.DecodeError(err)
	}
	return nil
}

// AddLiquidity deposits amount0 and amount1 on behalf of caller and returns the minted shares.
func (pc *PoolClient) AddLiquidity(ctx context.Context, caller common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	var res jsonrpc.AddLiquidityResult
	if err := pc.call(ctx, &res, "addLiquidity", caller, toHex(amount0), toHex(amount1)); err != nil {
		return nil, err
	}
	return fromHex(res.Shares)
}

// RemoveLiquidity burns shares on behalf of caller and returns the payouts.
func (pc *PoolClient) RemoveLiquidity(ctx context.Context, caller common.Address, shares *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	var res jsonrpc.RemoveLiquidityResult
	if err := pc.call(ctx, &res, "removeLiquidity", caller, toHex(shares)); err != nil {
		return nil, nil, err
	}
	if amount0, err = fromHex(res.Amount0); err != nil {
		return nil, nil, err
	}
	if amount1, err = fromHex(res.Amount1); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// SimpleSwap sells amountIn of tokenIn on behalf of caller.
func (pc *PoolClient) SimpleSwap(ctx context.Context, caller, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	var res jsonrpc.SwapResult
	if err := pc.call(ctx, &res, "simpleSwap", caller, tokenIn, toHex(amountIn)); err != nil {
		return nil, err
	}
	return fromHex(res.AmountOut)
}

// Quote previews a swap against the server's current reserves.
func (pc *PoolClient) Quote(ctx context.Context, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	var res hexutil.Big
	if err := pc.call(ctx, &res, "quote", tokenIn, toHex(amountIn)); err != nil {
		return nil, err
	}
	return fromHex(&res)
}

// GetAmountOut prices a swap against arbitrary reserves.
func (pc *PoolClient) GetAmountOut(ctx context.Context, amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	var res hexutil.Big
	if err := pc.call(ctx, &res, "getAmountOut", toHex(amountIn), toHex(reserveIn), toHex(reserveOut)); err != nil {
		return nil, err
	}
	return fromHex(&res)
}

// QuoteIn returns the input of tokenIn needed to receive amountOut at the server's current reserves.
func (pc *PoolClient) QuoteIn(ctx context.Context, tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	var res hexutil.Big
	if err := pc.call(ctx, &res, "quoteIn", tokenIn, toHex(amountOut)); err != nil {
		return nil, err
	}
	return fromHex(&res)
}

// GetAmountIn prices the input needed for amountOut against arbitrary reserves.
func (pc *PoolClient) GetAmountIn(ctx context.Context, amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	var res hexutil.Big
	if err := pc.call(ctx, &res, "getAmountIn", toHex(amountOut), toHex(reserveIn), toHex(reserveOut)); err != nil {
		return nil, err
	}
	return fromHex(&res)
}

// State returns the server's last published state.
func (pc *PoolClient) State(ctx context.Context) (*engine.State, error) {
	var state engine.State
	if err := pc.call(ctx, &state, "state"); err != nil {
		return nil, err
	}
	return &state, nil
}

// Tokens lists the tokens the server's ledger knows.
func (pc *PoolClient) Tokens(ctx context.Context) ([]ledger.TokenMeta, error) {
	var tokens []ledger.TokenMeta
	if err := pc.call(ctx, &tokens, "tokens"); err != nil {
		return nil, err
	}
	return tokens, nil
}

// BalanceOf returns owner's balance of token.
func (pc *PoolClient) BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error) {
	var res hexutil.Big
	if err := pc.call(ctx, &res, "balanceOf", token, owner); err != nil {
		return nil, err
	}
	return fromHex(&res)
}

// Approve sets spender's allowance over owner's token balance.
func (pc *PoolClient) Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	return pc.call(ctx, nil, "approve", token, owner, spender, toHex(amount))
}

// Transfer moves amount of token from from to to.
func (pc *PoolClient) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	return pc.call(ctx, nil, "transfer", token, from, to, toHex(amount))
}

func toHex(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(v.ToBig())
}

func fromHex(v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	z, overflow := uint256.FromBig((*big.Int)(v))
	if overflow {
		return nil, fmt.Errorf("server returned %s, which exceeds 256 bits", (*big.Int)(v).String())
	}
	return z, nil
}
