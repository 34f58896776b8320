package server

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/simpleswap-go/engine"
	"github.com/defistate/simpleswap-go/ledger"
	"github.com/defistate/simpleswap-go/pool"
	"github.com/defistate/simpleswap-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// API is the receiver registered under the "amm" namespace. Caller
// identities are taken from the request as-is; the server performs no
// authentication.
type API struct {
	s *Server
}

// AddLiquidity is amm_addLiquidity.
func (api *API) AddLiquidity(caller common.Address, amount0, amount1 *hexutil.Big) (*jsonrpc.AddLiquidityResult, error) {
	a0, err := toUint256("amount0", amount0)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	a1, err := toUint256("amount1", amount1)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}

	var shares *uint256.Int
	err = api.s.mutate(func() (err error) {
		shares, err = api.s.pool.AddLiquidity(caller, a0, a1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &jsonrpc.AddLiquidityResult{Shares: toHex(shares)}, nil
}

// RemoveLiquidity is amm_removeLiquidity.
func (api *API) RemoveLiquidity(caller common.Address, shares *hexutil.Big) (*jsonrpc.RemoveLiquidityResult, error) {
	amount, err := toUint256("shares", shares)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}

	var out0, out1 *uint256.Int
	err = api.s.mutate(func() (err error) {
		out0, out1, err = api.s.pool.RemoveLiquidity(caller, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &jsonrpc.RemoveLiquidityResult{Amount0: toHex(out0), Amount1: toHex(out1)}, nil
}

// SimpleSwap is amm_simpleSwap.
func (api *API) SimpleSwap(caller, tokenIn common.Address, amountIn *hexutil.Big) (*jsonrpc.SwapResult, error) {
	amount, err := toUint256("amountIn", amountIn)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}

	var out *uint256.Int
	err = api.s.mutate(func() (err error) {
		out, err = api.s.pool.SimpleSwap(caller, tokenIn, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &jsonrpc.SwapResult{AmountOut: toHex(out)}, nil
}

// Quote is amm_quote.
func (api *API) Quote(tokenIn common.Address, amountIn *hexutil.Big) (*hexutil.Big, error) {
	amount, err := toUint256("amountIn", amountIn)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	out, err := api.s.pool.Quote(tokenIn, amount)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	return toHex(out), nil
}

// GetAmountOut is amm_getAmountOut.
func (api *API) GetAmountOut(amountIn, reserveIn, reserveOut *hexutil.Big) (*hexutil.Big, error) {
	in, err := toUint256("amountIn", amountIn)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	rIn, err := toUint256("reserveIn", reserveIn)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	rOut, err := toUint256("reserveOut", reserveOut)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	out, err := api.s.pool.GetAmountOut(in, rIn, rOut)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	return toHex(out), nil
}

// QuoteIn is amm_quoteIn.
func (api *API) QuoteIn(tokenIn common.Address, amountOut *hexutil.Big) (*hexutil.Big, error) {
	amount, err := toUint256("amountOut", amountOut)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	in, err := api.s.pool.QuoteIn(tokenIn, amount)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	return toHex(in), nil
}

// GetAmountIn is amm_getAmountIn.
func (api *API) GetAmountIn(amountOut, reserveIn, reserveOut *hexutil.Big) (*hexutil.Big, error) {
	out, err := toUint256("amountOut", amountOut)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	rIn, err := toUint256("reserveIn", reserveIn)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	rOut, err := toUint256("reserveOut", reserveOut)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	in, err := api.s.pool.GetAmountIn(out, rIn, rOut)
	if err != nil {
		return nil, jsonrpc.EncodeError(err)
	}
	return toHex(in), nil
}

// State is amm_state.
func (api *API) State() *engine.State {
	return api.s.State()
}

// Tokens is amm_tokens.
func (api *API) Tokens() []ledger.TokenMeta {
	return api.s.tokens.Tokens()
}

// BalanceOf is amm_balanceOf.
func (api *API) BalanceOf(token, owner common.Address) (*hexutil.Big, error) {
	tok, err := api.s.tokens.Token(token)
	if err != nil {
		return nil, err
	}
	return toHex(tok.BalanceOf(owner)), nil
}

// Approve is amm_approve.
func (api *API) Approve(token, owner, spender common.Address, amount *hexutil.Big) error {
	value, err := toUint256("amount", amount)
	if err != nil {
		return err
	}
	tok, err := api.s.tokens.Token(token)
	if err != nil {
		return err
	}
	return api.s.tokens.Atomic(func() error {
		return tok.Approve(owner, spender, value)
	})
}

// Transfer is amm_transfer. A transfer to the pool is a donation and is
// absorbed into the reserves by the next pool operation.
func (api *API) Transfer(token, from, to common.Address, amount *hexutil.Big) error {
	value, err := toUint256("amount", amount)
	if err != nil {
		return err
	}
	tok, err := api.s.tokens.Token(token)
	if err != nil {
		return err
	}
	return api.s.tokens.Atomic(func() error {
		return tok.Transfer(from, to, value)
	})
}

// StateStream is the "stateStream" subscription: a full state, then a diff
// per successful mutation.
func (api *API) StateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	ch, err := api.s.subscribe(rpcSub.ID)
	if err != nil {
		return nil, err
	}
	api.s.metrics.subscribers.Inc()
	api.s.logger.Info("stream subscriber joined", "id", rpcSub.ID)

	go func() {
		defer func() {
			api.s.unsubscribe(rpcSub.ID, ch)
			api.s.metrics.subscribers.Dec()
			api.s.logger.Info("stream subscriber left", "id", rpcSub.ID)
		}()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.s.logger.Warn("failed to notify subscriber", "id", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}

// toUint256 converts an RPC amount. A missing amount is zero.
func toUint256(name string, v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	b := (*big.Int)(v)
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", pool.ErrInvalidAmount, name)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", pool.ErrArithmeticOverflow, name)
	}
	return z, nil
}

func toHex(v *uint256.Int) *hexutil.Big {
	return (*hexutil.Big)(v.ToBig())
}
