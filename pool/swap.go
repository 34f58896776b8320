package pool

import (
	"fmt"

	"github.com/defistate/simpleswap-go/protocols/simpleswap/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GetAmountOut quotes the output of a swap against arbitrary reserves.
func (p *Pool) GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	return calculator.GetAmountOut(amountIn, reserveIn, reserveOut)
}

// GetAmountIn quotes the input needed to receive amountOut against arbitrary reserves.
func (p *Pool) GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	return calculator.GetAmountIn(amountOut, reserveIn, reserveOut)
}

// SimpleSwap sells amountIn of tokenIn for the other pooled asset and sends
// the output to caller. The output is priced against the reserves cached at
// entry, before the input is pulled.
func (p *Pool) SimpleSwap(caller, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	var amountOut *uint256.Int
	err := p.execute(opSimpleSwap, func() error {
		if isZero(amountIn) {
			return ErrInvalidAmount
		}
		in, out, reserveIn, reserveOut, err := p.route(tokenIn)
		if err != nil {
			return err
		}

		if err := p.pull(in, caller, amountIn); err != nil {
			return err
		}

		quoted, err := calculator.GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}

		if err := p.push(out, caller, quoted); err != nil {
			return err
		}

		p.sync()
		amountOut = quoted
		return nil
	})
	if err != nil {
		p.logger.Warn("swap failed", "caller", caller.Hex(), "tokenIn", tokenIn.Hex(), "amountIn", dec(amountIn), "error", err)
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.observeSwap(tokenIn.Hex(), amountIn)
	}
	p.logger.Debug("swap executed", "caller", caller.Hex(), "tokenIn", tokenIn.Hex(), "amountIn", amountIn.Dec(), "amountOut", amountOut.Dec())
	return amountOut, nil
}

// Quote previews SimpleSwap against the current cached reserves without
// moving any balances.
func (p *Pool) Quote(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if isZero(amountIn) {
		return nil, ErrInvalidAmount
	}
	_, _, reserveIn, reserveOut, err := p.route(tokenIn)
	if err != nil {
		return nil, err
	}
	return calculator.GetAmountOut(amountIn, reserveIn, reserveOut)
}

// QuoteIn returns the smallest amount of tokenIn that SimpleSwap would turn
// into at least amountOut of the other asset, against the current cached
// reserves. amountOut must be below the output reserve.
func (p *Pool) QuoteIn(tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	if isZero(amountOut) {
		return nil, ErrInvalidAmount
	}
	_, _, reserveIn, reserveOut, err := p.route(tokenIn)
	if err != nil {
		return nil, err
	}
	return calculator.GetAmountIn(amountOut, reserveIn, reserveOut)
}

// route orders the assets and cached reserves by swap direction.
func (p *Pool) route(tokenIn common.Address) (in, out Asset, reserveIn, reserveOut *uint256.Int, err error) {
	reserve0, reserve1 := p.Reserves()
	switch tokenIn {
	case p.asset0Ref:
		return p.asset0, p.asset1, reserve0, reserve1, nil
	case p.asset1Ref:
		return p.asset1, p.asset0, reserve1, reserve0, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("%w: %s is not held by pool %s", ErrInvalidAsset, tokenIn.Hex(), p.address.Hex())
	}
}
