package pool

import (
	"fmt"

	"github.com/defistate/simpleswap-go/protocols/simpleswap/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AddLiquidity pulls amount0 and amount1 from caller and mints shares to it.
//
// The first deposit into an empty pool mints sqrt(amount0*amount1) shares.
// Later deposits mint the smaller of the two proportional claims against the
// reserves cached before the deposit, so an unbalanced deposit donates its
// excess to existing holders.
func (p *Pool) AddLiquidity(caller common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := p.execute(opAddLiquidity, func() error {
		if isZero(amount0) || isZero(amount1) {
			return ErrInvalidAmount
		}

		reserve0, reserve1 := p.Reserves()

		if err := p.pull(p.asset0, caller, amount0); err != nil {
			return err
		}
		if err := p.pull(p.asset1, caller, amount1); err != nil {
			return err
		}

		shares, err := sharesForDeposit(amount0, amount1, reserve0, reserve1, p.shares.TotalSupply())
		if err != nil {
			return err
		}
		if shares.IsZero() {
			return fmt.Errorf("%w: deposit of %s/%s mints no shares", ErrInvalidShareAmount, amount0.Dec(), amount1.Dec())
		}

		if err := p.shares.Mint(caller, shares); err != nil {
			return fmt.Errorf("%w: minting %s shares to %s: %w", ErrArithmeticOverflow, shares.Dec(), caller.Hex(), err)
		}

		p.sync()
		minted = shares
		return nil
	})
	if err != nil {
		p.logger.Warn("add liquidity failed", "caller", caller.Hex(), "amount0", dec(amount0), "amount1", dec(amount1), "error", err)
		return nil, err
	}

	p.logger.Debug("liquidity added", "caller", caller.Hex(), "amount0", amount0.Dec(), "amount1", amount1.Dec(), "shares", minted.Dec())
	return minted, nil
}

// RemoveLiquidity burns shares from caller and pays out its pro-rata claim on
// both reserves, rounded down.
func (p *Pool) RemoveLiquidity(caller common.Address, shares *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = p.execute(opRemoveLiquidity, func() error {
		if isZero(shares) {
			return ErrInvalidShareAmount
		}

		supply := p.shares.TotalSupply()
		if supply.IsZero() {
			return fmt.Errorf("%w: no shares outstanding", ErrDivisionByZero)
		}

		reserve0, reserve1 := p.Reserves()
		out0, err := calculator.MulDiv(shares, reserve0, supply)
		if err != nil {
			return err
		}
		out1, err := calculator.MulDiv(shares, reserve1, supply)
		if err != nil {
			return err
		}

		if err := p.shares.Burn(caller, shares); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientShares, err)
		}

		if err := p.push(p.asset0, caller, out0); err != nil {
			return err
		}
		if err := p.push(p.asset1, caller, out1); err != nil {
			return err
		}

		p.sync()
		amount0, amount1 = out0, out1
		return nil
	})
	if err != nil {
		p.logger.Warn("remove liquidity failed", "caller", caller.Hex(), "shares", dec(shares), "error", err)
		return nil, nil, err
	}

	p.logger.Debug("liquidity removed", "caller", caller.Hex(), "shares", shares.Dec(), "amount0", amount0.Dec(), "amount1", amount1.Dec())
	return amount0, amount1, nil
}

// sharesForDeposit applies the square-root rule to an empty pool and the
// proportional rule otherwise.
func sharesForDeposit(amount0, amount1, reserve0, reserve1, supply *uint256.Int) (*uint256.Int, error) {
	if supply.IsZero() {
		product, overflow := new(uint256.Int).MulOverflow(amount0, amount1)
		if overflow {
			return nil, fmt.Errorf("%w: amount0 (%s) * amount1 (%s)", ErrArithmeticOverflow, amount0.Dec(), amount1.Dec())
		}
		return calculator.Sqrt(product), nil
	}

	if reserve0.IsZero() || reserve1.IsZero() {
		return nil, fmt.Errorf("%w: %s shares outstanding against reserves %s/%s", ErrDivisionByZero, supply.Dec(), reserve0.Dec(), reserve1.Dec())
	}
	claim0, err := calculator.MulDiv(amount0, supply, reserve0)
	if err != nil {
		return nil, err
	}
	claim1, err := calculator.MulDiv(amount1, supply, reserve1)
	if err != nil {
		return nil, err
	}
	return calculator.Min(claim0, claim1), nil
}

// dec renders a possibly nil amount for logging.
func dec(v *uint256.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.Dec()
}
