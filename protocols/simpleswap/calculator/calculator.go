package calculator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// FeeNumerator and FeeDenominator encode the fixed 0.3% swap fee.
	FeeNumerator   = 3
	FeeDenominator = 1000
)

var (
	feeDenominator = uint256.NewInt(FeeDenominator)
	// feeMultiplier is the share of the input that reaches the curve (997).
	feeMultiplier = uint256.NewInt(FeeDenominator - FeeNumerator)
	one           = uint256.NewInt(1)
	three         = uint256.NewInt(3)

	// ErrDivisionByZero is returned when a quote is requested against an empty input reserve.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrArithmeticOverflow is returned when an intermediate value exceeds 256 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// Calculator holds reusable scratch values for the quote math.
// Instances are NOT safe for concurrent use; they are handed out by calculatorPool.
type Calculator struct {
	amountInWithFee uint256.Int
	numerator       uint256.Int
	denominator     uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return new(Calculator)
	},
}

// GetAmountOut returns the output of swapping amountIn against the given reserves:
//
//	amountOut = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)
//
// The numerator is computed in full before the single floor division.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, reserveIn, reserveOut)
}

// GetAmountIn returns the minimum input that yields at least amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, reserveIn, reserveOut)
}

func (c *Calculator) getAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() {
		return nil, fmt.Errorf("%w: reserveIn is zero", ErrDivisionByZero)
	}

	if _, overflow := c.amountInWithFee.MulOverflow(amountIn, feeMultiplier); overflow {
		return nil, fmt.Errorf("%w: amountIn (%s) * 997", ErrArithmeticOverflow, amountIn.Dec())
	}
	if _, overflow := c.numerator.MulOverflow(&c.amountInWithFee, reserveOut); overflow {
		return nil, fmt.Errorf("%w: amountInWithFee (%s) * reserveOut (%s)", ErrArithmeticOverflow, c.amountInWithFee.Dec(), reserveOut.Dec())
	}
	if _, overflow := c.denominator.MulOverflow(reserveIn, feeDenominator); overflow {
		return nil, fmt.Errorf("%w: reserveIn (%s) * 1000", ErrArithmeticOverflow, reserveIn.Dec())
	}
	if _, overflow := c.denominator.AddOverflow(&c.denominator, &c.amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: swap denominator", ErrArithmeticOverflow)
	}

	return new(uint256.Int).Div(&c.numerator, &c.denominator), nil
}

func (c *Calculator) getAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}

	// numerator = reserveIn * amountOut * 1000
	if _, overflow := c.numerator.MulOverflow(reserveIn, amountOut); overflow {
		return nil, fmt.Errorf("%w: reserveIn (%s) * amountOut (%s)", ErrArithmeticOverflow, reserveIn.Dec(), amountOut.Dec())
	}
	if _, overflow := c.numerator.MulOverflow(&c.numerator, feeDenominator); overflow {
		return nil, fmt.Errorf("%w: amountIn numerator * 1000", ErrArithmeticOverflow)
	}

	// denominator = (reserveOut - amountOut) * 997
	c.denominator.Sub(reserveOut, amountOut)
	if _, overflow := c.denominator.MulOverflow(&c.denominator, feeMultiplier); overflow {
		return nil, fmt.Errorf("%w: amountIn denominator * 997", ErrArithmeticOverflow)
	}

	amountIn := new(uint256.Int).Div(&c.numerator, &c.denominator)
	if _, overflow := amountIn.AddOverflow(amountIn, one); overflow {
		return nil, fmt.Errorf("%w: amountIn + 1", ErrArithmeticOverflow)
	}
	return amountIn, nil
}

// Sqrt returns floor(sqrt(y)) using the Babylonian method.
// Iteration starts at y/2+1 and descends monotonically to the integer root.
func Sqrt(y *uint256.Int) *uint256.Int {
	if y.Gt(three) {
		z := new(uint256.Int).Set(y)
		x := new(uint256.Int).Rsh(y, 1)
		x.Add(x, one)
		next := new(uint256.Int)
		for x.Lt(z) {
			z.Set(x)
			// x = (y/x + x) / 2
			next.Div(y, x)
			next.Add(next, x)
			x.Rsh(next, 1)
		}
		return z
	}
	if y.IsZero() {
		return new(uint256.Int)
	}
	return uint256.NewInt(1)
}

// Min returns a copy of the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

// MulDiv returns floor(a*b/d), failing on a zero divisor or a product wider than 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return product.Div(product, d), nil
}
