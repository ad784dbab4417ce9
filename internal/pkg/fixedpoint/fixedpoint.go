// Package fixedpoint implements the integer arithmetic of the ledger. Every
// product is formed in 256 bits and floored back into uint64, so intermediate
// values never wrap.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

const BpsDenominator = 10_000

var (
	ErrOverflow    = errors.New("fixedpoint: overflow")
	ErrDivByZero   = errors.New("fixedpoint: division by zero")
	ErrExponentMax = errors.New("fixedpoint: exponent out of range")
)

// MaxPow10 is the largest power of ten representable in 256 bits.
const MaxPow10 = 77

// MulDiv returns floor(a*b/d).
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
	if overflow || !z.IsUint64() {
		return 0, ErrOverflow
	}
	return z.Uint64(), nil
}

// Bps returns floor(amount*bps/10000).
func Bps(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}

// ApplySlippage returns the lowest acceptable output for expected under bps of slippage.
func ApplySlippage(expected uint64, bps uint16) (uint64, error) {
	if bps > BpsDenominator {
		return 0, ErrOverflow
	}
	return MulDiv(expected, uint64(BpsDenominator-bps), BpsDenominator)
}

func Pow10(exp uint) (*uint256.Int, error) {
	if exp > MaxPow10 {
		return nil, ErrExponentMax
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp))), nil
}

// Ratio computes floor(prod(num) * 10^scale / prod(den)) where scale may be
// negative, in which case the power of ten joins the denominator.
func Ratio(num, den []uint64, scale int) (uint64, error) {
	n := uint256.NewInt(1)
	for _, v := range num {
		var overflow bool
		n, overflow = new(uint256.Int).MulOverflow(n, uint256.NewInt(v))
		if overflow {
			return 0, ErrOverflow
		}
	}
	d := uint256.NewInt(1)
	for _, v := range den {
		var overflow bool
		d, overflow = new(uint256.Int).MulOverflow(d, uint256.NewInt(v))
		if overflow {
			return 0, ErrOverflow
		}
	}
	abs := scale
	if abs < 0 {
		abs = -abs
	}
	p, err := Pow10(uint(abs))
	if err != nil {
		return 0, err
	}
	var overflow bool
	if scale >= 0 {
		n, overflow = new(uint256.Int).MulOverflow(n, p)
	} else {
		d, overflow = new(uint256.Int).MulOverflow(d, p)
	}
	if overflow {
		return 0, ErrOverflow
	}
	if d.IsZero() {
		return 0, ErrDivByZero
	}
	q := new(uint256.Int).Div(n, d)
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}

// AddChecked returns a+b or ErrOverflow.
func AddChecked(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, ErrOverflow
	}
	return s, nil
}

// SubChecked returns a-b or ErrOverflow when b > a.
func SubChecked(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}
