// Package fixedpoint implements full precision multiply-divide on 256-bit
// unsigned integers. Intermediate products are 512 bits wide, so a*b may
// exceed 2^256 as long as the quotient fits.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("fixedpoint: overflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

var (
	// PriceScale 价格放大倍数（quote-per-base * 1e36）。
	PriceScale = uint256.MustFromDecimal("1000000000000000000000000000000000000")
	// RatioScale 几何比例放大倍数。
	RatioScale = uint256.NewInt(1_000_000_000_000_000_000)
	// MaxAmount 金额域上限 2^128-1。
	MaxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// MulDiv returns floor(a*b/d).
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	q, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrOverflow
	}
	return q, nil
}

// MulDivRoundingUp returns ceil(a*b/d).
func MulDivRoundingUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	q, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, d).IsZero() {
		return q, nil
	}
	if q.Eq(maxUint256) {
		return nil, ErrOverflow
	}
	return q.AddUint64(q, 1), nil
}

// Pow computes x^n in fixed point with the given scale, flooring after
// every multiplication. Pow(x, 0, scale) == scale.
func Pow(x *uint256.Int, n uint64, scale *uint256.Int) (*uint256.Int, error) {
	result := scale.Clone()
	base := x.Clone()
	for n > 0 {
		var err error
		if n&1 == 1 {
			if result, err = MulDiv(result, base, scale); err != nil {
				return nil, err
			}
		}
		n >>= 1
		if n > 0 {
			if base, err = MulDiv(base, base, scale); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// FitsAmount reports whether v lies in the 128-bit amount domain.
func FitsAmount(v *uint256.Int) bool {
	return v.BitLen() <= 128
}

var maxUint256 = new(uint256.Int).SetAllOne()
