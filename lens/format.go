package lens

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const priceExp = 36

// FormatPrice renders a 1e36 scaled price as a decimal.
func FormatPrice(price *uint256.Int) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(price.ToBig(), -priceExp)
}

// FormatAmount renders a raw token amount with the given number of decimals.
func FormatAmount(amount *uint256.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -decimals)
}

// ParsePrice parses a human readable price ("1850.25") into the 1e36 scale.
// Digits beyond 36 decimals are truncated.
func ParsePrice(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("parse price %q: %w", s, ErrZeroPrice)
	}
	scaled := d.Shift(priceExp).Truncate(0).BigInt()
	p, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, fmt.Errorf("parse price %q: out of range", s)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("parse price %q: %w", s, ErrZeroPrice)
	}
	return p, nil
}

// ParseAmount parses a decimal token amount with the given decimals into raw units.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	a, overflow := uint256.FromBig(d.Shift(decimals).Truncate(0).BigInt())
	if overflow {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrExceedBaseAmt)
	}
	return a, nil
}
