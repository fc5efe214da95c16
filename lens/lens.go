// Package lens converts between base and quote amounts at a fixed-point
// price and splits fill volume into LP and protocol fees.
package lens

import (
	"errors"

	"github.com/holiman/uint256"

	"gridex-go/fixedpoint"
)

const (
	// FeeDenominator fee 以百万分之一为单位。
	FeeDenominator = 1_000_000
	// ProtocolSharePct 非 oneshot 网格中协议分成比例（百分比）。
	ProtocolSharePct = 60
)

var (
	ErrZeroQuoteAmt   = errors.New("zero quote amount")
	ErrExceedQuoteAmt = errors.New("quote amount exceeds 128 bits")
	ErrZeroBaseAmt    = errors.New("zero base amount")
	ErrExceedBaseAmt  = errors.New("base amount exceeds 128 bits")
	ErrZeroPrice      = errors.New("zero price")
)

// ToQuote converts a base amount to quote at price (1e36 scaled).
func ToQuote(base, price *uint256.Int, roundUp bool) (*uint256.Int, error) {
	q, err := mulDiv(base, price, fixedpoint.PriceScale, roundUp)
	if err != nil {
		if errors.Is(err, fixedpoint.ErrOverflow) {
			return nil, ErrExceedQuoteAmt
		}
		return nil, err
	}
	if q.IsZero() {
		return nil, ErrZeroQuoteAmt
	}
	if !fixedpoint.FitsAmount(q) {
		return nil, ErrExceedQuoteAmt
	}
	return q, nil
}

// ToBase converts a quote amount to base at price (1e36 scaled).
func ToBase(quote, price *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if price.IsZero() {
		return nil, ErrZeroPrice
	}
	b, err := mulDiv(quote, fixedpoint.PriceScale, price, roundUp)
	if err != nil {
		if errors.Is(err, fixedpoint.ErrOverflow) {
			return nil, ErrExceedBaseAmt
		}
		return nil, err
	}
	if b.IsZero() {
		return nil, ErrZeroBaseAmt
	}
	if !fixedpoint.FitsAmount(b) {
		return nil, ErrExceedBaseAmt
	}
	return b, nil
}

// Fees is the result of splitting a fill's fee.
type Fees struct {
	LP       *uint256.Int
	Protocol *uint256.Int
}

// Total returns LP + Protocol.
func (f Fees) Total() *uint256.Int {
	return new(uint256.Int).Add(f.LP, f.Protocol)
}

// TotalFee returns floor(vol*feeBps/1e6).
func TotalFee(vol *uint256.Int, feeBps uint32) *uint256.Int {
	// vol < 2^128 and feeBps < 2^32, the product cannot overflow 256 bits.
	fee := new(uint256.Int).Mul(vol, uint256.NewInt(uint64(feeBps)))
	return fee.Div(fee, uint256.NewInt(FeeDenominator))
}

// SplitFee 60/40 拆分，协议侧向下取整后余数归 LP。
func SplitFee(vol *uint256.Int, feeBps uint32) Fees {
	total := TotalFee(vol, feeBps)
	protocol := new(uint256.Int).Mul(total, uint256.NewInt(ProtocolSharePct))
	protocol.Div(protocol, uint256.NewInt(100))
	return Fees{
		LP:       new(uint256.Int).Sub(total, protocol),
		Protocol: protocol,
	}
}

// OneshotFee 全部手续费归协议。
func OneshotFee(vol *uint256.Int, feeBps uint32) Fees {
	return Fees{
		LP:       new(uint256.Int),
		Protocol: TotalFee(vol, feeBps),
	}
}

func mulDiv(a, b, d *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if roundUp {
		return fixedpoint.MulDivRoundingUp(a, b, d)
	}
	return fixedpoint.MulDiv(a, b, d)
}
