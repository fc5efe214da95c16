package lens

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridex-go/fixedpoint"
)

func price(units uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(units), fixedpoint.PriceScale)
}

func TestToQuote(t *testing.T) {
	q, err := ToQuote(uint256.NewInt(1000), price(3), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), q.Uint64())

	// 1000 base at 0.0015 quote/base = 1.5 quote
	p := new(uint256.Int).Div(price(15), uint256.NewInt(10_000))
	q, err = ToQuote(uint256.NewInt(1000), p, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), q.Uint64())
	q, err = ToQuote(uint256.NewInt(1000), p, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), q.Uint64())
}

func TestToQuoteFaults(t *testing.T) {
	tiny := uint256.NewInt(1) // 1e-36 quote per base
	_, err := ToQuote(uint256.NewInt(1000), tiny, false)
	assert.ErrorIs(t, err, ErrZeroQuoteAmt)

	// rounding up never collapses to zero
	q, err := ToQuote(uint256.NewInt(1000), tiny, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), q.Uint64())

	_, err = ToQuote(fixedpoint.MaxAmount, price(2), false)
	assert.ErrorIs(t, err, ErrExceedQuoteAmt)
}

func TestToBase(t *testing.T) {
	b, err := ToBase(uint256.NewInt(3000), price(3), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), b.Uint64())

	b, err = ToBase(uint256.NewInt(10), price(3), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), b.Uint64())

	_, err = ToBase(uint256.NewInt(2), price(3), false)
	assert.ErrorIs(t, err, ErrZeroBaseAmt)

	_, err = ToBase(fixedpoint.MaxAmount, uint256.NewInt(1), false)
	assert.ErrorIs(t, err, ErrExceedBaseAmt)

	_, err = ToBase(uint256.NewInt(1), new(uint256.Int), false)
	assert.ErrorIs(t, err, ErrZeroPrice)
}

func TestSplitFeeExact(t *testing.T) {
	cases := []struct {
		vol uint64
		fee uint32
	}{
		{1_000_000, 3000},
		{999_999, 3000},
		{12_345_678, 777},
		{17, 100_000},
		{1, 10},
	}
	for _, c := range cases {
		vol := uint256.NewInt(c.vol)
		f := SplitFee(vol, c.fee)
		total := c.vol * uint64(c.fee) / FeeDenominator
		protocol := total * 60 / 100
		assert.Equal(t, protocol, f.Protocol.Uint64(), "vol=%d fee=%d", c.vol, c.fee)
		assert.Equal(t, total-protocol, f.LP.Uint64(), "vol=%d fee=%d", c.vol, c.fee)
		assert.Equal(t, total, f.Total().Uint64())
	}
}

func TestOneshotFee(t *testing.T) {
	f := OneshotFee(uint256.NewInt(1_000_000), 500)
	assert.True(t, f.LP.IsZero())
	assert.Equal(t, uint64(500), f.Protocol.Uint64())
}

func TestFormatAndParsePrice(t *testing.T) {
	p, err := ParsePrice("1850.25")
	require.NoError(t, err)
	assert.Equal(t, "1850.25", FormatPrice(p).String())

	_, err = ParsePrice("0")
	assert.ErrorIs(t, err, ErrZeroPrice)
	_, err = ParsePrice("abc")
	assert.Error(t, err)

	a, err := ParseAmount("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), a.Uint64())
	assert.Equal(t, "1.5", FormatAmount(a, 6).String())
}
