package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivBasic(t *testing.T) {
	q, err := MulDiv(uint256.NewInt(10), uint256.NewInt(7), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(23), q.Uint64())

	q, err = MulDivRoundingUp(uint256.NewInt(10), uint256.NewInt(7), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(24), q.Uint64())

	// exact division does not round up
	q, err = MulDivRoundingUp(uint256.NewInt(9), uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), q.Uint64())
}

func TestMulDivWideIntermediate(t *testing.T) {
	// (2^200 * 2^100) / 2^150 = 2^150; the product needs 300 bits.
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	b := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	d := new(uint256.Int).Lsh(uint256.NewInt(1), 150)
	q, err := MulDiv(a, b, d)
	require.NoError(t, err)
	assert.Equal(t, 151, q.BitLen())
}

func TestMulDivOverflow(t *testing.T) {
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	_, err := MulDiv(a, a, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDivRoundingUp(maxUint256, maxUint256, new(uint256.Int).Sub(maxUint256, uint256.NewInt(1)))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivZero(t *testing.T) {
	_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	q, err := MulDivRoundingUp(new(uint256.Int), uint256.NewInt(5), uint256.NewInt(3))
	require.NoError(t, err)
	assert.True(t, q.IsZero())
}

func TestPow(t *testing.T) {
	two := new(uint256.Int).Mul(uint256.NewInt(2), RatioScale)
	got, err := Pow(two, 10, RatioScale)
	require.NoError(t, err)
	want := new(uint256.Int).Mul(uint256.NewInt(1024), RatioScale)
	assert.True(t, got.Eq(want), "got %s", got.Dec())

	one, err := Pow(two, 0, RatioScale)
	require.NoError(t, err)
	assert.True(t, one.Eq(RatioScale))

	half := new(uint256.Int).Div(RatioScale, uint256.NewInt(2))
	got, err = Pow(half, 3, RatioScale)
	require.NoError(t, err)
	assert.Equal(t, uint64(125_000_000_000_000_000), got.Uint64())
}

func TestFitsAmount(t *testing.T) {
	assert.True(t, FitsAmount(MaxAmount))
	assert.False(t, FitsAmount(new(uint256.Int).AddUint64(MaxAmount, 1)))
}
