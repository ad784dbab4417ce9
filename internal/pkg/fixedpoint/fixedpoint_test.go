package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloors(t *testing.T) {
	got, err := MulDiv(10, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

func TestMulDivWideIntermediate(t *testing.T) {
	// a*b exceeds 128 bits but the quotient fits.
	got, err := MulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestMulDivOverflowAndZero(t *testing.T) {
	_, err := MulDiv(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDiv(1, 1, 0)
	assert.ErrorIs(t, err, ErrDivByZero)
}

func TestBps(t *testing.T) {
	fee, err := Bps(1_000_000_000, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), fee)

	fee, err = Bps(199, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee)
}

func TestApplySlippage(t *testing.T) {
	got, err := ApplySlippage(1000, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(990), got)

	_, err = ApplySlippage(1000, 10_001)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestRatioScales(t *testing.T) {
	got, err := Ratio([]uint64{5, 3}, []uint64{2}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), got)

	got, err = Ratio([]uint64{12345}, []uint64{1}, -2)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), got)

	_, err = Ratio([]uint64{1}, []uint64{1}, 90)
	assert.ErrorIs(t, err, ErrExponentMax)
}

func TestCheckedAddSub(t *testing.T) {
	_, err := AddChecked(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = SubChecked(1, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := SubChecked(5, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}
