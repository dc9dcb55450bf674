package u128

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxIs128Bits(t *testing.T) {
	assert.Equal(t, 128, Max.BitLen())
	assert.Equal(t, "340282366920938463463374607431768211455", Max.Dec())
}

func TestAddOverflow(t *testing.T) {
	_, err := Add(Max, From(1))
	require.ErrorIs(t, err, ErrOverflow)
	require.ErrorIs(t, err, ErrArithmetic)

	got, err := Add(From(2), From(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Uint64())
}

func TestSubUnderflow(t *testing.T) {
	_, err := Sub(From(1), From(2))
	require.ErrorIs(t, err, ErrUnderflow)

	got, err := Sub(From(10), From(10))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestMulOverflow(t *testing.T) {
	half := new(uint256.Int).Lsh(From(1), 64)
	_, err := Mul(half, half)
	require.ErrorIs(t, err, ErrOverflow)

	got, err := Mul(From(1000), From(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(500000), got.Uint64())
}

func TestDivFloorsAndRejectsZero(t *testing.T) {
	got, err := Div(From(500000), From(1100))
	require.NoError(t, err)
	assert.Equal(t, uint64(454), got.Uint64())

	_, err = Div(From(1), Zero())
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestRejectsWideOperands(t *testing.T) {
	wide := new(uint256.Int).Lsh(From(1), 130)
	_, err := Sub(wide, From(1))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Check(wide)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestFromBig(t *testing.T) {
	_, err := FromBig(big.NewInt(-1))
	require.ErrorIs(t, err, ErrUnderflow)

	_, err = FromBig(new(big.Int).Lsh(big.NewInt(1), 128))
	require.ErrorIs(t, err, ErrOverflow)

	got, err := FromBig(big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Uint64())
}

func TestParse(t *testing.T) {
	got, err := Parse("1500")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), got.Uint64())

	_, err = Parse("abc")
	require.Error(t, err)
}
