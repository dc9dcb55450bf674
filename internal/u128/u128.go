// Package u128 provides checked unsigned 128-bit arithmetic on top of
// uint256.Int. Results never wrap: anything that would leave the
// [0, 2^128-1] range is reported as an arithmetic error.
package u128

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmetic is the parent of every arithmetic failure.
	ErrArithmetic = errors.New("arithmetic error")

	ErrOverflow       = fmt.Errorf("%w: overflow", ErrArithmetic)
	ErrUnderflow      = fmt.Errorf("%w: underflow", ErrArithmetic)
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrArithmetic)
)

// Max is 2^128-1.
var Max = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// From returns v as a 128-bit amount.
func From(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Fits reports whether v is non-nil and at most 2^128-1.
func Fits(v *uint256.Int) bool {
	return v != nil && v.BitLen() <= 128
}

// Check returns a copy of v or an error when v is nil or wider than 128 bits.
func Check(v *uint256.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrArithmetic)
	}
	if !Fits(v) {
		return nil, fmt.Errorf("%w: %s exceeds 128 bits", ErrOverflow, v.Dec())
	}
	return new(uint256.Int).Set(v), nil
}

// FromBig converts a non-negative big.Int that fits in 128 bits.
func FromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrArithmetic)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrUnderflow, v.String())
	}
	out, overflow := uint256.FromBig(v)
	if overflow || !Fits(out) {
		return nil, fmt.Errorf("%w: %s exceeds 128 bits", ErrOverflow, v.String())
	}
	return out, nil
}

// Parse reads a base-10 amount.
func Parse(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Check(v)
}

// Add returns x+y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(x, y); err != nil {
		return nil, err
	}
	z := new(uint256.Int).Add(x, y)
	if !Fits(z) {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x-y.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(x, y); err != nil {
		return nil, err
	}
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Mul returns x*y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(x, y); err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow || !Fits(z) {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Div returns floor(x/y).
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(x, y); err != nil {
		return nil, err
	}
	if y.IsZero() {
		return nil, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, x.Dec())
	}
	return new(uint256.Int).Div(x, y), nil
}

func checkOperands(x, y *uint256.Int) error {
	if x == nil || y == nil {
		return fmt.Errorf("%w: nil operand", ErrArithmetic)
	}
	if !Fits(x) || !Fits(y) {
		return fmt.Errorf("%w: operand exceeds 128 bits", ErrOverflow)
	}
	return nil
}
