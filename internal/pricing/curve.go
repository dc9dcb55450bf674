// Package pricing implements the zero-fee constant-product rule used to
// price a deposit of one pool asset against the other.
package pricing

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"swapRelay/internal/u128"
)

// Formula selects the divisor used when solving for the outbound amount.
type Formula string

const (
	// FormulaSnapshot divides the pre-deposit product by the pre-deposit
	// balance of the received asset: out = balOut - K/preIn.
	FormulaSnapshot Formula = "snapshot"
	// FormulaInvariant divides by the post-deposit balance so that
	// balIn*(balOut-out) stays as close to K as floor division allows.
	FormulaInvariant Formula = "invariant"
)

// DefaultFormula is used when no formula is configured.
const DefaultFormula = FormulaSnapshot

// ParseFormula normalizes a configured formula name.
func ParseFormula(name string) (Formula, error) {
	switch Formula(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormulaSnapshot:
		return FormulaSnapshot, nil
	case FormulaInvariant:
		return FormulaInvariant, nil
	default:
		return "", fmt.Errorf("unsupported pricing formula: %s", name)
	}
}

// Quote is the outcome of pricing one deposit.
type Quote struct {
	PreBalanceIn *uint256.Int
	K            *uint256.Int
	AmountOut    *uint256.Int
}

// AmountOut prices a deposit of received units against a pool holding
// balanceIn of the deposited asset (already including the deposit) and
// balanceOut of the other asset.
func (f Formula) AmountOut(balanceIn, balanceOut, received *uint256.Int) (Quote, error) {
	preIn, err := u128.Sub(balanceIn, received)
	if err != nil {
		return Quote{}, fmt.Errorf("pre-deposit balance: %w", err)
	}
	if balanceOut.IsZero() {
		return Quote{}, fmt.Errorf("%w: outbound reserve is zero", u128.ErrDivisionByZero)
	}
	if preIn.IsZero() {
		return Quote{}, fmt.Errorf("%w: pre-deposit reserve is zero", u128.ErrDivisionByZero)
	}

	k, err := u128.Mul(preIn, balanceOut)
	if err != nil {
		return Quote{}, fmt.Errorf("invariant product: %w", err)
	}

	divisor := preIn
	switch f {
	case FormulaSnapshot, "":
	case FormulaInvariant:
		divisor = balanceIn
	default:
		return Quote{}, fmt.Errorf("unsupported pricing formula: %s", f)
	}

	retained, err := u128.Div(k, divisor)
	if err != nil {
		return Quote{}, fmt.Errorf("retained reserve: %w", err)
	}
	out, err := u128.Sub(balanceOut, retained)
	if err != nil {
		return Quote{}, fmt.Errorf("amount out: %w", err)
	}

	return Quote{PreBalanceIn: preIn, K: k, AmountOut: out}, nil
}
