// Package money holds the rounding rules shared by every monetary computation.
// Amounts are shopspring decimals; anything visible outside a computation
// carries exactly two decimal places, rounded half-up.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places on externally visible amounts.
const Places = 2

var (
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Round rounds to two places, half away from zero (half-up for the
// non-negative amounts this package deals with).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}

// Cents returns the amount as whole cents after rounding.
func Cents(d decimal.Decimal) int64 {
	return Round(d).Mul(hundred).IntPart()
}

// Parse reads a decimal string and rounds it.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Round(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Max returns the larger amount.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller amount.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative floors an amount at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Format renders the amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(Places)
}
