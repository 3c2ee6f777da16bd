// Package money provides null-safe decimal arithmetic with half-even rounding
// and per-currency scale normalisation. Intermediate computations keep full
// decimal precision; rounding happens once, at the point a value is persisted
// or posted to the ledger.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// AccrualScale is the fractional precision used for stored accrued interest.
const AccrualScale = 5

// Money couples an arbitrary-precision amount with its ISO 4217 currency code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New builds a Money value without normalising its scale.
func New(amount decimal.Decimal, code string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(code))}
}

// Parse reads a decimal string plus currency code from the wire.
func Parse(value, code string) (Money, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return Money{}, fmt.Errorf("money: currency must be a 3-letter code, got %q", code)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("money: amount must be numeric: %w", err)
	}
	return Money{Amount: amount, Currency: code}, nil
}

// Scale returns the fractional digits for an ISO currency code. Unknown codes
// fall back to 2.
func Scale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Normalize rounds the amount half-even to the currency's scale.
func (m Money) Normalize() Money {
	return Money{Amount: RoundHalfEven(m.Amount, Scale(m.Currency)), Currency: m.Currency}
}

// NormalizeTo rounds half-even to an explicit scale, for products whose
// definition overrides the ISO default.
func (m Money) NormalizeTo(scale int32) Money {
	return Money{Amount: RoundHalfEven(m.Amount, scale), Currency: m.Currency}
}

// IsPositive reports amount > 0.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// String renders "123.45 USD".
func (m Money) String() string {
	return m.Amount.StringFixed(Scale(m.Currency)) + " " + m.Currency
}

// RoundHalfEven applies banker's rounding at the given fractional scale.
func RoundHalfEven(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.RoundBank(scale)
}

// Coalesce returns the pointed-at value or zero.
func Coalesce(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// Positive reports whether a nullable decimal is present and > 0.
func Positive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}
