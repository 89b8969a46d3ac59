// Package core provides money handling for receipt amounts.
//
// Amounts are kept as arbitrary-precision decimals so that summing a month of
// receipts yields exactly the total of the values the API reported.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a non-floating decimal amount in the single implicit currency.
// The zero value is 0.
type Money struct {
	amount decimal.Decimal
}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money {
	return Money{amount: d}
}

// ParseAmount converts a decimal string to Money without rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Negative
// values are rejected since receipt totals are never negative.
//
// Examples:
//
//	ParseAmount("12.50")  -> 12.5, nil
//	ParseAmount("12,345") -> 12.345, nil
//	ParseAmount("-1")     -> 0, ErrNegativeAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: d}, nil
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{amount: m.amount.Add(o.amount)}
}

// Equal compares numerically, so 20 equals 20.00.
func (m Money) Equal(o Money) bool {
	return m.amount.Equal(o.amount)
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// String returns the exact value with no trailing zeros.
func (m Money) String() string {
	return m.amount.String()
}

// Display formats the amount with at least two decimals. Values with more
// decimals keep all of them, so displayed lines always add up to the total.
func (m Money) Display() string {
	return m.amount.StringFixed(max(2, -m.amount.Exponent()))
}

// MarshalJSON writes the amount as a bare JSON number, matching the remote API.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.amount.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	return m.amount.UnmarshalJSON(data)
}

// Sum adds amounts exactly. The result does not depend on the order.
func Sum(amounts ...Money) Money {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a.amount)
	}
	return Money{amount: total}
}
