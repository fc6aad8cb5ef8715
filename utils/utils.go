// Package utils provides utility functions for the application.
package utils

import (
	"github.com/shopspring/decimal"
)

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// MoneyEqual reports whether two monetary amounts are equal regardless of scale.
func MoneyEqual(a, b decimal.Decimal) bool {
	return a.Equal(b)
}

// RoundMoney normalizes a monetary amount to 8 fractional digits, the finest
// granularity the processor accepts for crypto payouts.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(8)
}
