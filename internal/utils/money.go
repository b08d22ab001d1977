package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineTotal returns price times quantity.
func LineTotal(price float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity)))
}

// WithTax applies a tax rate such as 0.13 to amount.
func WithTax(amount decimal.Decimal, rate float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(rate)))
}

// RoundMoney rounds to two decimal places and converts back to float64.
func RoundMoney(amount decimal.Decimal) float64 {
	return amount.Round(2).InexactFloat64()
}

// FormatAmount renders an amount the way gateways expect it: no exponent,
// no trailing zeros, no thousands separators.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).String()
}

// ParseAmount reads an amount echoed back by a gateway. Thousands separators are ignored.
func ParseAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
}

// RoundDecimal converts a stored amount to a decimal rounded to cents.
func RoundDecimal(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(2)
}
