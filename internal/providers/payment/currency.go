package payment

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// NormalizeCurrency returns the upper-case ISO 4217 code, or "" if code is
// not a known currency.
func NormalizeCurrency(code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return ""
	}
	return unit.String()
}

// FromMinorUnits converts an amount in cents to a decimal major-unit value.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// ToMinorUnits converts a major-unit decimal to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
