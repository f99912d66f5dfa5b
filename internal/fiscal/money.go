// internal/fiscal/money.go
package fiscal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatPrice renders minor units as "D.DD"; negative values get a leading "-"
func FormatPrice(cents int64) string {
	if cents >= 0 {
		return formatMagnitude("", uint64(cents))
	}
	// -(cents+1) cannot overflow, even for math.MinInt64
	return formatMagnitude("-", uint64(-(cents+1))+1)
}

func formatMagnitude(sign string, cents uint64) string {
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParsePrice is the inverse of FormatPrice. Values with more than two
// decimals are rounded half away from zero.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return ToCents(d), nil
}

// ToCents converts a decimal major-unit amount to integer minor units
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// LineTotal is quantity * unit price, rounded to minor units
func LineTotal(quantity float64, unitPriceCents int64) int64 {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromInt(unitPriceCents)).Round(0).IntPart()
}
