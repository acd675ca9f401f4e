package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "INR"

// Format renders an amount in minor units (cents/paise) with two decimals.
// Missing amounts render as "0.00".
func Format(amount *int64) string {
	if amount == nil {
		return "0.00"
	}
	return decimal.New(*amount, -2).StringFixed(2)
}

// FormatMajor renders an amount that is already in major units. Catalog
// prices from the backend's calculated price come in this shape.
func FormatMajor(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

// Currency picks the first non-empty code and upper-cases it.
func Currency(codes ...string) string {
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			return strings.ToUpper(c)
		}
	}
	return DefaultCurrency
}
