package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders amount the way receipts show it, with a dot as
// thousands separator and a comma before the cents.
// Example: 15000.5 -> "Rp 15.000,50"
func FormatCurrency(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	fixed := amount.StringFixed(2)
	parts := strings.SplitN(fixed, ".", 2)
	integerPart, decimalPart := parts[0], parts[1]

	var groups []string
	for i := len(integerPart); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		groups = append([]string{integerPart[start:i]}, groups...)
	}

	return "Rp " + sign + strings.Join(groups, ".") + "," + decimalPart
}
