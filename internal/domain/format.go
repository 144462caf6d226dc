package domain

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var usPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders dollars with thousands separators and two decimals,
// e.g. 1234000 -> "$1,234,000.00".
func FormatCurrency(v float64) string {
	if v < 0 {
		return "-$" + usPrinter.Sprintf("%.2f", math.Abs(v))
	}
	return "$" + usPrinter.Sprintf("%.2f", v)
}
