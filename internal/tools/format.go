package tools

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// pesoPrinter groups thousands the way the store's receipts do.
var pesoPrinter = message.NewPrinter(language.English)

// peso formats an amount with thousands separators and at most two decimals,
// e.g. 12500 -> "₱12,500", 1234.5 -> "₱1,234.5".
func peso(amount float64) string {
	return "₱" + pesoPrinter.Sprintf("%v", number.Decimal(amount, number.MaxFractionDigits(2)))
}

// plainNumber formats without grouping, matching how unit prices are read
// out: 230 -> "230", 12.5 -> "12.5".
func plainNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
