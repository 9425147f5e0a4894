package parsing

import (
	"strconv"
	"strings"
)

// ParsePrice converts a German-formatted amount to a float.
// "1.234,56" becomes 1234.56: periods are thousands separators, the
// comma is the decimal separator. Unparseable input yields 0.
func ParsePrice(price string) float64 {
	price = strings.TrimSpace(price)
	price = strings.ReplaceAll(price, ".", "")
	price = strings.ReplaceAll(price, ",", ".")

	f, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0
	}
	return f
}
