// Package money formats and parses euro amounts held as integer cents.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var ErrInvalidAmount = errors.New("invalid amount")

var printer = message.NewPrinter(language.Italian)

var hundred = decimal.NewFromInt(100)

// Format renders cents as an Italian euro amount, e.g. €7,50.
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	euros := decimal.New(cents, -2).InexactFloat64()
	return sign + "€" + printer.Sprint(number.Decimal(euros, number.Scale(2)))
}

// ParseEuros parses a decimal euro amount written with either a comma or a
// dot separator ("7,50", "7.5", "€ 12") into cents. Amounts with more than
// two decimals are rejected.
func ParseEuros(s string) (int64, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "€")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidAmount, s)
	}
	return cents.IntPart(), nil
}

// Shortfall renders the message shown while cash tendered is below the total.
func Shortfall(cents int64) string {
	return "mancano " + Format(cents)
}
