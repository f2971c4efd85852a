// Package amount converts between decimal currency strings and integer minor
// units. No floating point is involved anywhere.
package amount

import (
	"math"
	"strconv"
	"strings"

	"ms-payments/internal/apperr"
)

const fractionDigits = 2

// ToMinorUnits parses digits(.digits)? with ',' accepted as the separator.
// Fractions longer than two digits are truncated, shorter ones padded.
func ToMinorUnits(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, apperr.Invalid("amount", "empty")
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if !isDigits(whole) || (hasDot && !isDigits(frac)) {
		return 0, apperr.Invalid("amount", "expected digits with an optional decimal fraction")
	}

	if len(frac) > fractionDigits {
		frac = frac[:fractionDigits]
	}
	frac += strings.Repeat("0", fractionDigits-len(frac))

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/100 {
		return 0, apperr.Invalid("amount", "out of range")
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)

	total := units * 100
	if total > math.MaxInt64-cents {
		return 0, apperr.Invalid("amount", "out of range")
	}
	return total + cents, nil
}

// ToDecimalString renders minor units with exactly two fraction digits.
func ToDecimalString(minor int64) string {
	sign := ""
	u := uint64(minor)
	if minor < 0 {
		sign = "-"
		u = uint64(-(minor + 1)) + 1
	}
	return sign + strconv.FormatUint(u/100, 10) + "." + pad2(u%100)
}

func pad2(n uint64) string {
	if n < 10 {
		return "0" + strconv.FormatUint(n, 10)
	}
	return strconv.FormatUint(n, 10)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
