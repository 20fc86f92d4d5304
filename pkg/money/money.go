// Package money converts between integer cents and the pt-BR display form
// used by the booking form ("1.500,00").
package money

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmpty     = errors.New("money: empty amount")
	ErrMalformed = errors.New("money: malformed amount")
	ErrPrecision = errors.New("money: more than two decimal places")
	ErrNegative  = errors.New("money: negative amount")
	ErrTooLarge  = errors.New("money: amount too large")
)

// MaxCents is the largest amount Parse accepts. Prices are stored as 32-bit
// integers.
const MaxCents = math.MaxInt32

// amountPattern accepts "1.500,00" with grouped thousands or "1500,00"
// without grouping. Signs, exponents and a bare leading comma are rejected.
var amountPattern = regexp.MustCompile(`^\d{1,3}(\.\d{3})*(,\d{1,2})?$|^\d+(,\d{1,2})?$`)

const currencySymbol = "R$"

var hundred = decimal.NewFromInt(100)

// Format renders cents as "1.500,00". Negative values keep a leading minus.
func Format(cents int) string {
	d := decimal.NewFromInt(int64(cents)).Div(hundred)
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if cents < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// FormatCurrency is Format with the "R$ " prefix.
func FormatCurrency(cents int) string {
	return currencySymbol + " " + Format(cents)
}

// Parse reads a display amount such as "R$ 1.500,00", "150,5" or "200" and
// returns cents. Dots are thousands separators and a comma marks decimals.
// Amounts above MaxCents fail with ErrTooLarge.
func Parse(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, currencySymbol)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegative
	}
	if strings.Count(s, ",") > 1 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	intPart, frac, hasFrac := strings.Cut(s, ",")
	intPart = strings.ReplaceAll(intPart, ".", "")
	if hasFrac && len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	if !amountPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	normalized := intPart
	if hasFrac {
		normalized += "." + frac
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	cents := d.Mul(hundred)
	if cents.GreaterThan(decimal.NewFromInt(MaxCents)) {
		return 0, fmt.Errorf("%w: %q", ErrTooLarge, s)
	}
	return int(cents.IntPart()), nil
}
