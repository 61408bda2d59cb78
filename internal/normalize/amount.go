// Package normalize provides locale-tolerant parsing of statement amounts and
// dates, and merchant text normalization for the learning and recurring engines.
package normalize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a monetary string from a statement into a decimal value.
// It strips currency symbols and whitespace, treats a comma as a thousands
// separator when it precedes groups of exactly three digits and as a decimal
// separator otherwise, and reads parentheses as a negative sign.
//
// The second return value reports presence: a blank field returns
// (zero, false, nil) because "no debit" is not the same as "debit of 0".
func ParseAmount(raw string) (decimal.Decimal, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Strip currency symbols, letters (e.g. "INR", "Cr"), and inner whitespace.
	s = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' || r == '+' {
			return r
		}
		return -1
	}, s)

	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, false, fmt.Errorf("%w: %q has no digits", domain.ErrUnparsableAmount, raw)
	}

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "+")

	s, err := resolveSeparators(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q: %v", domain.ErrUnparsableAmount, raw, err)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q: %v", domain.ErrUnparsableAmount, raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}

// resolveSeparators rewrites a digit string with commas and periods into plain
// decimal notation. Commas grouping exactly three digits are thousands
// separators; a trailing comma group of another width is a decimal separator
// (regional tolerance for "1.234,56"-style exports).
func resolveSeparators(s string) (string, error) {
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		// Whichever separator comes last is the decimal point.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		if commaIsThousands(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			if strings.Count(s, ",") > 1 {
				return "", fmt.Errorf("ambiguous comma grouping")
			}
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	if strings.Count(s, ".") > 1 {
		// Multiple periods with no comma: thousands-separated European integer.
		s = strings.ReplaceAll(s, ".", "")
	}
	return s, nil
}

// commaIsThousands reports whether every comma in s is followed by a group of
// exactly three digits, i.e. the commas are grouping separators.
func commaIsThousands(s string) bool {
	groups := strings.Split(s, ",")
	for i, g := range groups {
		if i == 0 {
			continue
		}
		digits := g
		if i == len(groups)-1 {
			// Final group may carry a decimal part: "1,234.56".
			if dot := strings.Index(g, "."); dot >= 0 {
				digits = g[:dot]
			}
		}
		if len(digits) != 3 {
			return false
		}
	}
	return true
}
