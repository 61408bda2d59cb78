package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Description trims and whitespace-collapses raw statement text without
// changing case. This is the form stored on ledger entries and used in the
// dedup fingerprint.
func Description(raw string) string {
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")
}

// noiseTokens are transaction-plumbing words that carry no merchant identity.
// Dropping them keeps "POS 412398 NETFLIX COM" and "NETFLIX COM" on the same
// learning rule.
var noiseTokens = map[string]struct{}{
	"pos": {}, "atm": {}, "ach": {}, "neft": {}, "imps": {}, "rtgs": {},
	"upi": {}, "txn": {}, "ref": {}, "trf": {}, "tfr": {}, "pmt": {},
	"payment": {}, "purchase": {}, "debit": {}, "credit": {}, "card": {},
	"to": {}, "from": {}, "by": {}, "via": {},
}

// mostlyDigits reports whether a token is predominantly numeric, such as a
// reference number or a masked card fragment.
func mostlyDigits(tok string) bool {
	digits := 0
	for _, r := range tok {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits*2 > len(tok)
}

// MerchantKey derives the normalized merchant pattern from a description:
// diacritics folded, lower-cased, punctuation split, noise and reference
// tokens stripped, whitespace collapsed. Falls back to the lower-cased
// description when stripping would leave nothing.
func MerchantKey(description string) string {
	folded := foldDiacritics(description)
	lowered := strings.ToLower(folded)

	// Split on anything that is not a letter or digit.
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, noisy := noiseTokens[tok]; noisy {
			continue
		}
		if mostlyDigits(tok) {
			continue
		}
		kept = append(kept, tok)
	}

	if len(kept) == 0 {
		return whitespacePattern.ReplaceAllString(strings.TrimSpace(lowered), " ")
	}
	return strings.Join(kept, " ")
}

// foldDiacritics strips combining marks so "Café Mére" keys as "cafe mere".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
