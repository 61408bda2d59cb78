// Package layout detects which issuer export format a statement uses: where
// the header row sits, what delimits columns, and which column carries which
// semantic field. Adding a new issuer format is a column-synonym table edit,
// not a new parser type.
package layout

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/ledgermint/ledgermint/internal/domain"
)

// Field names a semantic statement column.
type Field string

const (
	FieldDate        Field = "date"
	FieldValueDate   Field = "valueDate"
	FieldDescription Field = "description"
	FieldReference   Field = "reference"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldAmount      Field = "amount"
	FieldBalance     Field = "balance"
)

// Layout describes a detected issuer export format.
type Layout struct {
	Delimiter   rune
	HeaderIndex int
	Columns     map[Field]int
	// Preamble holds key:value metadata lines found above the header row.
	Preamble map[string]string
}

// HasSplitAmounts reports whether the layout uses separate debit/credit
// columns rather than one signed amount column.
func (l *Layout) HasSplitAmounts() bool {
	_, debit := l.Columns[FieldDebit]
	_, credit := l.Columns[FieldCredit]
	return debit || credit
}

// headerScanWindow bounds how many leading lines are inspected for a header
// row, so garbage input fails fast instead of scanning unboundedly.
const headerScanWindow = 40

var delimiters = []rune{',', ';', '\t', '|'}

// Detect scans decoded statement text top-down for the first line whose
// fields contain recognizable date/description/amount column names. Lines
// above it are treated as key:value preamble metadata. Returns
// ErrUnrecognizedLayout when no header is found within the scan window.
func Detect(text string) (*Layout, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyStatement
	}

	lines := strings.Split(text, "\n")
	window := len(lines)
	if window > headerScanWindow {
		window = headerScanWindow
	}

	for i := 0; i < window; i++ {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, delim := range delimiters {
			cells, err := splitLine(line, delim)
			if err != nil || len(cells) < 2 {
				continue
			}
			columns := mapColumns(cells)
			if isHeader(columns) {
				return &Layout{
					Delimiter:   delim,
					HeaderIndex: i,
					Columns:     columns,
					Preamble:    parsePreamble(lines[:i]),
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: no header row in first %d lines", domain.ErrUnrecognizedLayout, window)
}

// splitLine tokenizes a single line with the candidate delimiter, honoring
// RFC-4180-style double-quote escaping since issuers quote inconsistently.
func splitLine(line string, delim rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	return r.Read()
}

// isHeader requires a date column, a description column, and at least one
// amount-bearing column before a line counts as the header row.
func isHeader(columns map[Field]int) bool {
	if _, ok := columns[FieldDate]; !ok {
		return false
	}
	if _, ok := columns[FieldDescription]; !ok {
		return false
	}
	_, debit := columns[FieldDebit]
	_, credit := columns[FieldCredit]
	_, amount := columns[FieldAmount]
	return debit || credit || amount
}

// mapColumns assigns each header cell to a semantic field. First match wins
// per field so duplicate headings keep the leftmost column.
func mapColumns(cells []string) map[Field]int {
	columns := make(map[Field]int)
	for i, cell := range cells {
		field, ok := fieldFor(cell)
		if !ok {
			continue
		}
		if _, taken := columns[field]; !taken {
			columns[field] = i
		}
	}
	return columns
}

// fieldFor classifies one header cell. Checks run most-specific first:
// "Withdrawal Amt" must resolve as a debit column, not a combined amount
// column, and "Value Date" must not shadow the transaction date.
func fieldFor(raw string) (Field, bool) {
	cell := normalizeCell(raw)
	if cell == "" {
		return "", false
	}

	switch {
	case strings.Contains(cell, "value date") || strings.Contains(cell, "value dt"):
		return FieldValueDate, true
	case strings.Contains(cell, "date"):
		return FieldDate, true
	case strings.Contains(cell, "withdrawal") || strings.Contains(cell, "debit") || cell == "dr":
		return FieldDebit, true
	case strings.Contains(cell, "deposit") || strings.Contains(cell, "credit") || cell == "cr":
		return FieldCredit, true
	case strings.Contains(cell, "balance"):
		return FieldBalance, true
	case strings.Contains(cell, "description") || strings.Contains(cell, "narration") ||
		strings.Contains(cell, "particular") || strings.Contains(cell, "details") ||
		strings.Contains(cell, "remarks"):
		return FieldDescription, true
	case strings.Contains(cell, "cheque") || strings.Contains(cell, "chq") ||
		strings.Contains(cell, "ref"):
		return FieldReference, true
	case strings.Contains(cell, "amount") || cell == "amt":
		return FieldAmount, true
	}
	return "", false
}

// normalizeCell lowercases a header cell and strips quotes and punctuation
// noise so "Ref No./Cheque No." and "ref no cheque no" compare equal.
func normalizeCell(cell string) string {
	s := strings.ToLower(strings.TrimSpace(cell))
	s = strings.Trim(s, `"'`)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '/' || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// parsePreamble extracts key:value metadata from the lines above the header.
// Lines with no separator are ignored rather than rejected; preambles are
// free-form and advisory only.
func parsePreamble(lines []string) map[string]string {
	meta := make(map[string]string)
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		line = strings.Trim(line, `"`)
		sep := strings.IndexAny(line, ":=")
		if sep <= 0 {
			continue
		}
		key := strings.TrimSpace(strings.Trim(line[:sep], `," `))
		value := strings.TrimSpace(strings.Trim(line[sep+1:], `," `))
		if key != "" && value != "" {
			meta[key] = value
		}
	}
	return meta
}
