// Package statement parses raw statement exports into normalized transactions.
// One generic row-mapping routine consumes whatever layout the detector
// reports; there is no per-issuer parser type.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/ledgermint/ledgermint/internal/layout"
	"github.com/ledgermint/ledgermint/internal/normalize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Parse converts raw statement bytes into normalized transactions for the
// given account. Row-level failures are recorded in the report and never
// abort the file; file-level failures (no recognizable header, empty input)
// return an error with zero transactions. Parse has no side effects:
// persistence is the caller's responsibility.
func Parse(raw []byte, accountID string) ([]domain.NormalizedTransaction, *domain.ImportReport, error) {
	if accountID == "" {
		return nil, nil, fmt.Errorf("account ID cannot be empty")
	}

	text, err := decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode statement: %w", err)
	}

	detected, err := layout.Detect(text)
	if err != nil {
		return nil, nil, err
	}

	// Re-read from the header row down so preamble lines never reach the CSV
	// reader; quoting inside preamble metadata is not required to be valid.
	lines := strings.Split(text, "\n")
	body := strings.Join(lines[detected.HeaderIndex:], "\n")

	r := csv.NewReader(strings.NewReader(body))
	r.Comma = detected.Delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	report := &domain.ImportReport{}
	var transactions []domain.NormalizedTransaction

	for rowIdx := 0; ; rowIdx++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if rowIdx == 0 {
				return nil, nil, fmt.Errorf("failed to read header row: %w", err)
			}
			report.TotalRows++
			report.AddIssue(issueLine(detected.HeaderIndex, rowIdx, err), fmt.Errorf("%w: %v", domain.ErrMalformedRow, err))
			continue
		}
		if rowIdx == 0 {
			continue // header row
		}
		if blankRecord(record) {
			continue
		}

		// A record spans physical lines when a quoted field embeds a newline,
		// so the file position comes from the reader, not the record count.
		startLine, _ := r.FieldPos(0)
		line := detected.HeaderIndex + startLine

		report.TotalRows++
		txn, err := mapRow(record, detected, accountID)
		if err != nil {
			report.AddIssue(line, err)
			continue
		}
		report.ParsedRows++
		transactions = append(transactions, *txn)
	}

	if report.TotalRows == 0 {
		return nil, nil, fmt.Errorf("%w: header found but no data rows", domain.ErrEmptyStatement)
	}
	return transactions, report, nil
}

// issueLine locates a malformed record in the original file. The CSV reader
// carries the input line on its parse errors; anything else falls back to
// counting records down from the header.
func issueLine(headerIndex, rowIdx int, err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return headerIndex + pe.Line
	}
	return headerIndex + rowIdx + 1
}

// decode converts raw bytes to UTF-8 text, stripping a leading byte-order
// mark and tolerating UTF-16 exports via BOM sniffing.
func decode(raw []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	text, _, err := transform.String(dec, string(raw))
	if err != nil {
		return "", err
	}
	return text, nil
}

// blankRecord reports whether every cell in the record is empty.
func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cell returns the record value for a semantic field, or "" when the layout
// has no such column or the row is shorter than the header. Short rows are
// padded with absent values, never rejected.
func cell(record []string, l *layout.Layout, field layout.Field) string {
	idx, ok := l.Columns[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// mapRow converts one data record into a normalized transaction using the
// detected column mapping. Column order is never assumed.
func mapRow(record []string, l *layout.Layout, accountID string) (*domain.NormalizedTransaction, error) {
	date, err := normalize.ParseDate(cell(record, l, layout.FieldDate))
	if err != nil {
		return nil, err
	}

	description := normalize.Description(cell(record, l, layout.FieldDescription))
	if description == "" {
		return nil, fmt.Errorf("%w: empty description", domain.ErrMalformedRow)
	}

	amount, direction, err := resolveAmount(record, l)
	if err != nil {
		return nil, err
	}

	txn, err := domain.NewNormalizedTransaction(accountID, date, description, amount, direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRow, err)
	}

	txn.Reference = cell(record, l, layout.FieldReference)

	// Optional columns degrade to absent on parse failure: a bad value date
	// or balance is not grounds to drop an otherwise good row.
	if raw := cell(record, l, layout.FieldValueDate); raw != "" {
		if vd, err := normalize.ParseDate(raw); err == nil {
			txn.ValueDate = &vd
		}
	}
	if raw := cell(record, l, layout.FieldBalance); raw != "" {
		if bal, present, err := normalize.ParseAmount(raw); err == nil && present {
			txn.Balance = &bal
		}
	}

	return txn, nil
}

// resolveAmount derives the non-negative amount and direction from either
// split debit/credit columns or a single signed amount column. With split
// columns exactly one of the two must be present: both-present and
// both-absent rows are malformed.
func resolveAmount(record []string, l *layout.Layout) (decimal.Decimal, domain.Direction, error) {
	if l.HasSplitAmounts() {
		debit, debitPresent, err := normalize.ParseAmount(cell(record, l, layout.FieldDebit))
		if err != nil {
			return decimal.Zero, "", err
		}
		credit, creditPresent, err := normalize.ParseAmount(cell(record, l, layout.FieldCredit))
		if err != nil {
			return decimal.Zero, "", err
		}

		switch {
		case debitPresent && creditPresent:
			return decimal.Zero, "", fmt.Errorf("%w: both debit and credit present", domain.ErrMalformedRow)
		case debitPresent:
			return debit.Abs(), domain.DirectionExpense, nil
		case creditPresent:
			return credit.Abs(), domain.DirectionIncome, nil
		default:
			return decimal.Zero, "", fmt.Errorf("%w: neither debit nor credit present", domain.ErrMalformedRow)
		}
	}

	amount, present, err := normalize.ParseAmount(cell(record, l, layout.FieldAmount))
	if err != nil {
		return decimal.Zero, "", err
	}
	if !present {
		return decimal.Zero, "", fmt.Errorf("%w: amount absent", domain.ErrMalformedRow)
	}
	if amount.IsNegative() {
		return amount.Abs(), domain.DirectionExpense, nil
	}
	return amount, domain.DirectionIncome, nil
}
