package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for statement imports. File-level errors abort the import;
// row-level errors are recorded in the ImportReport and the import continues.
var (
	// ErrUnrecognizedLayout means no header row was found within the scan window. File-level.
	ErrUnrecognizedLayout = errors.New("unrecognized statement layout")
	// ErrEmptyStatement means the input had no parseable content at all. File-level.
	ErrEmptyStatement = errors.New("empty statement")
	// ErrUnparsableAmount means an amount field matched no known format. Row-level.
	ErrUnparsableAmount = errors.New("unparsable amount")
	// ErrUnparsableDate means a date field matched no known pattern. Row-level.
	ErrUnparsableDate = errors.New("unparsable date")
	// ErrMalformedRow means the row had both or neither of debit/credit present. Row-level.
	ErrMalformedRow = errors.New("malformed row")
)

// RowIssue records a single skipped row in an import report.
type RowIssue struct {
	Line int
	Err  error
}

func (i RowIssue) String() string {
	return fmt.Sprintf("line %d: %v", i.Line, i.Err)
}

// ImportReport accumulates row-level outcomes for one parsed statement.
// Row failures never abort the file; they land here instead.
type ImportReport struct {
	TotalRows  int
	ParsedRows int
	Issues     []RowIssue
}

// AddIssue records a skipped row. Line numbers are 1-based positions in the
// original file, preamble included.
func (r *ImportReport) AddIssue(line int, err error) {
	r.Issues = append(r.Issues, RowIssue{Line: line, Err: err})
}

// SkippedRows returns the number of rows skipped for row-level errors.
func (r *ImportReport) SkippedRows() int {
	return len(r.Issues)
}

// ImportResult summarizes one completed ImportStatement call so the caller
// can explain "imported 42 of 47 rows, 5 skipped" without crashing.
type ImportResult struct {
	TotalRows            int
	InsertedCount        int
	DuplicateCount       int
	MalformedRowCount    int
	AutoCategorizedCount int
	Issues               []RowIssue
}

// ImportRecord is the audit row persisted for each completed import.
type ImportRecord struct {
	ID             string
	AccountID      string
	Source         string
	TotalRows      int
	InsertedCount  int
	DuplicateCount int
	SkippedCount   int
	ImportedAt     time.Time
}
