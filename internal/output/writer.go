// Package output serializes import results and subscription listings to JSON
// for scripting against the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ledgermint/ledgermint/internal/domain"
)

// WriteOptions configures where the JSON goes.
type WriteOptions struct {
	FilePath string // Output path (empty = stdout)
}

// importResultJSON is the wire shape of an import summary.
type importResultJSON struct {
	TotalRows       int        `json:"totalRows"`
	Inserted        int        `json:"inserted"`
	Duplicates      int        `json:"duplicates"`
	Skipped         int        `json:"skipped"`
	AutoCategorized int        `json:"autoCategorized"`
	Issues          []rowIssue `json:"issues,omitempty"`
}

type rowIssue struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// patternJSON is the wire shape of a recurring pattern.
type patternJSON struct {
	Merchant      string `json:"merchant"`
	Bucket        string `json:"bucket"`
	AverageAmount string `json:"averageAmount"`
	Frequency     string `json:"frequency"`
	LastSeen      string `json:"lastSeen"`
	Occurrences   int    `json:"occurrences"`
	Confirmed     bool   `json:"confirmed"`
}

// WriteImportResult serializes an import summary as indented JSON.
func WriteImportResult(result *domain.ImportResult, w io.Writer) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	out := importResultJSON{
		TotalRows:       result.TotalRows,
		Inserted:        result.InsertedCount,
		Duplicates:      result.DuplicateCount,
		Skipped:         result.MalformedRowCount,
		AutoCategorized: result.AutoCategorizedCount,
	}
	for _, issue := range result.Issues {
		out.Issues = append(out.Issues, rowIssue{Line: issue.Line, Error: issue.Err.Error()})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode import result as JSON: %w", err)
	}
	return nil
}

// WritePatterns serializes recurring patterns as indented JSON.
func WritePatterns(patterns []domain.RecurringPattern, w io.Writer) error {
	out := make([]patternJSON, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternJSON{
			Merchant:      p.Merchant,
			Bucket:        p.Bucket,
			AverageAmount: p.AverageAmount.String(),
			Frequency:     string(p.Frequency),
			LastSeen:      p.LastSeen.Format("2006-01-02"),
			Occurrences:   p.Occurrences,
			Confirmed:     p.Confirmed,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode patterns as JSON: %w", err)
	}
	return nil
}

// WriteImportResultTo writes the summary to the configured path, or stdout
// when no path is set.
func WriteImportResultTo(result *domain.ImportResult, opts WriteOptions) (err error) {
	if opts.FilePath == "" {
		return WriteImportResult(result, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteImportResult(result, f); err != nil {
		return fmt.Errorf("failed to write import result to %s: %w", opts.FilePath, err)
	}
	return nil
}
