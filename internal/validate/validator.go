// Package validate performs integrity checks over persisted ledger state,
// reporting every violation rather than stopping at the first.
package validate

import (
	"fmt"

	"github.com/ledgermint/ledgermint/internal/dedup"
	"github.com/ledgermint/ledgermint/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a ledger.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a violated invariant.
type ValidationError struct {
	Entity  string // "entry", "rule", "pattern"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical issue worth surfacing.
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// HasErrors reports whether any invariant was violated.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ValidateLedger checks every persisted entry against the ledger invariants:
// unique IDs, unique fingerprints within an account, non-negative amounts,
// valid directions, and categorization consistency.
func ValidateLedger(entries []domain.LedgerEntry) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	entryIDs := make(map[string]bool)
	fingerprints := make(map[string]string)

	for _, e := range entries {
		if e.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "ID",
				Value:   "",
				Message: "entry ID cannot be empty",
			})
		}
		if e.AccountID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "AccountID",
				Value:   "",
				Message: "entry accountId cannot be empty",
			})
		}
		if e.Description == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Description",
				Value:   "",
				Message: "entry description cannot be empty",
			})
		}
		if e.Merchant == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Merchant",
				Value:   "",
				Message: "entry merchant key cannot be empty",
			})
		}
		if e.Date.IsZero() {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Date",
				Value:   "",
				Message: "entry date cannot be zero",
			})
		}

		if !domain.ValidateDirection(e.Direction) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Direction",
				Value:   string(e.Direction),
				Message: fmt.Sprintf("invalid direction: %s (must be expense or income)", e.Direction),
			})
		}

		if e.Amount.IsNegative() {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Amount",
				Value:   e.Amount.String(),
				Message: "amount cannot be negative; direction carries the sign",
			})
		}
		if e.Amount.IsZero() {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Amount",
				Value:   "0",
				Message: "zero-amount entry (present-but-zero statement field)",
			})
		}

		// Auto-categorization without a category means the flag was set on a
		// path that never assigned one.
		if e.IsAutoCategorized && e.CategoryID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "CategoryID",
				Value:   "",
				Message: "auto-categorized entry has no category",
			})
		}

		if e.ID != "" {
			if entryIDs[e.ID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "entry",
					ID:      e.ID,
					Field:   "ID",
					Value:   e.ID,
					Message: "duplicate entry ID",
				})
			}
			entryIDs[e.ID] = true
		}

		// Two persisted entries with the same fingerprint means dedup was
		// bypassed somewhere.
		fp := dedup.Fingerprint(e.AccountID, e.Date, e.Amount, e.Description)
		if otherID, seen := fingerprints[fp]; seen {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "entry",
				ID:      e.ID,
				Field:   "Fingerprint",
				Value:   fp,
				Message: fmt.Sprintf("duplicate fingerprint shared with entry %s", otherID),
			})
		} else {
			fingerprints[fp] = e.ID
		}
	}

	return result
}

// ValidateRules checks learned rules for confidence bounds and key integrity.
func ValidateRules(rules []domain.LearningRule) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	patterns := make(map[string]bool)
	for _, r := range rules {
		if r.Pattern == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "rule",
				ID:      r.Pattern,
				Field:   "Pattern",
				Value:   "",
				Message: "rule pattern cannot be empty",
			})
		}
		if r.CategoryID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "rule",
				ID:      r.Pattern,
				Field:   "CategoryID",
				Value:   "",
				Message: "rule category cannot be empty",
			})
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "rule",
				ID:      r.Pattern,
				Field:   "Confidence",
				Value:   fmt.Sprintf("%f", r.Confidence),
				Message: fmt.Sprintf("confidence must be in [0,1], got %f", r.Confidence),
			})
		}
		if r.UseCount < 1 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "rule",
				ID:      r.Pattern,
				Field:   "UseCount",
				Value:   fmt.Sprintf("%d", r.UseCount),
				Message: "rule exists but was never used",
			})
		}

		if r.Pattern != "" {
			if patterns[r.Pattern] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "rule",
					ID:      r.Pattern,
					Field:   "Pattern",
					Value:   r.Pattern,
					Message: "duplicate rule pattern",
				})
			}
			patterns[r.Pattern] = true
		}
	}

	return result
}

// ValidatePatterns checks recurring patterns for key integrity and the
// two-occurrence minimum.
func ValidatePatterns(patterns []domain.RecurringPattern) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	keys := make(map[string]bool)
	for _, p := range patterns {
		id := p.Merchant + "/" + p.Bucket

		if p.Merchant == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "pattern",
				ID:      id,
				Field:   "Merchant",
				Value:   "",
				Message: "pattern merchant cannot be empty",
			})
		}
		if p.Bucket == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "pattern",
				ID:      id,
				Field:   "Bucket",
				Value:   "",
				Message: "pattern bucket cannot be empty",
			})
		}
		if !domain.ValidateFrequency(p.Frequency) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "pattern",
				ID:      id,
				Field:   "Frequency",
				Value:   string(p.Frequency),
				Message: fmt.Sprintf("invalid frequency: %s", p.Frequency),
			})
		}
		if p.Occurrences < 2 {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "pattern",
				ID:      id,
				Field:   "Occurrences",
				Value:   fmt.Sprintf("%d", p.Occurrences),
				Message: "recurring pattern requires at least 2 occurrences",
			})
		}
		if p.Confirmed && p.Dismissed {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "pattern",
				ID:      id,
				Field:   "Confirmed",
				Value:   "true",
				Message: "pattern cannot be both confirmed and dismissed",
			})
		}

		if p.Merchant != "" && p.Bucket != "" {
			if keys[id] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "pattern",
					ID:      id,
					Field:   "Merchant",
					Value:   id,
					Message: "duplicate pattern key",
				})
			}
			keys[id] = true
		}
	}

	return result
}
