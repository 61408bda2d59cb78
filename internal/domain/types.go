// Package domain defines the canonical ledger types shared by the ingestion pipeline.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents the flow of money in a transaction.
// Use ValidateDirection to ensure validity before use.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

var validDirections = map[Direction]struct{}{
	DirectionExpense: {}, DirectionIncome: {},
}

// ValidateDirection checks if direction is valid
func ValidateDirection(d Direction) bool {
	_, ok := validDirections[d]
	return ok
}

// Frequency classifies the period of a recurring payment.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

var validFrequencies = map[Frequency]struct{}{
	FrequencyDaily: {}, FrequencyWeekly: {}, FrequencyMonthly: {}, FrequencyYearly: {},
}

// ValidateFrequency checks if frequency is valid
func ValidateFrequency(f Frequency) bool {
	_, ok := validFrequencies[f]
	return ok
}

// NormalizedTransaction is the parser's output: a single statement row after
// layout mapping and amount/date normalization, not yet persisted.
// Amount is always non-negative; Direction carries the sign.
type NormalizedTransaction struct {
	AccountID   string
	Date        time.Time
	ValueDate   *time.Time
	Description string
	Reference   string
	Amount      decimal.Decimal
	Direction   Direction
	// Balance is the running balance copied verbatim from the statement when a
	// balance column exists. It is a reconciliation aid, never recomputed.
	Balance *decimal.Decimal
}

// NewNormalizedTransaction creates a validated normalized transaction.
func NewNormalizedTransaction(accountID string, date time.Time, description string, amount decimal.Decimal, direction Direction) (*NormalizedTransaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("transaction date cannot be zero")
	}
	if description == "" {
		return nil, fmt.Errorf("description cannot be empty")
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative, got %s", amount)
	}
	if !ValidateDirection(direction) {
		return nil, fmt.Errorf("invalid direction: %s", direction)
	}

	return &NormalizedTransaction{
		AccountID:   accountID,
		Date:        date,
		Description: description,
		Amount:      amount,
		Direction:   direction,
	}, nil
}

// LedgerEntry is a persisted transaction owned by the storage collaborator.
type LedgerEntry struct {
	ID          string
	AccountID   string
	Date        time.Time
	ValueDate   *time.Time
	Description string
	Reference   string
	Amount      decimal.Decimal
	Direction   Direction
	Balance     *decimal.Decimal
	// Merchant is the normalized merchant key derived from Description.
	Merchant string
	// CategoryID is empty while the entry is uncategorized.
	CategoryID        string
	IsAutoCategorized bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewLedgerEntry creates a validated ledger entry from a normalized transaction.
func NewLedgerEntry(id string, txn NormalizedTransaction, merchant string, now time.Time) (*LedgerEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("entry ID cannot be empty")
	}
	if merchant == "" {
		return nil, fmt.Errorf("merchant cannot be empty")
	}
	if txn.AccountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if !ValidateDirection(txn.Direction) {
		return nil, fmt.Errorf("invalid direction: %s", txn.Direction)
	}

	return &LedgerEntry{
		ID:          id,
		AccountID:   txn.AccountID,
		Date:        txn.Date,
		ValueDate:   txn.ValueDate,
		Description: txn.Description,
		Reference:   txn.Reference,
		Amount:      txn.Amount,
		Direction:   txn.Direction,
		Balance:     txn.Balance,
		Merchant:    merchant,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// LearningRule maps a normalized merchant pattern to a category with a
// confidence score in [0,1]. Owned by the learning engine's persistence
// boundary; mutate only through the engine so confidence updates stay atomic.
type LearningRule struct {
	Pattern    string
	CategoryID string
	Confidence float64
	UseCount   int
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// NewLearningRule creates a validated learning rule.
func NewLearningRule(pattern, categoryID string, confidence float64, now time.Time) (*LearningRule, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}
	if categoryID == "" {
		return nil, fmt.Errorf("category ID cannot be empty")
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0,1], got %f", confidence)
	}

	return &LearningRule{
		Pattern:    pattern,
		CategoryID: categoryID,
		Confidence: confidence,
		UseCount:   1,
		CreatedAt:  now,
		LastUsedAt: now,
	}, nil
}

// RecurringPattern is a detected cluster of same-merchant, similar-amount
// transactions with an inferred periodic frequency. Created and updated only
// by the recurring detector; Confirmed/Dismissed are sticky user decisions.
type RecurringPattern struct {
	Merchant      string
	Bucket        string
	AverageAmount decimal.Decimal
	Frequency     Frequency
	LastSeen      time.Time
	Occurrences   int
	Confirmed     bool
	Dismissed     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRecurringPattern creates a validated recurring pattern.
func NewRecurringPattern(merchant, bucket string, avg decimal.Decimal, freq Frequency, lastSeen time.Time, occurrences int, now time.Time) (*RecurringPattern, error) {
	if merchant == "" {
		return nil, fmt.Errorf("merchant cannot be empty")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	if !ValidateFrequency(freq) {
		return nil, fmt.Errorf("invalid frequency: %s", freq)
	}
	if occurrences < 2 {
		return nil, fmt.Errorf("recurring pattern requires at least 2 occurrences, got %d", occurrences)
	}

	return &RecurringPattern{
		Merchant:      merchant,
		Bucket:        bucket,
		AverageAmount: avg,
		Frequency:     freq,
		LastSeen:      lastSeen,
		Occurrences:   occurrences,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
