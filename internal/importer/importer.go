// Package importer orchestrates the statement pipeline: parse, deduplicate,
// persist, silently categorize, and rescan for recurring payments. It owns no
// parsing or scoring logic itself; it sequences the collaborators and
// serializes writes per account.
package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgermint/ledgermint/internal/dedup"
	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/ledgermint/ledgermint/internal/learning"
	"github.com/ledgermint/ledgermint/internal/normalize"
	"github.com/ledgermint/ledgermint/internal/recurring"
	"github.com/ledgermint/ledgermint/internal/statement"
)

// LedgerStore is the persistence boundary for ledger entries.
// GetLedgerEntry returns (nil, nil) when no entry exists for the ID.
type LedgerStore interface {
	QueryLedgerEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error)
	InsertLedgerEntries(ctx context.Context, accountID string, entries []domain.LedgerEntry) (int, error)
	UpdateEntryCategory(ctx context.Context, entryID, categoryID string, auto bool) error
	GetLedgerEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error)
}

// AuditStore records one row per completed import for the user-facing
// "imported 42 of 47" summary. Optional: a nil audit store skips recording.
type AuditStore interface {
	RecordImport(ctx context.Context, record *domain.ImportRecord) error
}

// Importer wires the parsing, dedup, learning and recurring collaborators
// into the three public operations of the pipeline.
type Importer struct {
	ledger   LedgerStore
	audit    AuditStore
	engine   *learning.Engine
	detector *recurring.Detector

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now   func() time.Time
	newID func() string
}

// New creates an importer. audit may be nil when no audit trail is wanted.
func New(ledger LedgerStore, audit AuditStore, engine *learning.Engine, detector *recurring.Detector) *Importer {
	return &Importer{
		ledger:   ledger,
		audit:    audit,
		engine:   engine,
		detector: detector,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ImportStatement ingests one raw statement export (CSV-like or OFX) for an
// account: parse, fingerprint against existing ledger state, insert the
// survivors, auto-categorize the confident ones, and rescan for recurring
// patterns. Imports for the same account are serialized; re-importing the
// same file is a no-op apart from the duplicate count.
func (imp *Importer) ImportStatement(ctx context.Context, raw []byte, accountID string) (domain.ImportResult, error) {
	return imp.ImportStatementFrom(ctx, raw, accountID, "")
}

// ImportStatementFrom is ImportStatement with a source label (typically the
// file name) carried into the audit record.
func (imp *Importer) ImportStatementFrom(ctx context.Context, raw []byte, accountID, source string) (domain.ImportResult, error) {
	var result domain.ImportResult
	if accountID == "" {
		return result, fmt.Errorf("account ID cannot be empty")
	}

	unlock := imp.lockAccount(accountID)
	defer unlock()

	txns, report, err := parseStatement(raw, accountID)
	if err != nil {
		return result, err
	}
	result.TotalRows = report.TotalRows
	result.MalformedRowCount = report.SkippedRows()
	result.Issues = report.Issues

	existing, err := imp.ledger.QueryLedgerEntries(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("failed to query ledger for account %s: %w", accountID, err)
	}

	part := dedup.Classify(txns, existing)
	result.DuplicateCount = len(part.Duplicate)

	entries, autoCount, err := imp.buildEntries(ctx, part.New)
	if err != nil {
		return result, err
	}
	result.AutoCategorizedCount = autoCount

	if len(entries) > 0 {
		inserted, err := imp.ledger.InsertLedgerEntries(ctx, accountID, entries)
		if err != nil {
			return result, fmt.Errorf("failed to insert entries for account %s: %w", accountID, err)
		}
		result.InsertedCount = inserted
	}

	// Recurring detection runs over the full post-import history so patterns
	// pick up occurrences that straddle statement boundaries.
	if err := imp.detector.Scan(ctx, append(existing, entries...)); err != nil {
		return result, fmt.Errorf("recurring scan after import: %w", err)
	}

	if imp.audit != nil {
		record := &domain.ImportRecord{
			ID:             imp.newID(),
			AccountID:      accountID,
			Source:         source,
			TotalRows:      result.TotalRows,
			InsertedCount:  result.InsertedCount,
			DuplicateCount: result.DuplicateCount,
			SkippedCount:   result.MalformedRowCount,
			ImportedAt:     imp.now(),
		}
		if err := imp.audit.RecordImport(ctx, record); err != nil {
			return result, fmt.Errorf("failed to record import audit row: %w", err)
		}
	}

	return result, nil
}

// parseStatement routes raw bytes to the OFX or CSV parser by sniffing the
// content, never the file name.
func parseStatement(raw []byte, accountID string) ([]domain.NormalizedTransaction, *domain.ImportReport, error) {
	if statement.IsOFX(raw) {
		return statement.ParseOFX(raw, accountID)
	}
	return statement.Parse(raw, accountID)
}

// buildEntries converts surviving transactions into ledger entries, applying
// a learned category silently when the prediction clears the auto-apply
// threshold. Auto-application never feeds the learning engine: only explicit
// user confirmation does.
func (imp *Importer) buildEntries(ctx context.Context, txns []domain.NormalizedTransaction) ([]domain.LedgerEntry, int, error) {
	now := imp.now()
	entries := make([]domain.LedgerEntry, 0, len(txns))
	autoCount := 0

	for _, txn := range txns {
		merchant := normalize.MerchantKey(txn.Description)
		entry, err := domain.NewLedgerEntry(imp.newID(), txn, merchant, now)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build ledger entry: %w", err)
		}

		prediction, err := imp.engine.Predict(ctx, txn.Description)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to predict category for %q: %w", merchant, err)
		}
		if imp.engine.AutoApply(prediction) {
			entry.CategoryID = prediction.CategoryID
			entry.IsAutoCategorized = true
			autoCount++
		}

		entries = append(entries, *entry)
	}
	return entries, autoCount, nil
}

// ConfirmCategory records the user's categorization of one ledger entry and
// feeds the confirmation into the learning engine. This is the only path
// through which rules strengthen.
func (imp *Importer) ConfirmCategory(ctx context.Context, entryID, categoryID string) error {
	if entryID == "" {
		return fmt.Errorf("entry ID cannot be empty")
	}
	if categoryID == "" {
		return fmt.Errorf("category ID cannot be empty")
	}

	entry, err := imp.ledger.GetLedgerEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("failed to load entry %s: %w", entryID, err)
	}
	if entry == nil {
		return fmt.Errorf("no ledger entry with ID %s", entryID)
	}

	if err := imp.ledger.UpdateEntryCategory(ctx, entryID, categoryID, false); err != nil {
		return fmt.Errorf("failed to update category on entry %s: %w", entryID, err)
	}
	if err := imp.engine.Confirm(ctx, entry.Description, categoryID); err != nil {
		return fmt.Errorf("failed to record confirmation for entry %s: %w", entryID, err)
	}
	return nil
}

// UnconfirmedSubscriptions returns detected recurring patterns the user has
// neither confirmed nor dismissed.
func (imp *Importer) UnconfirmedSubscriptions(ctx context.Context) ([]domain.RecurringPattern, error) {
	return imp.detector.Unconfirmed(ctx)
}

// ConfirmSubscription marks a recurring pattern as a real subscription.
func (imp *Importer) ConfirmSubscription(ctx context.Context, merchant, bucket string) error {
	return imp.detector.Confirm(ctx, merchant, bucket)
}

// DismissSubscription permanently hides a recurring pattern.
func (imp *Importer) DismissSubscription(ctx context.Context, merchant, bucket string) error {
	return imp.detector.Dismiss(ctx, merchant, bucket)
}

// lockAccount serializes imports targeting a single account. Different
// accounts import concurrently.
func (imp *Importer) lockAccount(accountID string) func() {
	imp.mu.Lock()
	l, ok := imp.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		imp.locks[accountID] = l
	}
	imp.mu.Unlock()
	l.Lock()
	return l.Unlock
}
