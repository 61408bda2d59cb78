// Package firestore implements the ledger, rule, pattern, and audit stores on
// Cloud Firestore for the hosted collaborator. Amounts are stored as exact
// decimal strings; document IDs mirror the domain keys so upserts are
// idempotent Set calls.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shopspring/decimal"

	"github.com/ledgermint/ledgermint/internal/domain"
)

const (
	entriesCollection  = "ledger-entries"
	rulesCollection    = "learning-rules"
	patternsCollection = "recurring-patterns"
	importsCollection  = "ledger-imports"
)

// Client wraps a Firestore client with ledger-specific operations. One Client
// satisfies every persistence interface of the pipeline.
type Client struct {
	fs        *firestore.Client
	projectID string
	now       func() time.Time
}

// NewClient creates a Firestore-backed store for the given project.
// credsPath may be empty to use Application Default Credentials.
func NewClient(ctx context.Context, projectID, credsPath string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Client{fs: fs, projectID: projectID, now: time.Now}, nil
}

// Close closes the underlying Firestore client.
func (c *Client) Close() error {
	return c.fs.Close()
}

// ledgerEntryDoc is the Firestore shape of a ledger entry. Amounts are
// decimal strings so fingerprints survive the round trip exactly.
type ledgerEntryDoc struct {
	ID                string     `firestore:"id"`
	AccountID         string     `firestore:"accountId"`
	Date              time.Time  `firestore:"date"`
	ValueDate         *time.Time `firestore:"valueDate,omitempty"`
	Description       string     `firestore:"description"`
	Reference         string     `firestore:"reference"`
	Amount            string     `firestore:"amount"`
	Direction         string     `firestore:"direction"`
	Balance           string     `firestore:"balance,omitempty"`
	Merchant          string     `firestore:"merchant"`
	CategoryID        string     `firestore:"categoryId"`
	IsAutoCategorized bool       `firestore:"isAutoCategorized"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func toEntryDoc(e *domain.LedgerEntry) *ledgerEntryDoc {
	doc := &ledgerEntryDoc{
		ID:                e.ID,
		AccountID:         e.AccountID,
		Date:              e.Date,
		ValueDate:         e.ValueDate,
		Description:       e.Description,
		Reference:         e.Reference,
		Amount:            e.Amount.String(),
		Direction:         string(e.Direction),
		Merchant:          e.Merchant,
		CategoryID:        e.CategoryID,
		IsAutoCategorized: e.IsAutoCategorized,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.Balance != nil {
		doc.Balance = e.Balance.String()
	}
	return doc
}

func (d *ledgerEntryDoc) toDomain() (*domain.LedgerEntry, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q on entry %s: %w", d.Amount, d.ID, err)
	}
	entry := &domain.LedgerEntry{
		ID:                d.ID,
		AccountID:         d.AccountID,
		Date:              d.Date,
		ValueDate:         d.ValueDate,
		Description:       d.Description,
		Reference:         d.Reference,
		Amount:            amount,
		Direction:         domain.Direction(d.Direction),
		Merchant:          d.Merchant,
		CategoryID:        d.CategoryID,
		IsAutoCategorized: d.IsAutoCategorized,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.Balance != "" {
		bal, err := decimal.NewFromString(d.Balance)
		if err != nil {
			return nil, fmt.Errorf("invalid stored balance %q on entry %s: %w", d.Balance, d.ID, err)
		}
		entry.Balance = &bal
	}
	return entry, nil
}

// QueryLedgerEntries retrieves all entries for an account, oldest first.
func (c *Client) QueryLedgerEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	iter := c.fs.Collection(entriesCollection).
		Where("accountId", "==", accountID).
		OrderBy("date", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var entries []domain.LedgerEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate entries for account %s: %w", accountID, err)
		}

		var d ledgerEntryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse ledger entry: %w", err)
		}
		entry, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// InsertLedgerEntries writes entries through a BulkWriter and returns the
// count actually committed. Set only reports queuing failures and End flushes
// without surfacing anything; the write outcomes live on the individual jobs.
func (c *Client) InsertLedgerEntries(ctx context.Context, accountID string, entries []domain.LedgerEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	bw := c.fs.BulkWriter(ctx)
	jobs := make([]bulkJob, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.AccountID != accountID {
			return 0, fmt.Errorf("entry %s belongs to account %s, not %s", e.ID, e.AccountID, accountID)
		}
		ref := c.fs.Collection(entriesCollection).Doc(e.ID)
		job, err := bw.Set(ref, toEntryDoc(e))
		if err != nil {
			return 0, fmt.Errorf("failed to queue entry %s: %w", e.ID, err)
		}
		jobs = append(jobs, job)
		ids = append(ids, e.ID)
	}
	bw.End()

	committed, err := countCommitted(jobs, ids)
	if err != nil {
		return committed, fmt.Errorf("committed %d of %d entries: %w", committed, len(entries), err)
	}
	return committed, nil
}

// bulkJob is the per-write handle returned by BulkWriter.Set.
type bulkJob interface {
	Results() (*firestore.WriteResult, error)
}

// countCommitted tallies the jobs that flushed successfully, reporting the
// first failure so callers know the batch did not fully land.
func countCommitted(jobs []bulkJob, ids []string) (int, error) {
	committed := 0
	var firstErr error
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to write entry %s: %w", ids[i], err)
			}
			continue
		}
		committed++
	}
	return committed, firstErr
}

// UpdateEntryCategory sets the category on one entry.
func (c *Client) UpdateEntryCategory(ctx context.Context, entryID, categoryID string, auto bool) error {
	_, err := c.fs.Collection(entriesCollection).Doc(entryID).Update(ctx, []firestore.Update{
		{Path: "categoryId", Value: categoryID},
		{Path: "isAutoCategorized", Value: auto},
		{Path: "updatedAt", Value: c.now().UTC()},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("no ledger entry with ID %s", entryID)
	}
	if err != nil {
		return fmt.Errorf("failed to update category on entry %s: %w", entryID, err)
	}
	return nil
}

// GetLedgerEntry retrieves one entry, or (nil, nil) when absent.
func (c *Client) GetLedgerEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	doc, err := c.fs.Collection(entriesCollection).Doc(entryID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", entryID, err)
	}

	var d ledgerEntryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse ledger entry: %w", err)
	}
	return d.toDomain()
}

type learningRuleDoc struct {
	Pattern    string    `firestore:"pattern"`
	CategoryID string    `firestore:"categoryId"`
	Confidence float64   `firestore:"confidence"`
	UseCount   int       `firestore:"useCount"`
	CreatedAt  time.Time `firestore:"createdAt"`
	LastUsedAt time.Time `firestore:"lastUsedAt"`
}

// GetLearningRule retrieves the rule for a pattern, or (nil, nil) when absent.
func (c *Client) GetLearningRule(ctx context.Context, pattern string) (*domain.LearningRule, error) {
	doc, err := c.fs.Collection(rulesCollection).Doc(pattern).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %q: %w", pattern, err)
	}

	var d learningRuleDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse learning rule: %w", err)
	}
	return &domain.LearningRule{
		Pattern:    d.Pattern,
		CategoryID: d.CategoryID,
		Confidence: d.Confidence,
		UseCount:   d.UseCount,
		CreatedAt:  d.CreatedAt,
		LastUsedAt: d.LastUsedAt,
	}, nil
}

// UpsertLearningRule writes the rule, keyed by its pattern.
func (c *Client) UpsertLearningRule(ctx context.Context, rule *domain.LearningRule) error {
	_, err := c.fs.Collection(rulesCollection).Doc(rule.Pattern).Set(ctx, &learningRuleDoc{
		Pattern:    rule.Pattern,
		CategoryID: rule.CategoryID,
		Confidence: rule.Confidence,
		UseCount:   rule.UseCount,
		CreatedAt:  rule.CreatedAt,
		LastUsedAt: rule.LastUsedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert rule %q: %w", rule.Pattern, err)
	}
	return nil
}

// ListLearningRules retrieves every stored rule.
func (c *Client) ListLearningRules(ctx context.Context) ([]domain.LearningRule, error) {
	iter := c.fs.Collection(rulesCollection).Documents(ctx)
	defer iter.Stop()

	var rules []domain.LearningRule
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate rules: %w", err)
		}

		var d learningRuleDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse learning rule: %w", err)
		}
		rules = append(rules, domain.LearningRule{
			Pattern:    d.Pattern,
			CategoryID: d.CategoryID,
			Confidence: d.Confidence,
			UseCount:   d.UseCount,
			CreatedAt:  d.CreatedAt,
			LastUsedAt: d.LastUsedAt,
		})
	}
	return rules, nil
}

type recurringPatternDoc struct {
	Merchant      string    `firestore:"merchant"`
	Bucket        string    `firestore:"bucket"`
	AverageAmount string    `firestore:"averageAmount"`
	Frequency     string    `firestore:"frequency"`
	LastSeen      time.Time `firestore:"lastSeen"`
	Occurrences   int       `firestore:"occurrences"`
	Confirmed     bool      `firestore:"confirmed"`
	Dismissed     bool      `firestore:"dismissed"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func patternDocID(merchant, bucket string) string {
	// Merchant keys are normalized to alphanumerics and spaces, so the
	// composite never collides with the separator.
	return merchant + "|" + bucket
}

func (d *recurringPatternDoc) toDomain() (*domain.RecurringPattern, error) {
	avg, err := decimal.NewFromString(d.AverageAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored average amount %q on pattern %s/%s: %w", d.AverageAmount, d.Merchant, d.Bucket, err)
	}
	return &domain.RecurringPattern{
		Merchant:      d.Merchant,
		Bucket:        d.Bucket,
		AverageAmount: avg,
		Frequency:     domain.Frequency(d.Frequency),
		LastSeen:      d.LastSeen,
		Occurrences:   d.Occurrences,
		Confirmed:     d.Confirmed,
		Dismissed:     d.Dismissed,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

// GetRecurringPattern retrieves the pattern for (merchant, bucket), or
// (nil, nil) when absent.
func (c *Client) GetRecurringPattern(ctx context.Context, merchant, bucket string) (*domain.RecurringPattern, error) {
	doc, err := c.fs.Collection(patternsCollection).Doc(patternDocID(merchant, bucket)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern %s/%s: %w", merchant, bucket, err)
	}

	var d recurringPatternDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse recurring pattern: %w", err)
	}
	return d.toDomain()
}

// UpsertRecurringPattern writes the pattern, keyed by (merchant, bucket).
func (c *Client) UpsertRecurringPattern(ctx context.Context, p *domain.RecurringPattern) error {
	_, err := c.fs.Collection(patternsCollection).Doc(patternDocID(p.Merchant, p.Bucket)).Set(ctx, &recurringPatternDoc{
		Merchant:      p.Merchant,
		Bucket:        p.Bucket,
		AverageAmount: p.AverageAmount.String(),
		Frequency:     string(p.Frequency),
		LastSeen:      p.LastSeen,
		Occurrences:   p.Occurrences,
		Confirmed:     p.Confirmed,
		Dismissed:     p.Dismissed,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert pattern %s/%s: %w", p.Merchant, p.Bucket, err)
	}
	return nil
}

// ListRecurringPatterns retrieves every stored pattern.
func (c *Client) ListRecurringPatterns(ctx context.Context) ([]domain.RecurringPattern, error) {
	iter := c.fs.Collection(patternsCollection).Documents(ctx)
	defer iter.Stop()

	var patterns []domain.RecurringPattern
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate patterns: %w", err)
		}

		var d recurringPatternDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse recurring pattern: %w", err)
		}
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	return patterns, nil
}

type importDoc struct {
	ID             string    `firestore:"id"`
	AccountID      string    `firestore:"accountId"`
	Source         string    `firestore:"source"`
	TotalRows      int       `firestore:"totalRows"`
	InsertedCount  int       `firestore:"insertedCount"`
	DuplicateCount int       `firestore:"duplicateCount"`
	SkippedCount   int       `firestore:"skippedCount"`
	ImportedAt     time.Time `firestore:"importedAt"`
}

// RecordImport appends one audit document for a completed import.
func (c *Client) RecordImport(ctx context.Context, r *domain.ImportRecord) error {
	_, err := c.fs.Collection(importsCollection).Doc(r.ID).Set(ctx, &importDoc{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Source:         r.Source,
		TotalRows:      r.TotalRows,
		InsertedCount:  r.InsertedCount,
		DuplicateCount: r.DuplicateCount,
		SkippedCount:   r.SkippedCount,
		ImportedAt:     r.ImportedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record import %s: %w", r.ID, err)
	}
	return nil
}

// ListImports retrieves the audit trail for an account, most recent first.
func (c *Client) ListImports(ctx context.Context, accountID string) ([]domain.ImportRecord, error) {
	iter := c.fs.Collection(importsCollection).
		Where("accountId", "==", accountID).
		OrderBy("importedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var records []domain.ImportRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate imports for account %s: %w", accountID, err)
		}

		var d importDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse import record: %w", err)
		}
		records = append(records, domain.ImportRecord{
			ID:             d.ID,
			AccountID:      d.AccountID,
			Source:         d.Source,
			TotalRows:      d.TotalRows,
			InsertedCount:  d.InsertedCount,
			DuplicateCount: d.DuplicateCount,
			SkippedCount:   d.SkippedCount,
			ImportedAt:     d.ImportedAt,
		})
	}
	return records, nil
}
