// Package sqlite implements the ledger, rule, pattern, and audit stores on a
// local SQLite database. Amounts are stored as exact decimal strings, never
// floats; timestamps as RFC 3339 text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/ledgermint/ledgermint/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id                  TEXT PRIMARY KEY,
	account_id          TEXT NOT NULL,
	date                TEXT NOT NULL,
	value_date          TEXT,
	description         TEXT NOT NULL,
	reference           TEXT NOT NULL DEFAULT '',
	amount              TEXT NOT NULL,
	direction           TEXT NOT NULL,
	balance             TEXT,
	merchant            TEXT NOT NULL,
	category_id         TEXT NOT NULL DEFAULT '',
	is_auto_categorized INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_account_date ON ledger_entries(account_id, date);

CREATE TABLE IF NOT EXISTS learning_rules (
	pattern      TEXT PRIMARY KEY,
	category_id  TEXT NOT NULL,
	confidence   REAL NOT NULL,
	use_count    INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	last_used_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recurring_patterns (
	merchant       TEXT NOT NULL,
	bucket         TEXT NOT NULL,
	average_amount TEXT NOT NULL,
	frequency      TEXT NOT NULL,
	last_seen      TEXT NOT NULL,
	occurrences    INTEGER NOT NULL,
	confirmed      INTEGER NOT NULL DEFAULT 0,
	dismissed      INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	PRIMARY KEY (merchant, bucket)
);

CREATE TABLE IF NOT EXISTS imports (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT '',
	total_rows      INTEGER NOT NULL,
	inserted_count  INTEGER NOT NULL,
	duplicate_count INTEGER NOT NULL,
	skipped_count   INTEGER NOT NULL,
	imported_at     TEXT NOT NULL
);
`

// Store wraps a SQLite database holding all ledger pipeline state. A single
// Store satisfies every persistence interface of the pipeline.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// modernc's driver is not safe for concurrent writer connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const entryColumns = `id, account_id, date, value_date, description, reference,
	amount, direction, balance, merchant, category_id, is_auto_categorized,
	created_at, updated_at`

// QueryLedgerEntries returns every entry for the account, oldest first.
func (s *Store) QueryLedgerEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? ORDER BY date, id`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

// InsertLedgerEntries inserts entries in one transaction and returns the
// number inserted. All or nothing: a failed row rolls back the batch.
func (s *Store) InsertLedgerEntries(ctx context.Context, accountID string, entries []domain.LedgerEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.AccountID != accountID {
			return 0, fmt.Errorf("entry %s belongs to account %s, not %s", e.ID, e.AccountID, accountID)
		}
		_, err := stmt.ExecContext(ctx,
			e.ID, e.AccountID, formatTime(e.Date), formatTimePtr(e.ValueDate),
			e.Description, e.Reference, e.Amount.String(), string(e.Direction),
			formatDecimalPtr(e.Balance), e.Merchant, e.CategoryID,
			boolToInt(e.IsAutoCategorized), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}
	return len(entries), nil
}

// UpdateEntryCategory sets the category on one entry. auto marks whether the
// categorization was applied silently by the pipeline or chosen by the user.
func (s *Store) UpdateEntryCategory(ctx context.Context, entryID, categoryID string, auto bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET category_id = ?, is_auto_categorized = ?, updated_at = ? WHERE id = ?`,
		categoryID, boolToInt(auto), formatTime(s.now()), entryID)
	if err != nil {
		return fmt.Errorf("failed to update category on entry %s: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no ledger entry with ID %s", entryID)
	}
	return nil
}

// GetLedgerEntry returns the entry with the given ID, or (nil, nil) when no
// such entry exists.
func (s *Store) GetLedgerEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetLearningRule returns the rule for a pattern, or (nil, nil) when absent.
func (s *Store) GetLearningRule(ctx context.Context, pattern string) (*domain.LearningRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pattern, category_id, confidence, use_count, created_at, last_used_at
		 FROM learning_rules WHERE pattern = ?`, pattern)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// UpsertLearningRule inserts or replaces the rule keyed by its pattern.
func (s *Store) UpsertLearningRule(ctx context.Context, rule *domain.LearningRule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_rules (pattern, category_id, confidence, use_count, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pattern) DO UPDATE SET
			category_id = excluded.category_id,
			confidence = excluded.confidence,
			use_count = excluded.use_count,
			last_used_at = excluded.last_used_at`,
		rule.Pattern, rule.CategoryID, rule.Confidence, rule.UseCount,
		formatTime(rule.CreatedAt), formatTime(rule.LastUsedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert rule %q: %w", rule.Pattern, err)
	}
	return nil
}

// ListLearningRules returns every stored rule.
func (s *Store) ListLearningRules(ctx context.Context) ([]domain.LearningRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern, category_id, confidence, use_count, created_at, last_used_at
		 FROM learning_rules ORDER BY pattern`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.LearningRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// GetRecurringPattern returns the pattern for (merchant, bucket), or
// (nil, nil) when absent.
func (s *Store) GetRecurringPattern(ctx context.Context, merchant, bucket string) (*domain.RecurringPattern, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT merchant, bucket, average_amount, frequency, last_seen, occurrences,
			confirmed, dismissed, created_at, updated_at
		 FROM recurring_patterns WHERE merchant = ? AND bucket = ?`, merchant, bucket)
	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pattern, nil
}

// UpsertRecurringPattern inserts or replaces the pattern keyed by
// (merchant, bucket).
func (s *Store) UpsertRecurringPattern(ctx context.Context, p *domain.RecurringPattern) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_patterns (merchant, bucket, average_amount, frequency,
			last_seen, occurrences, confirmed, dismissed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(merchant, bucket) DO UPDATE SET
			average_amount = excluded.average_amount,
			frequency = excluded.frequency,
			last_seen = excluded.last_seen,
			occurrences = excluded.occurrences,
			confirmed = excluded.confirmed,
			dismissed = excluded.dismissed,
			updated_at = excluded.updated_at`,
		p.Merchant, p.Bucket, p.AverageAmount.String(), string(p.Frequency),
		formatTime(p.LastSeen), p.Occurrences, boolToInt(p.Confirmed),
		boolToInt(p.Dismissed), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert pattern %s/%s: %w", p.Merchant, p.Bucket, err)
	}
	return nil
}

// ListRecurringPatterns returns every stored pattern.
func (s *Store) ListRecurringPatterns(ctx context.Context) ([]domain.RecurringPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT merchant, bucket, average_amount, frequency, last_seen, occurrences,
			confirmed, dismissed, created_at, updated_at
		 FROM recurring_patterns ORDER BY merchant, bucket`)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []domain.RecurringPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patterns: %w", err)
	}
	return patterns, nil
}

// RecordImport appends one audit row for a completed import.
func (s *Store) RecordImport(ctx context.Context, r *domain.ImportRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (id, account_id, source, total_rows, inserted_count,
			duplicate_count, skipped_count, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, r.Source, r.TotalRows, r.InsertedCount,
		r.DuplicateCount, r.SkippedCount, formatTime(r.ImportedAt))
	if err != nil {
		return fmt.Errorf("failed to record import %s: %w", r.ID, err)
	}
	return nil
}

// ListImports returns the audit trail for an account, most recent first.
func (s *Store) ListImports(ctx context.Context, accountID string) ([]domain.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, source, total_rows, inserted_count,
			duplicate_count, skipped_count, imported_at
		 FROM imports WHERE account_id = ? ORDER BY imported_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var records []domain.ImportRecord
	for rows.Next() {
		var r domain.ImportRecord
		var importedAt string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Source, &r.TotalRows,
			&r.InsertedCount, &r.DuplicateCount, &r.SkippedCount, &importedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import record: %w", err)
		}
		if r.ImportedAt, err = parseTime(importedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate imports: %w", err)
	}
	return records, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var date, createdAt, updatedAt, amount, direction string
	var valueDate, balance sql.NullString
	var auto int

	err := sc.Scan(&e.ID, &e.AccountID, &date, &valueDate, &e.Description,
		&e.Reference, &amount, &direction, &balance, &e.Merchant,
		&e.CategoryID, &auto, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	if e.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if valueDate.Valid {
		vd, err := parseTime(valueDate.String)
		if err != nil {
			return nil, err
		}
		e.ValueDate = &vd
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	if balance.Valid {
		bal, err := decimal.NewFromString(balance.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored balance %q: %w", balance.String, err)
		}
		e.Balance = &bal
	}
	e.Direction = domain.Direction(direction)
	e.IsAutoCategorized = auto != 0
	return &e, nil
}

func scanRule(sc scanner) (*domain.LearningRule, error) {
	var r domain.LearningRule
	var createdAt, lastUsedAt string
	err := sc.Scan(&r.Pattern, &r.CategoryID, &r.Confidence, &r.UseCount, &createdAt, &lastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan learning rule: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.LastUsedAt, err = parseTime(lastUsedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanPattern(sc scanner) (*domain.RecurringPattern, error) {
	var p domain.RecurringPattern
	var avg, freq, lastSeen, createdAt, updatedAt string
	var confirmed, dismissed int
	err := sc.Scan(&p.Merchant, &p.Bucket, &avg, &freq, &lastSeen,
		&p.Occurrences, &confirmed, &dismissed, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan recurring pattern: %w", err)
	}
	if p.AverageAmount, err = decimal.NewFromString(avg); err != nil {
		return nil, fmt.Errorf("invalid stored average amount %q: %w", avg, err)
	}
	p.Frequency = domain.Frequency(freq)
	if p.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	p.Confirmed = confirmed != 0
	p.Dismissed = dismissed != 0
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatDecimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
