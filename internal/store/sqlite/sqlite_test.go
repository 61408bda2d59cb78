package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgermint/ledgermint/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func testEntry(id string, day int) domain.LedgerEntry {
	now := time.Date(2021, 4, 30, 10, 0, 0, 0, time.UTC)
	return domain.LedgerEntry{
		ID:          id,
		AccountID:   "acc-1",
		Date:        time.Date(2021, 4, day, 0, 0, 0, 0, time.UTC),
		Description: "TO TRANSFER-UPI/DR/109095/NETFLIX COM",
		Reference:   "TRANSFER TO 4897691162099",
		Amount:      decimal.RequireFromString("499.00"),
		Direction:   domain.DirectionExpense,
		Merchant:    "netflix com",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestLedgerEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	valueDate := time.Date(2021, 4, 3, 0, 0, 0, 0, time.UTC)
	balance := decimal.RequireFromString("1098.30")
	entry := testEntry("e-1", 2)
	entry.ValueDate = &valueDate
	entry.Balance = &balance

	n, err := s.InsertLedgerEntries(ctx, "acc-1", []domain.LedgerEntry{entry})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetLedgerEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.AccountID, got.AccountID)
	assert.Equal(t, entry.Description, got.Description)
	assert.Equal(t, entry.Reference, got.Reference)
	assert.Equal(t, entry.Merchant, got.Merchant)
	assert.Equal(t, entry.Direction, got.Direction)
	assert.True(t, got.Date.Equal(entry.Date))
	require.NotNil(t, got.ValueDate)
	assert.True(t, got.ValueDate.Equal(valueDate))

	// Decimal text storage must be exact, scale included.
	assert.True(t, got.Amount.Equal(entry.Amount))
	assert.Equal(t, "499", got.Amount.String())
	require.NotNil(t, got.Balance)
	assert.Equal(t, "1098.3", got.Balance.String())
}

func TestLedgerEntryNilOptionals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := testEntry("e-1", 2)
	_, err := s.InsertLedgerEntries(ctx, "acc-1", []domain.LedgerEntry{entry})
	require.NoError(t, err)

	got, err := s.GetLedgerEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ValueDate)
	assert.Nil(t, got.Balance)
}

func TestQueryLedgerEntriesScopedAndOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	later := testEntry("e-2", 10)
	earlier := testEntry("e-1", 2)
	_, err := s.InsertLedgerEntries(ctx, "acc-1", []domain.LedgerEntry{later, earlier})
	require.NoError(t, err)

	other := testEntry("e-3", 5)
	other.AccountID = "acc-2"
	_, err = s.InsertLedgerEntries(ctx, "acc-2", []domain.LedgerEntry{other})
	require.NoError(t, err)

	entries, err := s.QueryLedgerEntries(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-1", entries[0].ID, "oldest first")
	assert.Equal(t, "e-2", entries[1].ID)
}

func TestInsertRejectsForeignAccountEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := testEntry("e-1", 2)
	_, err := s.InsertLedgerEntries(ctx, "acc-2", []domain.LedgerEntry{entry})
	assert.Error(t, err)

	// The rejected batch must leave nothing behind.
	entries, qerr := s.QueryLedgerEntries(ctx, "acc-1")
	require.NoError(t, qerr)
	assert.Empty(t, entries)
}

func TestUpdateEntryCategory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertLedgerEntries(ctx, "acc-1", []domain.LedgerEntry{testEntry("e-1", 2)})
	require.NoError(t, err)

	require.NoError(t, s.UpdateEntryCategory(ctx, "e-1", "entertainment", true))

	got, err := s.GetLedgerEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "entertainment", got.CategoryID)
	assert.True(t, got.IsAutoCategorized)

	require.NoError(t, s.UpdateEntryCategory(ctx, "e-1", "kids", false))
	got, err = s.GetLedgerEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "kids", got.CategoryID)
	assert.False(t, got.IsAutoCategorized)
}

func TestUpdateEntryCategoryStampsClock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	updated := time.Date(2021, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return updated }

	_, err := s.InsertLedgerEntries(ctx, "acc-1", []domain.LedgerEntry{testEntry("e-1", 2)})
	require.NoError(t, err)
	require.NoError(t, s.UpdateEntryCategory(ctx, "e-1", "entertainment", false))

	got, err := s.GetLedgerEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.UpdatedAt.Equal(updated))
}

func TestUpdateEntryCategoryMissingEntry(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateEntryCategory(context.Background(), "missing", "entertainment", false)
	assert.Error(t, err)
}

func TestGetLedgerEntryAbsent(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetLedgerEntry(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got, "absent entry is (nil, nil), not an error")
}

func TestLearningRuleUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2021, 4, 30, 10, 0, 0, 0, time.UTC)

	absent, err := s.GetLearningRule(ctx, "netflix com")
	require.NoError(t, err)
	assert.Nil(t, absent)

	rule := &domain.LearningRule{
		Pattern: "netflix com", CategoryID: "entertainment",
		Confidence: 0.60, UseCount: 1, CreatedAt: now, LastUsedAt: now,
	}
	require.NoError(t, s.UpsertLearningRule(ctx, rule))

	rule.Confidence = 0.66
	rule.UseCount = 2
	rule.LastUsedAt = now.Add(time.Hour)
	require.NoError(t, s.UpsertLearningRule(ctx, rule))

	got, err := s.GetLearningRule(ctx, "netflix com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.66, got.Confidence)
	assert.Equal(t, 2, got.UseCount)
	assert.True(t, got.CreatedAt.Equal(now), "created_at survives upsert")
	assert.True(t, got.LastUsedAt.Equal(now.Add(time.Hour)))

	rules, err := s.ListLearningRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRecurringPatternUpsertAndFlags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2021, 5, 2, 0, 0, 0, 0, time.UTC)

	absent, err := s.GetRecurringPattern(ctx, "netflix com", "499")
	require.NoError(t, err)
	assert.Nil(t, absent)

	p := &domain.RecurringPattern{
		Merchant: "netflix com", Bucket: "499",
		AverageAmount: decimal.RequireFromString("499"),
		Frequency:     domain.FrequencyMonthly,
		LastSeen:      now, Occurrences: 2,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertRecurringPattern(ctx, p))

	p.Occurrences = 3
	p.Dismissed = true
	require.NoError(t, s.UpsertRecurringPattern(ctx, p))

	got, err := s.GetRecurringPattern(ctx, "netflix com", "499")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Occurrences)
	assert.True(t, got.Dismissed, "flags survive the round trip")
	assert.False(t, got.Confirmed)
	assert.Equal(t, domain.FrequencyMonthly, got.Frequency)
	assert.True(t, got.AverageAmount.Equal(p.AverageAmount))

	patterns, err := s.ListRecurringPatterns(ctx)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestImportAuditTrail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2021, 4, 30, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"imp-1", "imp-2"} {
		require.NoError(t, s.RecordImport(ctx, &domain.ImportRecord{
			ID: id, AccountID: "acc-1", Source: "statement.csv",
			TotalRows: 47, InsertedCount: 42, DuplicateCount: 3, SkippedCount: 2,
			ImportedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.RecordImport(ctx, &domain.ImportRecord{
		ID: "imp-other", AccountID: "acc-2", ImportedAt: base,
	}))

	records, err := s.ListImports(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "imp-2", records[0].ID, "most recent first")
	assert.Equal(t, "imp-1", records[1].ID)
	assert.Equal(t, 47, records[0].TotalRows)
	assert.Equal(t, 42, records[0].InsertedCount)
	assert.Equal(t, "statement.csv", records[0].Source)
}
