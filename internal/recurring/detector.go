// Package recurring detects subscription-like payment patterns: clusters of
// same-merchant, similar-amount transactions with a stable period. Patterns
// are created and updated only by the detector; user confirmation and
// dismissal are sticky and survive every rescan.
package recurring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/ledgermint/ledgermint/internal/config"
	"github.com/ledgermint/ledgermint/internal/domain"
)

// PatternStore is the persistence boundary for recurring patterns.
// GetRecurringPattern returns (nil, nil) when no pattern exists for the key.
type PatternStore interface {
	GetRecurringPattern(ctx context.Context, merchant, bucket string) (*domain.RecurringPattern, error)
	UpsertRecurringPattern(ctx context.Context, pattern *domain.RecurringPattern) error
	ListRecurringPatterns(ctx context.Context) ([]domain.RecurringPattern, error)
}

// Detector scans ledger history for recurring payments.
type Detector struct {
	store PatternStore
	cfg   config.Recurring
	now   func() time.Time
}

// NewDetector creates a detector over the given pattern store.
func NewDetector(store PatternStore, cfg config.Recurring) *Detector {
	return &Detector{store: store, cfg: cfg, now: time.Now}
}

// Scan groups the given ledger entries by merchant, clusters each group by
// amount within the configured tolerance band, infers a frequency from the
// gaps between consecutive dates, and upserts the resulting patterns.
// A single occurrence never produces a pattern. Dismissed patterns are never
// resurfaced or updated, even as matching transactions keep arriving.
func (d *Detector) Scan(ctx context.Context, entries []domain.LedgerEntry) error {
	groups := d.groupByMerchant(entries)

	// Deterministic scan order keeps upsert sequences stable across runs.
	merchants := make([]string, 0, len(groups))
	for m := range groups {
		merchants = append(merchants, m)
	}
	sort.Strings(merchants)

	for _, merchant := range merchants {
		for _, cluster := range clusterByAmount(groups[merchant], d.cfg.AmountTolerance) {
			if len(cluster) < 2 {
				continue
			}
			freq, ok := inferFrequency(cluster)
			if !ok {
				continue
			}
			if err := d.upsertPattern(ctx, merchant, cluster, freq); err != nil {
				return err
			}
		}
	}
	return nil
}

// groupByMerchant buckets expense entries by merchant key, folding keys
// within the configured Levenshtein distance into one group so statement
// truncation variants ("netflix com" / "netflix co") detect together.
func (d *Detector) groupByMerchant(entries []domain.LedgerEntry) map[string][]domain.LedgerEntry {
	// Income is not a subscription.
	var expenses []domain.LedgerEntry
	for _, e := range entries {
		if e.Direction == domain.DirectionExpense && e.Merchant != "" {
			expenses = append(expenses, e)
		}
	}
	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.Before(expenses[j].Date)
		}
		return expenses[i].Merchant < expenses[j].Merchant
	})

	groups := make(map[string][]domain.LedgerEntry)
	var canonicals []string
	for _, e := range expenses {
		key := e.Merchant
		if _, exists := groups[key]; !exists {
			for _, c := range canonicals {
				if d.cfg.MerchantDistance > 0 && levenshtein.ComputeDistance(key, c) <= d.cfg.MerchantDistance {
					key = c
					break
				}
			}
		}
		if _, exists := groups[key]; !exists {
			canonicals = append(canonicals, key)
		}
		groups[key] = append(groups[key], e)
	}
	return groups
}

// clusterByAmount splits one merchant's entries into clusters whose amounts
// sit within the tolerance band of the cluster's running mean. Entries must
// already be date-sorted.
func clusterByAmount(entries []domain.LedgerEntry, tolerance float64) [][]domain.LedgerEntry {
	tol := decimal.NewFromFloat(tolerance)
	var clusters [][]domain.LedgerEntry
	var means []decimal.Decimal

	for _, e := range entries {
		placed := false
		for i, mean := range means {
			if withinTolerance(e.Amount, mean, tol) {
				clusters[i] = append(clusters[i], e)
				means[i] = meanAmount(clusters[i])
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []domain.LedgerEntry{e})
			means = append(means, e.Amount)
		}
	}
	return clusters
}

func withinTolerance(amount, mean, tol decimal.Decimal) bool {
	if mean.IsZero() {
		return amount.IsZero()
	}
	diff := amount.Sub(mean).Abs()
	return diff.LessThanOrEqual(mean.Mul(tol))
}

// meanAmount is the simple mean of the cluster amounts. Simple, not
// exponentially weighted: every occurrence counts equally.
func meanAmount(entries []domain.LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(entries)))).Round(2)
}

// inferFrequency classifies the gaps between consecutive occurrences and
// returns the frequency receiving the most votes. Returns false when no gap
// falls inside any canonical period window.
func inferFrequency(cluster []domain.LedgerEntry) (domain.Frequency, bool) {
	votes := make(map[domain.Frequency]int)
	for i := 1; i < len(cluster); i++ {
		days := int(cluster[i].Date.Sub(cluster[i-1].Date).Hours() / 24)
		if freq, ok := classifyGap(days); ok {
			votes[freq]++
		}
	}

	var best domain.Frequency
	bestVotes := 0
	for _, freq := range []domain.Frequency{domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyMonthly, domain.FrequencyYearly} {
		if votes[freq] > bestVotes {
			best = freq
			bestVotes = votes[freq]
		}
	}
	return best, bestVotes > 0
}

// classifyGap maps a day gap onto a canonical period with a tolerance window
// around each: daily 1-2d, weekly 5-9d, monthly 28-32d, yearly 350-380d.
func classifyGap(days int) (domain.Frequency, bool) {
	switch {
	case days >= 1 && days <= 2:
		return domain.FrequencyDaily, true
	case days >= 5 && days <= 9:
		return domain.FrequencyWeekly, true
	case days >= 28 && days <= 32:
		return domain.FrequencyMonthly, true
	case days >= 350 && days <= 380:
		return domain.FrequencyYearly, true
	}
	return "", false
}

// Bucket derives the sticky amount-bucket key from an anchor amount: the
// value rounded to the nearest whole currency unit. The anchor is the
// cluster's first occurrence, never the running mean: a slow in-tolerance
// price drift walks the mean across rounding boundaries, and dismissal keyed
// on (merchant, bucket) must keep holding as those amounts arrive.
func Bucket(amount decimal.Decimal) string {
	return amount.Round(0).StringFixed(0)
}

// upsertPattern creates or refreshes the stored pattern for one cluster,
// preserving sticky confirmation and dismissal flags. Entries are date-sorted,
// so cluster[0] is the stable anchor across rescans.
func (d *Detector) upsertPattern(ctx context.Context, merchant string, cluster []domain.LedgerEntry, freq domain.Frequency) error {
	avg := meanAmount(cluster)
	bucket := Bucket(cluster[0].Amount)
	lastSeen := cluster[len(cluster)-1].Date
	now := d.now()

	existing, err := d.store.GetRecurringPattern(ctx, merchant, bucket)
	if err != nil {
		return fmt.Errorf("failed to look up pattern %s/%s: %w", merchant, bucket, err)
	}

	if existing != nil {
		if existing.Dismissed {
			return nil
		}
		existing.AverageAmount = avg
		existing.Frequency = freq
		existing.LastSeen = lastSeen
		existing.Occurrences = len(cluster)
		existing.UpdatedAt = now
		if err := d.store.UpsertRecurringPattern(ctx, existing); err != nil {
			return fmt.Errorf("failed to update pattern %s/%s: %w", merchant, bucket, err)
		}
		return nil
	}

	pattern, err := domain.NewRecurringPattern(merchant, bucket, avg, freq, lastSeen, len(cluster), now)
	if err != nil {
		return fmt.Errorf("failed to create pattern %s/%s: %w", merchant, bucket, err)
	}
	if err := d.store.UpsertRecurringPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to store pattern %s/%s: %w", merchant, bucket, err)
	}
	return nil
}

// Unconfirmed returns detected patterns awaiting a user decision, excluding
// confirmed and dismissed ones.
func (d *Detector) Unconfirmed(ctx context.Context) ([]domain.RecurringPattern, error) {
	all, err := d.store.ListRecurringPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	var out []domain.RecurringPattern
	for _, p := range all {
		if !p.Confirmed && !p.Dismissed {
			out = append(out, p)
		}
	}
	return out, nil
}

// Confirm marks a pattern as a real subscription. Sticky.
func (d *Detector) Confirm(ctx context.Context, merchant, bucket string) error {
	return d.setFlag(ctx, merchant, bucket, func(p *domain.RecurringPattern) {
		p.Confirmed = true
		p.Dismissed = false
	})
}

// Dismiss hides a pattern permanently for its merchant+amount bucket. Sticky:
// the detector never resurfaces or updates a dismissed pattern.
func (d *Detector) Dismiss(ctx context.Context, merchant, bucket string) error {
	return d.setFlag(ctx, merchant, bucket, func(p *domain.RecurringPattern) {
		p.Dismissed = true
		p.Confirmed = false
	})
}

func (d *Detector) setFlag(ctx context.Context, merchant, bucket string, mutate func(*domain.RecurringPattern)) error {
	pattern, err := d.store.GetRecurringPattern(ctx, merchant, bucket)
	if err != nil {
		return fmt.Errorf("failed to look up pattern %s/%s: %w", merchant, bucket, err)
	}
	if pattern == nil {
		return fmt.Errorf("no recurring pattern for %s/%s", merchant, bucket)
	}
	mutate(pattern)
	pattern.UpdatedAt = d.now()
	return d.store.UpsertRecurringPattern(ctx, pattern)
}
