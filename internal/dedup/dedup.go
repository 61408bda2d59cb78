// Package dedup classifies newly parsed transactions as new or duplicate
// against existing ledger state via SHA256 fingerprinting.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/shopspring/decimal"
)

// Fingerprint hashes the (accountID, date, amount, normalized description)
// tuple that defines transaction identity.
// Format: SHA256("{accountID}|{YYYY-MM-DD}|{amount:2dp}|{lowercased description}").
// Exact match on all four is a duplicate; near-matches are deliberately NOT
// deduplicated, trading recall for precision so distinct transactions are
// never silently dropped.
func Fingerprint(accountID string, date time.Time, amount decimal.Decimal, description string) string {
	normalizedDesc := strings.ToLower(strings.TrimSpace(description))
	input := fmt.Sprintf("%s|%s|%s|%s",
		accountID,
		date.Format("2006-01-02"),
		amount.StringFixed(2),
		normalizedDesc,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// Partition holds the outcome of deduplicating a batch of incoming
// transactions: survivors to persist and exact repeats to discard.
type Partition struct {
	New       []domain.NormalizedTransaction
	Duplicate []domain.NormalizedTransaction
}

// Classify partitions incoming transactions against existing ledger entries
// for the same account. The existing set is indexed by fingerprint once, so
// each lookup is constant-time regardless of ledger size; re-importing a full
// statement history is a common user action and must stay cheap.
//
// Classify only classifies. The caller decides whether to persist the new
// set, and is responsible for serializing concurrent imports per account.
func Classify(incoming []domain.NormalizedTransaction, existing []domain.LedgerEntry) Partition {
	seen := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		seen[Fingerprint(entry.AccountID, entry.Date, entry.Amount, entry.Description)] = struct{}{}
	}

	var p Partition
	for _, txn := range incoming {
		fp := Fingerprint(txn.AccountID, txn.Date, txn.Amount, txn.Description)
		if _, dup := seen[fp]; dup {
			p.Duplicate = append(p.Duplicate, txn)
			continue
		}
		// A statement can repeat a row within itself; the first occurrence
		// wins and later ones are duplicates of it.
		seen[fp] = struct{}{}
		p.New = append(p.New, txn)
	}
	return p
}
