// Package dedup recognizes "the same" transaction across repeated imports.
//
// The key is deliberately coarse: day-precision date, magnitude and a
// normalized description, no time-of-day and no merchant. That tolerance
// for re-export formatting drift is a precision/recall tradeoff carried
// over on purpose; a stricter key would silently drop legitimate repeat
// transactions.
package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/psantos/centavo/pkg/models"
)

// Key builds the stable composite dedup key for a transaction. The same
// key is stored as external_id on imported rows, so two exports of the
// same statement resolve to identical keys.
func Key(date time.Time, amount decimal.Decimal, description string) string {
	return fmt.Sprintf("%s|%s|%s",
		date.Format("2006-01-02"),
		amount.Abs().StringFixed(2),
		strings.ToLower(strings.TrimSpace(description)))
}

// Filter partitions import candidates into unique and duplicate against
// both the persisted ledger and the candidates already seen in the same
// batch, so a file with exact repeats cannot import a row twice.
type Filter struct {
	seen map[string]struct{}
}

// NewFilter seeds a filter from the destination account's persisted
// transactions.
func NewFilter(existing []*models.Transaction) *Filter {
	seen := make(map[string]struct{}, len(existing))
	for _, tx := range existing {
		if tx.ExternalID != "" {
			seen[tx.ExternalID] = struct{}{}
		}
		seen[Key(tx.Date, tx.Amount, tx.Description)] = struct{}{}
	}
	return &Filter{seen: seen}
}

// Partition splits candidates in input order. Each unique candidate is
// immediately added to the seen set so later in-batch repeats land in
// duplicates.
func (f *Filter) Partition(candidates []*models.ParsedTransaction) (unique, duplicates []*models.ParsedTransaction) {
	for _, c := range candidates {
		key := Key(c.Date, c.Amount, c.Description)
		if _, ok := f.seen[key]; ok {
			duplicates = append(duplicates, c)
			continue
		}
		f.seen[key] = struct{}{}
		unique = append(unique, c)
	}
	return unique, duplicates
}
