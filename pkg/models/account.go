package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the single authoritative balance for one ledger account.
// CurrentBalance is only ever moved by incremental deltas from the ledger
// mutator, never recomputed from scratch.
type Account struct {
	ID             string
	HouseholdID    string
	Name           string
	Currency       string
	CurrentBalance decimal.Decimal
	CreatedAt      time.Time
}
