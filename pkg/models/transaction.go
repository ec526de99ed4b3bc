package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType carries the sign semantics of a transaction. Amounts are
// stored as unsigned magnitudes; the type decides how they hit the balance.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

// TransferDirection distinguishes the two legs of a transfer pair. It is
// empty on income/expense rows.
type TransferDirection string

const (
	TransferOut TransferDirection = "out"
	TransferIn  TransferDirection = "in"
)

// TransactionStatus is the lifecycle state of a persisted transaction.
type TransactionStatus string

const (
	StatusPosted TransactionStatus = "posted"
	StatusVoid   TransactionStatus = "void"
)

// Transaction is a persisted ledger entry. It belongs to exactly one
// household and one account. Transfer rows always exist as a pair, each leg
// referencing the other through LinkedTransactionID.
type Transaction struct {
	ID                  string
	HouseholdID         string
	AccountID           string
	Type                TransactionType
	Direction           TransferDirection
	Status              TransactionStatus
	Amount              decimal.Decimal
	Currency            string
	Date                time.Time
	Description         string
	Merchant            string
	Reference           string
	CategoryID          string
	LinkedTransactionID string
	ExternalID          string
	Splits              []Split
	Tags                []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Split is a partial categorization line under a transaction. Splits are
// replaced wholesale on update, never merged.
type Split struct {
	ID            string
	TransactionID string
	CategoryID    string
	Amount        decimal.Decimal
	Note          string
}

// Effect returns the signed delta this transaction contributes to its
// account balance. Void rows contribute nothing, which lets void/unvoid
// flow through the same (new - old) delta path as ordinary edits.
func (t *Transaction) Effect() decimal.Decimal {
	if t.Status == StatusVoid {
		return decimal.Zero
	}
	switch t.Type {
	case TypeIncome:
		return t.Amount
	case TypeTransfer:
		if t.Direction == TransferIn {
			return t.Amount
		}
		return t.Amount.Neg()
	default:
		return t.Amount.Neg()
	}
}

// ParsedTransaction is an in-memory import candidate produced by the
// normalizer. It keeps the raw field map around for audit and debugging.
type ParsedTransaction struct {
	Row         int
	Date        time.Time
	Amount      decimal.Decimal
	Type        TransactionType
	Description string
	Merchant    string
	Reference   string
	Balance     *decimal.Decimal
	CategoryID  string
	Raw         map[string]string
}
