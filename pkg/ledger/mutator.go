package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/psantos/centavo/pkg/models"
)

// Reference errors. These are all rejected before any write happens.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrForeignAccount      = errors.New("account belongs to another household")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBatchNotFound       = errors.New("import batch not found")
	ErrNoDestination       = errors.New("transfer requires a destination account")
	ErrCurrencyMismatch    = errors.New("transfer accounts must share a currency")
	ErrTransferRetype      = errors.New("cannot change a transaction to or from transfer")
)

// Mutator is the only writer of transaction rows and account balances.
// Balances move by incremental delta only, inside the same database
// transaction as the row write, and mutations on one account are
// serialized through a per-account lock so deltas never interleave.
type Mutator struct {
	store  *Store
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutator(store *Store, logger *log.Logger) *Mutator {
	return &Mutator{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockAccounts acquires the per-account locks for ids in sorted order, so
// a transfer touching two accounts cannot deadlock against its mirror.
func (m *Mutator) lockAccounts(ids ...string) func() {
	sorted := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		m.mu.Lock()
		lock, ok := m.locks[id]
		if !ok {
			lock = &sync.Mutex{}
			m.locks[id] = lock
		}
		m.mu.Unlock()
		lock.Lock()
		held = append(held, lock)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// CreateInput is everything a caller may supply for a new transaction.
// DestinationAccountID is only meaningful for transfers.
type CreateInput struct {
	HouseholdID          string
	AccountID            string
	Type                 models.TransactionType
	Amount               decimal.Decimal
	Date                 time.Time
	Description          string
	Merchant             string
	Reference            string
	CategoryID           string
	ExternalID           string
	DestinationAccountID string
	Splits               []models.Split
	Tags                 []string
}

// Create persists a new transaction and applies its balance effect
// atomically. A transfer with a destination inserts both legs, applies
// both deltas and backfills the pair link, all in one database
// transaction. Referential checks run before anything is written.
func (m *Mutator) Create(ctx context.Context, in CreateInput) (*models.Transaction, error) {
	account, err := m.store.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	if account.HouseholdID != in.HouseholdID {
		return nil, ErrForeignAccount
	}

	var destination *models.Account
	if in.Type == models.TypeTransfer {
		if in.DestinationAccountID == "" {
			return nil, ErrNoDestination
		}
		destination, err = m.store.GetAccount(ctx, in.DestinationAccountID)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}
		if destination.HouseholdID != in.HouseholdID {
			return nil, fmt.Errorf("destination: %w", ErrForeignAccount)
		}
		if destination.Currency != account.Currency {
			return nil, ErrCurrencyMismatch
		}
	}

	now := time.Now().UTC()
	source := &models.Transaction{
		ID:          uuid.NewString(),
		HouseholdID: in.HouseholdID,
		AccountID:   in.AccountID,
		Type:        in.Type,
		Status:      models.StatusPosted,
		Amount:      in.Amount.Abs(),
		Currency:    account.Currency,
		Date:        in.Date,
		Description: in.Description,
		Merchant:    in.Merchant,
		Reference:   in.Reference,
		CategoryID:  in.CategoryID,
		ExternalID:  in.ExternalID,
		Splits:      in.Splits,
		Tags:        in.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Type == models.TypeTransfer {
		source.Direction = models.TransferOut
	}

	lockIDs := []string{in.AccountID}
	if destination != nil {
		lockIDs = append(lockIDs, destination.ID)
	}
	unlock := m.lockAccounts(lockIDs...)
	defer unlock()

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertTransactionTx(tx, source); err != nil {
			return err
		}
		if err := applyBalanceTx(tx, source.AccountID, source.Effect()); err != nil {
			return err
		}
		if err := replaceSplitsTx(tx, source.ID, source.Splits); err != nil {
			return err
		}
		if err := replaceTagsTx(tx, source.ID, source.Tags); err != nil {
			return err
		}

		if destination == nil {
			return nil
		}

		pair := *source
		pair.ID = uuid.NewString()
		pair.AccountID = destination.ID
		pair.Direction = models.TransferIn
		pair.Splits = nil
		pair.Tags = nil
		if err := insertTransactionTx(tx, &pair); err != nil {
			return err
		}
		if err := applyBalanceTx(tx, pair.AccountID, pair.Effect()); err != nil {
			return err
		}
		if err := linkPairTx(tx, source.ID, pair.ID); err != nil {
			return err
		}
		source.LinkedTransactionID = pair.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("created transaction",
		"id", source.ID, "account", source.AccountID,
		"type", source.Type, "amount", source.Amount.String())
	return source, nil
}

// UpdateInput holds the optional new values for an edit. Nil means leave
// the stored value alone. Splits and Tags, when present, fully replace
// the stored sets.
type UpdateInput struct {
	Type        *models.TransactionType
	Status      *models.TransactionStatus
	Amount      *decimal.Decimal
	Date        *time.Time
	Description *string
	Merchant    *string
	Reference   *string
	CategoryID  *string
	Splits      *[]models.Split
	Tags        *[]string
}

// Update edits a transaction, applying (new effect - old effect) as one
// incremental balance delta. Editing the amount of a transfer leg mirrors
// the change onto the paired leg and its account in the same transaction,
// keeping the pair's magnitudes equal. Changing type to or from transfer
// is rejected; delete and recreate instead.
func (m *Mutator) Update(ctx context.Context, householdID, id string, in UpdateInput) (*models.Transaction, error) {
	stored, err := m.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.HouseholdID != householdID {
		return nil, ErrForeignAccount
	}
	if in.Type != nil && *in.Type != stored.Type &&
		(*in.Type == models.TypeTransfer || stored.Type == models.TypeTransfer) {
		return nil, ErrTransferRetype
	}

	updated := *stored
	if in.Type != nil {
		updated.Type = *in.Type
	}
	if in.Status != nil {
		updated.Status = *in.Status
	}
	if in.Amount != nil {
		updated.Amount = in.Amount.Abs()
	}
	if in.Date != nil {
		updated.Date = *in.Date
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Merchant != nil {
		updated.Merchant = *in.Merchant
	}
	if in.Reference != nil {
		updated.Reference = *in.Reference
	}
	if in.CategoryID != nil {
		updated.CategoryID = *in.CategoryID
	}
	updated.UpdatedAt = time.Now().UTC()

	var pair *models.Transaction
	if stored.LinkedTransactionID != "" {
		pair, err = m.store.GetTransaction(ctx, stored.LinkedTransactionID)
		if err != nil {
			return nil, fmt.Errorf("transfer pair: %w", err)
		}
	}

	lockIDs := []string{stored.AccountID}
	if pair != nil {
		lockIDs = append(lockIDs, pair.AccountID)
	}
	unlock := m.lockAccounts(lockIDs...)
	defer unlock()

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateTransactionTx(tx, &updated); err != nil {
			return err
		}
		delta := updated.Effect().Sub(stored.Effect())
		if !delta.IsZero() {
			if err := applyBalanceTx(tx, updated.AccountID, delta); err != nil {
				return err
			}
		}
		if in.Splits != nil {
			if err := replaceSplitsTx(tx, updated.ID, *in.Splits); err != nil {
				return err
			}
			updated.Splits = *in.Splits
		}
		if in.Tags != nil {
			if err := replaceTagsTx(tx, updated.ID, *in.Tags); err != nil {
				return err
			}
			updated.Tags = *in.Tags
		}

		if pair == nil {
			return nil
		}
		mirrored := *pair
		mirrored.Amount = updated.Amount
		mirrored.Status = updated.Status
		mirrored.Date = updated.Date
		mirrored.UpdatedAt = updated.UpdatedAt
		if err := updateTransactionTx(tx, &mirrored); err != nil {
			return err
		}
		pairDelta := mirrored.Effect().Sub(pair.Effect())
		if !pairDelta.IsZero() {
			if err := applyBalanceTx(tx, mirrored.AccountID, pairDelta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("updated transaction", "id", updated.ID, "account", updated.AccountID)
	return &updated, nil
}

// Delete removes a transaction and reverses its balance effect. When the
// row is one leg of a transfer pair, the other leg is deleted and its
// balance reversed in the same operation; a transfer is never left
// half-deleted.
func (m *Mutator) Delete(ctx context.Context, householdID, id string) error {
	stored, err := m.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if stored.HouseholdID != householdID {
		return ErrForeignAccount
	}

	var pair *models.Transaction
	if stored.LinkedTransactionID != "" {
		pair, err = m.store.GetTransaction(ctx, stored.LinkedTransactionID)
		if err != nil && !errors.Is(err, ErrTransactionNotFound) {
			return fmt.Errorf("transfer pair: %w", err)
		}
	}

	lockIDs := []string{stored.AccountID}
	if pair != nil {
		lockIDs = append(lockIDs, pair.AccountID)
	}
	unlock := m.lockAccounts(lockIDs...)
	defer unlock()

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteTransactionTx(tx, stored.ID); err != nil {
			return err
		}
		if err := applyBalanceTx(tx, stored.AccountID, stored.Effect().Neg()); err != nil {
			return err
		}
		if pair == nil {
			return nil
		}
		if err := deleteTransactionTx(tx, pair.ID); err != nil {
			return err
		}
		return applyBalanceTx(tx, pair.AccountID, pair.Effect().Neg())
	})
	if err != nil {
		return err
	}

	m.logger.Debug("deleted transaction", "id", stored.ID, "account", stored.AccountID, "paired", pair != nil)
	return nil
}

// --- transaction-scoped statement helpers ---

func (m *Mutator) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertTransactionTx(tx *sql.Tx, t *models.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (id, household_id, account_id, type, direction,
			status, amount, currency, date, description, merchant, reference,
			category_id, linked_transaction_id, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.HouseholdID, t.AccountID, string(t.Type), string(t.Direction),
		string(t.Status), t.Amount.String(), t.Currency, t.Date.Format(dateLayout),
		t.Description, t.Merchant, t.Reference, t.CategoryID,
		t.LinkedTransactionID, t.ExternalID,
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func updateTransactionTx(tx *sql.Tx, t *models.Transaction) error {
	_, err := tx.Exec(`
		UPDATE transactions
		SET type = ?, status = ?, amount = ?, date = ?, description = ?,
			merchant = ?, reference = ?, category_id = ?, updated_at = ?
		WHERE id = ?`,
		string(t.Type), string(t.Status), t.Amount.String(), t.Date.Format(dateLayout),
		t.Description, t.Merchant, t.Reference, t.CategoryID,
		t.UpdatedAt.Format(time.RFC3339), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func deleteTransactionTx(tx *sql.Tx, id string) error {
	for _, stmt := range []string{
		`DELETE FROM splits WHERE transaction_id = ?`,
		`DELETE FROM transaction_tags WHERE transaction_id = ?`,
		`DELETE FROM transactions WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
	}
	return nil
}

// applyBalanceTx moves an account balance by delta. The read-modify-write
// is safe because callers hold the account lock and the statement runs
// inside the row's own database transaction.
func applyBalanceTx(tx *sql.Tx, accountID string, delta decimal.Decimal) error {
	var balance string
	if err := tx.QueryRow(`SELECT current_balance FROM accounts WHERE id = ?`, accountID).Scan(&balance); err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	current, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("bad stored balance: %w", err)
	}
	next := current.Add(delta)
	if _, err := tx.Exec(`UPDATE accounts SET current_balance = ? WHERE id = ?`, next.String(), accountID); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func replaceSplitsTx(tx *sql.Tx, transactionID string, splits []models.Split) error {
	if _, err := tx.Exec(`DELETE FROM splits WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("clear splits: %w", err)
	}
	for i := range splits {
		sp := &splits[i]
		if sp.ID == "" {
			sp.ID = uuid.NewString()
		}
		sp.TransactionID = transactionID
		if _, err := tx.Exec(`
			INSERT INTO splits (id, transaction_id, category_id, amount, note)
			VALUES (?, ?, ?, ?, ?)`,
			sp.ID, sp.TransactionID, sp.CategoryID, sp.Amount.String(), sp.Note); err != nil {
			return fmt.Errorf("insert split: %w", err)
		}
	}
	return nil
}

func replaceTagsTx(tx *sql.Tx, transactionID string, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM transaction_tags WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.Exec(`
			INSERT INTO transaction_tags (transaction_id, tag) VALUES (?, ?)`,
			transactionID, tag); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

func linkPairTx(tx *sql.Tx, sourceID, pairID string) error {
	for _, pair := range [][2]string{{sourceID, pairID}, {pairID, sourceID}} {
		if _, err := tx.Exec(`
			UPDATE transactions SET linked_transaction_id = ? WHERE id = ?`,
			pair[1], pair[0]); err != nil {
			return fmt.Errorf("link transfer pair: %w", err)
		}
	}
	return nil
}
