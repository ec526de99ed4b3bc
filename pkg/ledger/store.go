// Package ledger persists accounts and transactions and applies
// balance-preserving mutations to them.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/psantos/centavo/pkg/models"
)

const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	name TEXT NOT NULL,
	currency TEXT NOT NULL,
	current_balance TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	type TEXT NOT NULL,
	direction TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	date TEXT NOT NULL,
	description TEXT NOT NULL,
	merchant TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT '',
	linked_transaction_id TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
CREATE TABLE IF NOT EXISTS splits (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	category_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_splits_transaction ON splits(transaction_id);
CREATE TABLE IF NOT EXISTS transaction_tags (
	transaction_id TEXT NOT NULL,
	tag TEXT NOT NULL,
	PRIMARY KEY (transaction_id, tag)
);
CREATE TABLE IF NOT EXISTS category_rules (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	priority INTEGER NOT NULL,
	field TEXT NOT NULL,
	match TEXT NOT NULL,
	value TEXT NOT NULL,
	case_sensitive INTEGER NOT NULL,
	category_id TEXT NOT NULL,
	active INTEGER NOT NULL,
	match_count INTEGER NOT NULL DEFAULT 0,
	last_matched_at TEXT,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS import_batches (
	id TEXT PRIMARY KEY,
	household_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	total_rows INTEGER NOT NULL DEFAULT 0,
	imported INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	error_summary TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	finished_at TEXT
);`

// Store is the sqlite-backed ledger store. All balance mutation goes
// through the Mutator; the Store itself only offers typed reads and the
// non-balance writes (rules, batches, account creation).
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (or creates) the sqlite database at path and ensures the
// schema exists. The pool is capped at one connection: sqlite is
// single-writer anyway and it keeps :memory: databases coherent in tests.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- accounts ---

// CreateAccount inserts a new account. A missing id is generated and a
// zero balance is assumed unless one is provided.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, household_id, name, currency, current_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.HouseholdID, a.Name, a.Currency, a.CurrentBalance.String(), a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount fetches one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, household_id, name, currency, current_balance, created_at
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// AccountsByHousehold lists a household's accounts by name.
func (s *Store) AccountsByHousehold(ctx context.Context, householdID string) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, household_id, name, currency, current_balance, created_at
		FROM accounts WHERE household_id = ? ORDER BY name`, householdID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	var balance, createdAt string
	if err := row.Scan(&a.ID, &a.HouseholdID, &a.Name, &a.Currency, &balance, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	var err error
	if a.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("bad balance for account %s: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// --- transactions (reads) ---

const txColumns = `id, household_id, account_id, type, direction, status, amount,
	currency, date, description, merchant, reference, category_id,
	linked_transaction_id, external_id, created_at, updated_at`

// GetTransaction fetches one transaction with its splits and tags.
func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	if t.Splits, err = s.splitsFor(ctx, id); err != nil {
		return nil, err
	}
	if t.Tags, err = s.tagsFor(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// TransactionsByAccount lists all transactions posted against an account,
// newest first. Splits and tags are not loaded; dedup and listings don't
// need them.
func (s *Store) TransactionsByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE account_id = ? ORDER BY date DESC, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var amount, date, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.HouseholdID, &t.AccountID, &t.Type, &t.Direction,
		&t.Status, &amount, &t.Currency, &date, &t.Description, &t.Merchant,
		&t.Reference, &t.CategoryID, &t.LinkedTransactionID, &t.ExternalID,
		&createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount for transaction %s: %w", t.ID, err)
	}
	if t.Date, err = time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("bad date for transaction %s: %w", t.ID, err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

func (s *Store) splitsFor(ctx context.Context, transactionID string) ([]models.Split, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, category_id, amount, note
		FROM splits WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	var out []models.Split
	for rows.Next() {
		var sp models.Split
		var amount string
		if err := rows.Scan(&sp.ID, &sp.TransactionID, &sp.CategoryID, &amount, &sp.Note); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		if sp.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad split amount: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) tagsFor(ctx context.Context, transactionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag FROM transaction_tags WHERE transaction_id = ? ORDER BY tag`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// --- category rules ---

// InsertRule persists a new category rule.
func (s *Store) InsertRule(ctx context.Context, r *models.CategoryRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_rules (id, household_id, priority, field, match, value,
			case_sensitive, category_id, active, match_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.HouseholdID, r.Priority, string(r.Field), string(r.Match), r.Value,
		boolInt(r.CaseSensitive), r.CategoryID, boolInt(r.Active), r.MatchCount,
		r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// ActiveRules returns a household's active rules. Ordering is left to the
// classifier's snapshot, which sorts by priority itself.
func (s *Store) ActiveRules(ctx context.Context, householdID string) ([]models.CategoryRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, household_id, priority, field, match, value, case_sensitive,
			category_id, active, match_count, last_matched_at, created_at
		FROM category_rules WHERE household_id = ? AND active = 1`, householdID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryRule
	for rows.Next() {
		var r models.CategoryRule
		var caseSensitive, active int
		var lastMatched sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.HouseholdID, &r.Priority, &r.Field, &r.Match,
			&r.Value, &caseSensitive, &r.CategoryID, &active, &r.MatchCount,
			&lastMatched, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.CaseSensitive = caseSensitive != 0
		r.Active = active != 0
		if lastMatched.Valid {
			if t, err := time.Parse(time.RFC3339, lastMatched.String); err == nil {
				r.LastMatchedAt = &t
			}
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordRuleMatch increments a rule's usage counters.
func (s *Store) RecordRuleMatch(ctx context.Context, ruleID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE category_rules SET match_count = match_count + 1, last_matched_at = ?
		WHERE id = ?`, at.Format(time.RFC3339), ruleID)
	if err != nil {
		return fmt.Errorf("record rule match: %w", err)
	}
	return nil
}

// --- import batches ---

// InsertBatch writes the initial pending batch record.
func (s *Store) InsertBatch(ctx context.Context, b *models.ImportBatch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (id, household_id, account_id, source, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.HouseholdID, b.AccountID, b.Source, string(b.Status),
		b.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// FinalizeBatch performs the single finalize write a batch record ever
// receives after creation.
func (s *Store) FinalizeBatch(ctx context.Context, b *models.ImportBatch) error {
	now := time.Now().UTC()
	b.FinishedAt = &now
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = ?, total_rows = ?, imported = ?, skipped = ?, errors = ?,
			error_summary = ?, finished_at = ?
		WHERE id = ?`,
		string(b.Status), b.TotalRows, b.Imported, b.Skipped, b.Errors,
		b.ErrorSummary, now.Format(time.RFC3339), b.ID)
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	return nil
}

// GetBatch fetches one batch summary.
func (s *Store) GetBatch(ctx context.Context, id string) (*models.ImportBatch, error) {
	var b models.ImportBatch
	var createdAt string
	var finishedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, household_id, account_id, source, status, total_rows,
			imported, skipped, errors, error_summary, created_at, finished_at
		FROM import_batches WHERE id = ?`, id).Scan(
		&b.ID, &b.HouseholdID, &b.AccountID, &b.Source, &b.Status, &b.TotalRows,
		&b.Imported, &b.Skipped, &b.Errors, &b.ErrorSummary, &createdAt, &finishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			b.FinishedAt = &t
		}
	}
	return &b, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
