package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/psantos/centavo/pkg/ledger"
	"github.com/psantos/centavo/pkg/models"
	"github.com/psantos/centavo/pkg/rules"
)

func newTestImporter(t *testing.T) (*Importer, *ledger.Store, *models.Account) {
	t.Helper()
	store, err := ledger.Open(":memory:", log.Default())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	account := &models.Account{HouseholdID: "hh-1", Name: "Checking", Currency: "USD"}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	mutator := ledger.NewMutator(store, log.Default())
	classifier := rules.New(store, log.Default())
	return New(store, mutator, classifier, log.Default()), store, account
}

const statement = `Date,Description,Amount
2024-01-02,Coffee Shop,-4.50
2024-01-03,Salary,2500.00
not a date,broken row,1.00
2024-01-04,Coffee Shop,-4.50
2024-01-02,Coffee Shop,-4.50
`

func TestImportConservesRows(t *testing.T) {
	imp, store, account := newTestImporter(t)
	ctx := context.Background()

	batch, err := imp.Import(ctx, []byte(statement), "statement.csv", "hh-1", account.ID, Options{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if batch.TotalRows != 5 {
		t.Errorf("expected 5 total rows, got %d", batch.TotalRows)
	}
	if batch.Imported != 3 {
		t.Errorf("expected 3 imported, got %d", batch.Imported)
	}
	if batch.Skipped != 1 {
		t.Errorf("expected 1 duplicate skip, got %d", batch.Skipped)
	}
	if batch.Errors != 1 {
		t.Errorf("expected 1 error, got %d", batch.Errors)
	}
	if batch.Imported+batch.Skipped+batch.Errors != batch.TotalRows {
		t.Error("rows are not conserved")
	}
	if batch.Status != models.BatchCompleted {
		t.Errorf("expected completed batch, got %s", batch.Status)
	}
	if len(batch.ParseErrors) != 1 || batch.ParseErrors[0].Row != 4 {
		t.Errorf("unexpected parse errors: %+v", batch.ParseErrors)
	}

	account2, err := store.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	// 2500.00 - 4.50 - 4.50
	if account2.CurrentBalance.StringFixed(2) != "2491.00" {
		t.Errorf("unexpected balance %s", account2.CurrentBalance)
	}
}

func TestReimportIsIdempotent(t *testing.T) {
	imp, _, account := newTestImporter(t)
	ctx := context.Background()

	first, err := imp.Import(ctx, []byte(statement), "statement.csv", "hh-1", account.ID, Options{})
	if err != nil {
		t.Fatalf("first Import failed: %v", err)
	}
	if first.Imported == 0 {
		t.Fatal("first import should import rows")
	}

	second, err := imp.Import(ctx, []byte(statement), "statement.csv", "hh-1", account.ID, Options{})
	if err != nil {
		t.Fatalf("second Import failed: %v", err)
	}
	if second.Imported != 0 {
		t.Errorf("re-import should import nothing, got %d", second.Imported)
	}
	if second.Skipped != first.Imported+first.Skipped {
		t.Errorf("expected %d skips, got %d", first.Imported+first.Skipped, second.Skipped)
	}
}

func TestImportAppliesRules(t *testing.T) {
	imp, store, account := newTestImporter(t)
	ctx := context.Background()

	rule := models.CategoryRule{
		HouseholdID: "hh-1", Priority: 1,
		Field: models.FieldDescription, Match: models.MatchContains,
		Value: "coffee", CategoryID: "cat-coffee", Active: true,
	}
	if err := store.InsertRule(ctx, &rule); err != nil {
		t.Fatalf("InsertRule failed: %v", err)
	}

	if _, err := imp.Import(ctx, []byte(statement), "statement.csv", "hh-1", account.ID, Options{}); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	txs, err := store.TransactionsByAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("TransactionsByAccount failed: %v", err)
	}
	var categorized int
	for _, tx := range txs {
		if tx.CategoryID == "cat-coffee" {
			categorized++
		}
	}
	if categorized != 2 {
		t.Errorf("expected 2 categorized transactions, got %d", categorized)
	}

	got, err := store.ActiveRules(ctx, "hh-1")
	if err != nil {
		t.Fatalf("ActiveRules failed: %v", err)
	}
	if got[0].MatchCount != 2 {
		t.Errorf("rule match count should be 2, got %d", got[0].MatchCount)
	}
	if got[0].LastMatchedAt == nil {
		t.Error("rule last-matched timestamp not set")
	}
}

func TestImportRejectsForeignAccount(t *testing.T) {
	imp, _, account := newTestImporter(t)
	_, err := imp.Import(context.Background(), []byte(statement), "statement.csv", "hh-2", account.ID, Options{})
	if err != ledger.ErrForeignAccount {
		t.Fatalf("expected ErrForeignAccount, got %v", err)
	}
}

func TestImportSchemaFailureFailsBatch(t *testing.T) {
	imp, store, account := newTestImporter(t)
	ctx := context.Background()

	batch, err := imp.Import(ctx, []byte("Foo,Bar\nx,y\n"), "junk.csv", "hh-1", account.ID, Options{})
	if err == nil {
		t.Fatal("expected schema failure")
	}
	if batch.Status != models.BatchFailed {
		t.Errorf("expected failed batch, got %s", batch.Status)
	}

	txs, err := store.TransactionsByAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("TransactionsByAccount failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("nothing should be persisted, found %d transactions", len(txs))
	}

	stored, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if stored.Status != models.BatchFailed || stored.ErrorSummary == "" {
		t.Errorf("batch not finalized as failed: %+v", stored)
	}
}

func TestPreviewWritesNothing(t *testing.T) {
	imp, store, account := newTestImporter(t)
	ctx := context.Background()

	preview, err := imp.Preview(ctx, []byte(statement), "statement.csv", Options{})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if !preview.Success {
		t.Error("expected success")
	}
	if preview.TotalRows != 5 || preview.ParsedCount != 4 || preview.Errors != 1 {
		t.Errorf("unexpected counts: %+v", preview)
	}

	txs, err := store.TransactionsByAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("TransactionsByAccount failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("preview must not persist, found %d transactions", len(txs))
	}
}

func TestPreviewCapsSample(t *testing.T) {
	imp, _, _ := newTestImporter(t)

	var b strings.Builder
	b.WriteString("Date,Description,Amount\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "2024-01-%02d,Item %d,-1.%02d\n", i%28+1, i, i)
	}

	preview, err := imp.Preview(context.Background(), []byte(b.String()), "big.csv", Options{})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if preview.TotalRows != 25 {
		t.Errorf("expected 25 rows, got %d", preview.TotalRows)
	}
	if len(preview.Rows) != 10 {
		t.Errorf("preview should cap at 10 rows, got %d", len(preview.Rows))
	}
}
