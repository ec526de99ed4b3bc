// Package importer sequences the import pipeline over one statement file
// and one target account. It is intentionally decoupled from CLI / HTTP
// details so both layers can drive it.
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/psantos/centavo/pkg/dedup"
	"github.com/psantos/centavo/pkg/ledger"
	"github.com/psantos/centavo/pkg/models"
	"github.com/psantos/centavo/pkg/parser"
	"github.com/psantos/centavo/pkg/rules"
)

// previewLimit caps the sample rows returned by Preview.
const previewLimit = 10

// Options are per-request knobs for one import or preview.
type Options struct {
	// DayFirst prefers DD/MM/YYYY for ambiguous dates.
	DayFirst bool
	// Mapping, when set, bypasses schema detection.
	Mapping *parser.ColumnMapping
}

type Importer struct {
	store      *ledger.Store
	mutator    *ledger.Mutator
	classifier *rules.Classifier
	parser     *parser.Parser
	logger     *log.Logger
}

func New(store *ledger.Store, mutator *ledger.Mutator, classifier *rules.Classifier, logger *log.Logger) *Importer {
	return &Importer{
		store:      store,
		mutator:    mutator,
		classifier: classifier,
		parser:     parser.New(logger),
		logger:     logger,
	}
}

// Import runs the full pipeline: tokenize, detect or accept a mapping,
// normalize with per-row error collection, dedup against the account's
// ledger and within the batch, classify, and persist each unique row
// through the mutator. Rows are conserved: imported + skipped + errors
// equals the batch's total. Row-level failures never abort the batch; an
// unusable schema fails the whole file with nothing persisted.
func (i *Importer) Import(ctx context.Context, data []byte, filename, householdID, accountID string, opts Options) (*models.ImportBatch, error) {
	account, err := i.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.HouseholdID != householdID {
		return nil, ledger.ErrForeignAccount
	}

	batch := &models.ImportBatch{
		HouseholdID: householdID,
		AccountID:   accountID,
		Source:      filename,
		Status:      models.BatchPending,
	}
	if err := i.store.InsertBatch(ctx, batch); err != nil {
		return nil, err
	}

	result, err := i.parser.Parse(data, filename, opts.Mapping, parser.Options{DayFirst: opts.DayFirst})
	if err != nil {
		batch.Status = models.BatchFailed
		batch.ErrorSummary = err.Error()
		if ferr := i.store.FinalizeBatch(ctx, batch); ferr != nil {
			i.logger.Warn("failed to finalize failed batch", "batch", batch.ID, "err", ferr)
		}
		return batch, err
	}

	batch.TotalRows = result.TotalRows
	batch.ParseErrors = result.RowErrors
	batch.Errors = len(result.RowErrors)

	existing, err := i.store.TransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	unique, duplicates := dedup.NewFilter(existing).Partition(result.Candidates)
	batch.Skipped = len(duplicates)

	snapshot, err := i.classifier.Snapshot(ctx, householdID)
	if err != nil {
		return nil, err
	}

	for _, candidate := range unique {
		candidate.CategoryID = i.classifier.Classify(ctx, snapshot, candidate)

		_, err := i.mutator.Create(ctx, ledger.CreateInput{
			HouseholdID: householdID,
			AccountID:   accountID,
			Type:        candidate.Type,
			Amount:      candidate.Amount,
			Date:        candidate.Date,
			Description: candidate.Description,
			Merchant:    candidate.Merchant,
			Reference:   candidate.Reference,
			CategoryID:  candidate.CategoryID,
			ExternalID:  dedup.Key(candidate.Date, candidate.Amount, candidate.Description),
		})
		if err != nil {
			batch.Errors++
			batch.ParseErrors = append(batch.ParseErrors, models.RowError{
				Row:     candidate.Row,
				Message: fmt.Sprintf("persist failed: %v", err),
			})
			continue
		}
		batch.Imported++
	}

	batch.Status = models.BatchCompleted
	batch.ErrorSummary = summarize(batch.ParseErrors)
	if err := i.store.FinalizeBatch(ctx, batch); err != nil {
		return nil, err
	}

	i.logger.Info("import complete",
		"batch", batch.ID, "file", filename, "account", accountID,
		"total", batch.TotalRows, "imported", batch.Imported,
		"skipped", batch.Skipped, "errors", batch.Errors)
	return batch, nil
}

// PreviewRow is one sample row of a preview response.
type PreviewRow struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Merchant    string `json:"merchant,omitempty"`
}

// Preview is the dry-run result: what an import of this file would look
// like, without writing anything.
type Preview struct {
	Success     bool              `json:"success"`
	Headers     []string          `json:"headers"`
	TotalRows   int               `json:"totalRows"`
	ParsedCount int               `json:"parsedCount"`
	Errors      int               `json:"errors"`
	Warnings    int               `json:"warnings"`
	ParseErrors []models.RowError `json:"parseErrors,omitempty"`
	Rows        []PreviewRow      `json:"preview"`
}

// Preview runs tokenize, detection and normalization only and returns a
// bounded sample plus error and warning counts. Nothing is persisted and
// no account is required.
func (i *Importer) Preview(ctx context.Context, data []byte, filename string, opts Options) (*Preview, error) {
	result, err := i.parser.Parse(data, filename, opts.Mapping, parser.Options{DayFirst: opts.DayFirst})
	if err != nil {
		return &Preview{Success: false}, err
	}

	p := &Preview{
		Success:     true,
		Headers:     result.Headers,
		TotalRows:   result.TotalRows,
		ParsedCount: len(result.Candidates),
		Errors:      len(result.RowErrors),
		Warnings:    len(result.Warnings),
		ParseErrors: result.RowErrors,
	}
	for _, c := range result.Candidates {
		if len(p.Rows) == previewLimit {
			break
		}
		p.Rows = append(p.Rows, PreviewRow{
			Date:        c.Date.Format("2006-01-02"),
			Amount:      c.Amount.StringFixed(2),
			Type:        string(c.Type),
			Description: c.Description,
			Merchant:    c.Merchant,
		})
	}
	return p, nil
}

// summarize folds row errors into the batch's free-text summary, capped
// so a pathological file cannot bloat the record.
func summarize(errs []models.RowError) string {
	if len(errs) == 0 {
		return ""
	}
	const maxLines = 20
	var b strings.Builder
	for i, e := range errs {
		if i == maxLines {
			fmt.Fprintf(&b, "... and %d more", len(errs)-maxLines)
			break
		}
		fmt.Fprintf(&b, "row %d: %s\n", e.Row, e.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
