package models

import "time"

// BatchStatus is the lifecycle state of an import batch record.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// RowError records a per-row parse failure with the 1-based source row it
// came from. Rows with errors are excluded from the batch, never silently
// dropped.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportBatch summarizes one run of the import pipeline against one file
// and one target account. It is written once at the start and finalized
// once at the end; imported + skipped + errors always equals TotalRows.
type ImportBatch struct {
	ID           string
	HouseholdID  string
	AccountID    string
	Source       string
	Status       BatchStatus
	TotalRows    int
	Imported     int
	Skipped      int
	Errors       int
	ErrorSummary string
	ParseErrors  []RowError
	CreatedAt    time.Time
	FinishedAt   *time.Time
}
