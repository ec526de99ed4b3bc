// Package server exposes the import pipeline and direct ledger mutations
// over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/psantos/centavo/pkg/config"
	"github.com/psantos/centavo/pkg/importer"
	"github.com/psantos/centavo/pkg/ledger"
	"github.com/psantos/centavo/pkg/models"
)

// Server handles HTTP requests for statement import and ledger edits.
type Server struct {
	config   *config.Config
	logger   *log.Logger
	mux      *http.ServeMux
	store    *ledger.Store
	mutator  *ledger.Mutator
	importer *importer.Importer
}

// New creates a new HTTP server over an opened store.
func New(cfg *config.Config, logger *log.Logger, store *ledger.Store, mutator *ledger.Mutator, imp *importer.Importer) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		store:    store,
		mutator:  mutator,
		importer: imp,
	}
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.setupRoutes()
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/preview", s.withLogging(s.handlePreview))
	s.mux.HandleFunc("/api/import", s.withLogging(s.handleImport))
	s.mux.HandleFunc("/api/accounts", s.withLogging(s.handleAccounts))
	s.mux.HandleFunc("/api/accounts/", s.withLogging(s.handleAccountTransactions))
	s.mux.HandleFunc("/api/transactions", s.withLogging(s.handleCreateTransaction))
	s.mux.HandleFunc("/api/transactions/", s.withLogging(s.handleTransaction))
	s.mux.HandleFunc("/api/batches/", s.withLogging(s.handleBatch))
}

// ---------------- import pipeline ----------------

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	data, filename, ok := s.readStatement(w, r)
	if !ok {
		return
	}

	preview, err := s.importer.Preview(r.Context(), data, filename, s.importOptions(r))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to parse file", err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, preview); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	householdID := r.FormValue("household_id")
	accountID := r.FormValue("account_id")
	if householdID == "" || accountID == "" {
		s.respondError(w, r, http.StatusBadRequest, "household_id and account_id required", nil)
		return
	}

	data, filename, ok := s.readStatement(w, r)
	if !ok {
		return
	}

	batch, err := s.importer.Import(r.Context(), data, filename, householdID, accountID, s.importOptions(r))
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case err == ledger.ErrAccountNotFound:
			status = http.StatusNotFound
		case err == ledger.ErrForeignAccount:
			status = http.StatusForbidden
		}
		s.respondError(w, r, status, "import failed", err)
		return
	}

	if err := s.writeJSON(w, http.StatusOK, batchResponse(batch)); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	if id == "" {
		s.respondError(w, r, http.StatusBadRequest, "batch id required", nil)
		return
	}
	batch, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		s.respondError(w, r, http.StatusNotFound, "batch not found", err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, batchResponse(batch)); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// readStatement pulls the uploaded statement file out of the multipart
// form.
func (s *Server) readStatement(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	file, header, err := r.FormFile("statement")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "statement file required", err)
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to read file", err)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) importOptions(r *http.Request) importer.Options {
	opts := importer.Options{DayFirst: s.config.DayFirst}
	if v := r.FormValue("day_first"); v != "" {
		opts.DayFirst = v == "true" || v == "1"
	}
	return opts
}

// ---------------- accounts ----------------

type accountRequest struct {
	HouseholdID string `json:"household_id"`
	Name        string `json:"name"`
	Currency    string `json:"currency"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		householdID := r.URL.Query().Get("household_id")
		if householdID == "" {
			s.respondError(w, r, http.StatusBadRequest, "household_id required", nil)
			return
		}
		accounts, err := s.store.AccountsByHousehold(r.Context(), householdID)
		if err != nil {
			s.respondError(w, r, http.StatusInternalServerError, "failed to list accounts", err)
			return
		}
		if err := s.writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts}); err != nil {
			s.logger.Warn("failed to write json response", "err", err)
		}
	case http.MethodPost:
		var req accountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid json body", err)
			return
		}
		if req.HouseholdID == "" || req.Name == "" || req.Currency == "" {
			s.respondError(w, r, http.StatusBadRequest, "household_id, name and currency required", nil)
			return
		}
		account := &models.Account{
			HouseholdID: req.HouseholdID,
			Name:        req.Name,
			Currency:    req.Currency,
		}
		if err := s.store.CreateAccount(r.Context(), account); err != nil {
			s.respondError(w, r, http.StatusInternalServerError, "failed to create account", err)
			return
		}
		if err := s.writeJSON(w, http.StatusCreated, account); err != nil {
			s.logger.Warn("failed to write json response", "err", err)
		}
	default:
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	}
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	accountID, tail, _ := strings.Cut(rest, "/")
	if accountID == "" || tail != "transactions" {
		s.respondError(w, r, http.StatusNotFound, "not found", nil)
		return
	}
	transactions, err := s.store.TransactionsByAccount(r.Context(), accountID)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to list transactions", err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- direct mutations ----------------

type transactionRequest struct {
	HouseholdID          string   `json:"household_id"`
	AccountID            string   `json:"account_id"`
	Type                 string   `json:"type"`
	Amount               string   `json:"amount"`
	Date                 string   `json:"date"`
	Description          string   `json:"description"`
	Merchant             string   `json:"merchant"`
	Reference            string   `json:"reference"`
	CategoryID           string   `json:"category_id"`
	DestinationAccountID string   `json:"destination_account_id"`
	Tags                 []string `json:"tags"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid json body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid date, want YYYY-MM-DD", err)
		return
	}

	tx, err := s.mutator.Create(r.Context(), ledger.CreateInput{
		HouseholdID:          req.HouseholdID,
		AccountID:            req.AccountID,
		Type:                 models.TransactionType(req.Type),
		Amount:               amount,
		Date:                 date,
		Description:          req.Description,
		Merchant:             req.Merchant,
		Reference:            req.Reference,
		CategoryID:           req.CategoryID,
		DestinationAccountID: req.DestinationAccountID,
		Tags:                 req.Tags,
	})
	if err != nil {
		s.respondMutationError(w, r, err)
		return
	}
	if err := s.writeJSON(w, http.StatusCreated, tx); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

type transactionUpdateRequest struct {
	HouseholdID string    `json:"household_id"`
	Type        *string   `json:"type"`
	Status      *string   `json:"status"`
	Amount      *string   `json:"amount"`
	Date        *string   `json:"date"`
	Description *string   `json:"description"`
	Merchant    *string   `json:"merchant"`
	Reference   *string   `json:"reference"`
	CategoryID  *string   `json:"category_id"`
	Tags        *[]string `json:"tags"`
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if id == "" {
		s.respondError(w, r, http.StatusBadRequest, "transaction id required", nil)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		householdID := r.URL.Query().Get("household_id")
		if householdID == "" {
			s.respondError(w, r, http.StatusBadRequest, "household_id required", nil)
			return
		}
		if err := s.mutator.Delete(r.Context(), householdID, id); err != nil {
			s.respondMutationError(w, r, err)
			return
		}
		if err := s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}); err != nil {
			s.logger.Warn("failed to write json response", "err", err)
		}
	case http.MethodPatch, http.MethodPut:
		var req transactionUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid json body", err)
			return
		}
		input, err := updateInput(req)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, err.Error(), err)
			return
		}
		tx, err := s.mutator.Update(r.Context(), req.HouseholdID, id, input)
		if err != nil {
			s.respondMutationError(w, r, err)
			return
		}
		if err := s.writeJSON(w, http.StatusOK, tx); err != nil {
			s.logger.Warn("failed to write json response", "err", err)
		}
	default:
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	}
}

func updateInput(req transactionUpdateRequest) (ledger.UpdateInput, error) {
	var in ledger.UpdateInput
	if req.Type != nil {
		t := models.TransactionType(*req.Type)
		in.Type = &t
	}
	if req.Status != nil {
		st := models.TransactionStatus(*req.Status)
		in.Status = &st
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return in, fmt.Errorf("invalid amount")
		}
		in.Amount = &amount
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return in, fmt.Errorf("invalid date, want YYYY-MM-DD")
		}
		in.Date = &date
	}
	in.Description = req.Description
	in.Merchant = req.Merchant
	in.Reference = req.Reference
	in.CategoryID = req.CategoryID
	in.Tags = req.Tags
	return in, nil
}

func (s *Server) respondMutationError(w http.ResponseWriter, r *http.Request, err error) {
	switch err {
	case ledger.ErrAccountNotFound, ledger.ErrTransactionNotFound:
		s.respondError(w, r, http.StatusNotFound, err.Error(), err)
	case ledger.ErrForeignAccount:
		s.respondError(w, r, http.StatusForbidden, err.Error(), err)
	case ledger.ErrNoDestination, ledger.ErrCurrencyMismatch, ledger.ErrTransferRetype:
		s.respondError(w, r, http.StatusBadRequest, err.Error(), err)
	default:
		s.respondError(w, r, http.StatusInternalServerError, "mutation failed", err)
	}
}

// batchResponse is the wire shape of an import summary.
func batchResponse(b *models.ImportBatch) map[string]any {
	parseErrors := b.ParseErrors
	if parseErrors == nil {
		parseErrors = []models.RowError{}
	}
	return map[string]any{
		"batchId":      b.ID,
		"status":       string(b.Status),
		"totalRows":    b.TotalRows,
		"imported":     b.Imported,
		"skipped":      b.Skipped,
		"errors":       b.Errors,
		"parseErrors":  parseErrors,
		"errorSummary": b.ErrorSummary,
	}
}

// --- helpers ---

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log request start/end and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
