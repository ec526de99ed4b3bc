package parser

import (
	"fmt"
	"strings"
)

// ColumnMapping resolves each semantic slot to a column index, fixed once
// per file at detection time so row processing never repeats header-string
// lookups. -1 marks an absent slot. Either Amount or both Debit and Credit
// are set; Date and Description are always set.
type ColumnMapping struct {
	Date        int
	Amount      int
	Debit       int
	Credit      int
	Description int
	Merchant    int
	Reference   int
	Balance     int

	Headers []string
	// DescriptionFallback is set when no description header matched and
	// the slot was filled by the first unclaimed non-numeric column.
	DescriptionFallback bool
}

// Header synonym lists, tried in order; the first header label that
// matches claims the slot.
var (
	dateSynonyms = []string{
		"date", "transaction date", "posted date", "value date",
		"booking date", "posting date", "trans date",
	}
	amountSynonyms = []string{
		"amount", "transaction amount", "value", "sum", "amt",
	}
	debitSynonyms = []string{
		"debit", "debit amount", "withdrawal", "withdrawals",
		"money out", "paid out", "outflow",
	}
	creditSynonyms = []string{
		"credit", "credit amount", "deposit", "deposits",
		"money in", "paid in", "inflow",
	}
	descriptionSynonyms = []string{
		"description", "details", "transaction description",
		"narrative", "transaction details", "memo", "payee", "name",
	}
	merchantSynonyms = []string{
		"merchant", "merchant name", "counterparty", "vendor",
	}
	referenceSynonyms = []string{
		"reference", "reference number", "ref", "transaction id",
		"cheque number", "check number",
	}
	balanceSynonyms = []string{
		"balance", "running balance", "closing balance",
		"available balance",
	}
)

func normalizeHeader(label string) string {
	label = strings.TrimPrefix(label, "\uFEFF")
	label = strings.Trim(label, `"'`)
	return strings.ToLower(strings.TrimSpace(label))
}

// DetectMapping infers a ColumnMapping from the header row. It is
// heuristic-first: real bank exports rarely match one canonical schema,
// so unresolved optional slots are fine and only a missing date, a
// missing amount form, or a description with no fallback is an error.
// Callers may bypass detection entirely by supplying their own mapping.
func DetectMapping(header []string) (*ColumnMapping, error) {
	labels := make([]string, len(header))
	for i, h := range header {
		labels[i] = normalizeHeader(h)
	}

	claimed := make([]bool, len(labels))
	find := func(synonyms []string) int {
		for _, syn := range synonyms {
			for i, label := range labels {
				if !claimed[i] && label == syn {
					claimed[i] = true
					return i
				}
			}
		}
		return -1
	}

	m := &ColumnMapping{
		Headers: header,
		Date:    find(dateSynonyms),
		Amount:  find(amountSynonyms),
	}
	if m.Amount < 0 {
		m.Debit = find(debitSynonyms)
		m.Credit = find(creditSynonyms)
	} else {
		m.Debit, m.Credit = -1, -1
	}
	m.Balance = find(balanceSynonyms)
	m.Description = find(descriptionSynonyms)
	m.Merchant = find(merchantSynonyms)
	m.Reference = find(referenceSynonyms)

	if m.Description < 0 {
		// Fall back to the first column not holding the date, an
		// amount or the balance.
		for i := range labels {
			if !claimed[i] {
				m.Description = i
				m.DescriptionFallback = true
				claimed[i] = true
				break
			}
		}
	}

	if m.Date < 0 {
		return nil, fmt.Errorf("no date column found in header %v", header)
	}
	if !m.hasAmount() {
		return nil, fmt.Errorf("no amount or debit/credit columns found in header %v", header)
	}
	if m.Description < 0 {
		return nil, fmt.Errorf("no description column found in header %v", header)
	}
	return m, nil
}

// NewMapping returns a mapping with every slot unset, for callers
// assembling a manual override instead of running detection.
func NewMapping() *ColumnMapping {
	return &ColumnMapping{
		Date: -1, Amount: -1, Debit: -1, Credit: -1,
		Description: -1, Merchant: -1, Reference: -1, Balance: -1,
	}
}

func (m *ColumnMapping) hasAmount() bool {
	return m.Amount >= 0 || (m.Debit >= 0 && m.Credit >= 0)
}

// field returns the trimmed value at idx or "" when the slot is absent or
// the row is short.
func field(row RawRow, idx int) string {
	if idx < 0 || idx >= len(row.Fields) {
		return ""
	}
	return row.Fields[idx]
}
