package parser

import "testing"

func TestDetectMappingBasic(t *testing.T) {
	m, err := DetectMapping([]string{"Date", "Description", "Amount", "Balance"})
	if err != nil {
		t.Fatalf("DetectMapping failed: %v", err)
	}
	if m.Date != 0 || m.Description != 1 || m.Amount != 2 || m.Balance != 3 {
		t.Errorf("unexpected mapping %+v", m)
	}
	if m.Debit != -1 || m.Credit != -1 {
		t.Errorf("debit/credit should be unset with a single amount column: %+v", m)
	}
}

func TestDetectMappingSynonyms(t *testing.T) {
	m, err := DetectMapping([]string{"Posted Date", "Narrative", "Transaction Amount", "Running Balance", "Reference"})
	if err != nil {
		t.Fatalf("DetectMapping failed: %v", err)
	}
	if m.Date != 0 || m.Description != 1 || m.Amount != 2 || m.Balance != 3 || m.Reference != 4 {
		t.Errorf("unexpected mapping %+v", m)
	}
}

func TestDetectMappingDebitCredit(t *testing.T) {
	m, err := DetectMapping([]string{"Value Date", "Details", "Money Out", "Money In"})
	if err != nil {
		t.Fatalf("DetectMapping failed: %v", err)
	}
	if m.Amount != -1 {
		t.Errorf("expected no single amount column, got %d", m.Amount)
	}
	if m.Debit != 2 || m.Credit != 3 {
		t.Errorf("unexpected debit/credit mapping %+v", m)
	}
}

func TestDetectMappingDescriptionFallback(t *testing.T) {
	m, err := DetectMapping([]string{"Date", "Weird Column", "Amount"})
	if err != nil {
		t.Fatalf("DetectMapping failed: %v", err)
	}
	if m.Description != 1 {
		t.Errorf("expected fallback description at 1, got %d", m.Description)
	}
	if !m.DescriptionFallback {
		t.Error("expected DescriptionFallback to be set")
	}
}

func TestDetectMappingMerchant(t *testing.T) {
	m, err := DetectMapping([]string{"Date", "Description", "Merchant", "Amount"})
	if err != nil {
		t.Fatalf("DetectMapping failed: %v", err)
	}
	if m.Merchant != 2 {
		t.Errorf("expected merchant at 2, got %d", m.Merchant)
	}
}

func TestDetectMappingFailures(t *testing.T) {
	cases := [][]string{
		{"Description", "Amount"}, // no date
		{"Date", "Description"},   // no amount form
		{"Date", "Debit"},         // debit without credit
	}
	for _, header := range cases {
		if _, err := DetectMapping(header); err == nil {
			t.Errorf("DetectMapping(%v) should have failed", header)
		}
	}
}

func TestDetectMappingCaseInsensitive(t *testing.T) {
	m, err := DetectMapping([]string{"DATE", "DESCRIPTION", "AMOUNT"})
	if err != nil {
		t.Fatalf("DetectMapping failed: %v", err)
	}
	if m.Date != 0 || m.Description != 1 || m.Amount != 2 {
		t.Errorf("unexpected mapping %+v", m)
	}
}
