package parser

import (
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseCSV(t *testing.T) {
	content := []byte("Date;Description;Amount\n" +
		"17/03/2025;PIX TRANSF ID_A15/03;-2327,00\n" +
		"17/03/2025;MOBILE PAG TIT 426XXXXXX;-287,00\n" +
		"19/03/2025;PIX TRANSF ID_C19/03;-1900,00\n")

	p := New(log.Default())
	result, err := p.Parse(content, "extrato.csv", nil, Options{DayFirst: true})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.TotalRows != 3 {
		t.Errorf("expected 3 rows, got %d", result.TotalRows)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(result.Candidates))
	}
	first := result.Candidates[0]
	if first.Date.Format("2006-01-02") != "2025-03-17" {
		t.Errorf("unexpected date %s", first.Date)
	}
	if first.Description != "PIX TRANSF ID_A15/03" {
		t.Errorf("unexpected description %q", first.Description)
	}
	if first.Amount.String() != "2327" {
		t.Errorf("unexpected amount %s", first.Amount)
	}
}

func TestParseCollectsRowErrors(t *testing.T) {
	content := []byte("Date,Description,Amount\n" +
		"2024-01-02,ok,10.00\n" +
		"not a date,broken,10.00\n" +
		"2024-01-03,also ok,bad amount\n" +
		"2024-01-04,fine,-5.00\n")

	p := New(log.Default())
	result, err := p.Parse(content, "statement.csv", nil, Options{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.TotalRows != 4 {
		t.Errorf("expected 4 rows, got %d", result.TotalRows)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(result.Candidates))
	}
	if len(result.RowErrors) != 2 {
		t.Fatalf("expected 2 row errors, got %d", len(result.RowErrors))
	}
	if result.RowErrors[0].Row != 3 || result.RowErrors[1].Row != 4 {
		t.Errorf("unexpected error rows: %+v", result.RowErrors)
	}
	if len(result.Candidates)+len(result.RowErrors) != result.TotalRows {
		t.Error("rows are not conserved")
	}
}

func TestParseSchemaFailureIsFatal(t *testing.T) {
	content := []byte("Foo,Bar\nx,y\n")
	p := New(log.Default())
	if _, err := p.Parse(content, "junk.csv", nil, Options{}); err == nil {
		t.Fatal("expected schema detection to fail")
	}
}

func TestParseManualMappingOverride(t *testing.T) {
	content := []byte("When,What,HowMuch\n2024-01-02,things,12.00\n")

	m := NewMapping()
	m.Date = 0
	m.Description = 1
	m.Amount = 2

	p := New(log.Default())
	result, err := p.Parse(content, "custom.csv", m, Options{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	if result.Candidates[0].Description != "things" {
		t.Errorf("unexpected description %q", result.Candidates[0].Description)
	}
}
