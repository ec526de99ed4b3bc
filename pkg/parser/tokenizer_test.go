package parser

import (
	"reflect"
	"testing"
)

func TestTokenizeQuoting(t *testing.T) {
	text := "date,description,amount\r\n" +
		"2024-01-02,\"Coffee, beans\",-4.50\n" +
		"2024-01-03,\"He said \"\"hi\"\"\",10.00\n"

	rows := Tokenize(text, ',')
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[1].Fields[1]; got != "Coffee, beans" {
		t.Errorf("embedded separator: got %q", got)
	}
	if got := rows[2].Fields[1]; got != `He said "hi"` {
		t.Errorf("doubled quote escape: got %q", got)
	}
}

func TestTokenizeEmbeddedNewline(t *testing.T) {
	text := "a,b\n\"line one\nline two\",x\nlast,y\n"
	rows := Tokenize(text, ',')
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[1].Fields[0]; got != "line one\nline two" {
		t.Errorf("embedded newline: got %q", got)
	}
	// The row after a multi-line field keeps its physical line number.
	if rows[2].Number != 4 {
		t.Errorf("expected row number 4, got %d", rows[2].Number)
	}
}

func TestTokenizeDropsEmptyRows(t *testing.T) {
	text := "a,b\n\n,,\nc,d\n"
	rows := Tokenize(text, ',')
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[1].Fields, []string{"c", "d"}) {
		t.Errorf("unexpected fields %v", rows[1].Fields)
	}
	if rows[1].Number != 4 {
		t.Errorf("expected row number 4, got %d", rows[1].Number)
	}
}

func TestTokenizeMalformedQuoteIsLocal(t *testing.T) {
	// A stray quote mid-field must not eat the rest of the file.
	text := "a,b\nbad\"field,ok\nnext,row\n"
	rows := Tokenize(text, ',')
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[1].Fields[0]; got != `bad"field` {
		t.Errorf("stray quote: got %q", got)
	}
	if !reflect.DeepEqual(rows[2].Fields, []string{"next", "row"}) {
		t.Errorf("following row corrupted: %v", rows[2].Fields)
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	text := "a,b\nx,\"never closed"
	rows := Tokenize(text, ',')
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if got := rows[1].Fields[1]; got != "never closed" {
		t.Errorf("unterminated quote: got %q", got)
	}
}

func TestDetectSeparator(t *testing.T) {
	cases := []struct {
		header string
		want   rune
	}{
		{"date,amount,description", ','},
		{"date;amount;description", ';'},
		{"date\tamount\tdescription", '\t'},
		{"date;amount,description;balance", ';'},
	}
	for _, c := range cases {
		if got := DetectSeparator(c.header); got != c.want {
			t.Errorf("DetectSeparator(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
