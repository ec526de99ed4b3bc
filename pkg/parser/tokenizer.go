package parser

import "strings"

// RawRow is one tokenized source row: the trimmed fields plus the 1-based
// physical line number the row started on. Row numbers survive all the way
// into batch error messages, so they count source lines, not logical rows.
type RawRow struct {
	Number int
	Fields []string
}

// DetectSeparator picks the field separator for a file by counting
// candidates in the header line. Comma wins ties; semicolon and tab only
// take over when they outnumber it, which is how most European bank
// exports present themselves.
func DetectSeparator(header string) rune {
	commas := strings.Count(header, ",")
	semis := strings.Count(header, ";")
	tabs := strings.Count(header, "\t")
	if semis > commas && semis >= tabs {
		return ';'
	}
	if tabs > commas {
		return '\t'
	}
	return ','
}

// Tokenize splits raw file text into rows of trimmed string fields.
// Quoted fields may contain separators, newlines and doubled-quote
// escapes. Both \r\n and bare \n terminate rows. Fully empty rows are
// dropped. Malformed quoting never fails the file: a stray or
// unterminated quote corrupts at most its own field and the row still
// comes out, because later stages handle errors per row.
func Tokenize(text string, sep rune) []RawRow {
	var (
		rows     []RawRow
		fields   []string
		field    strings.Builder
		inQuotes bool
		line     = 1
		rowLine  = 1
	)

	runes := []rune(text)

	flushField := func() {
		fields = append(fields, strings.TrimSpace(field.String()))
		field.Reset()
	}
	flushRow := func() {
		flushField()
		empty := true
		for _, f := range fields {
			if f != "" {
				empty = false
				break
			}
		}
		if !empty {
			rows = append(rows, RawRow{Number: rowLine, Fields: fields})
		}
		fields = nil
		rowLine = line
	}

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			if field.Len() == 0 {
				inQuotes = true
				continue
			}
			// Quote in the middle of an unquoted field. Keep it
			// literal so the damage stays in this field.
			field.WriteRune('"')
		case c == sep && !inQuotes:
			flushField()
		case c == '\n':
			line++
			if inQuotes {
				field.WriteRune('\n')
				continue
			}
			flushRow()
		case c == '\r':
			if inQuotes {
				field.WriteRune('\r')
			}
			// Outside quotes \r only ever precedes \n; swallow it.
		default:
			field.WriteRune(c)
		}
	}
	if inQuotes {
		// Unterminated quote at EOF: emit what we have.
		inQuotes = false
	}
	if field.Len() > 0 || len(fields) > 0 {
		flushRow()
	}

	return rows
}
