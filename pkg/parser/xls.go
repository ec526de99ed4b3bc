package parser

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

const maxXLSRows = 10000

// RowsFromXLS extracts the cell grid from a legacy Excel workbook so
// statements exported as .xls run through the same pipeline as CSV text.
// Row numbers are assigned from the sheet position, 1-based like the
// tokenizer's.
func RowsFromXLS(data []byte) ([]RawRow, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error opening workbook: %w", err)
	}

	cells := workbook.ReadAllCells(maxXLSRows)
	if len(cells) == 0 {
		return nil, fmt.Errorf("no data found in sheet")
	}

	var rows []RawRow
	for i, cellRow := range cells {
		fields := make([]string, len(cellRow))
		empty := true
		for j, c := range cellRow {
			fields[j] = trimCell(c)
			if fields[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, RawRow{Number: i + 1, Fields: fields})
	}
	return rows, nil
}

func trimCell(c string) string {
	return string(bytes.TrimSpace([]byte(c)))
}
