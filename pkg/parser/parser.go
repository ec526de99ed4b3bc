package parser

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/psantos/centavo/pkg/models"
)

// FileFormat is the physical container a statement arrived in.
type FileFormat string

const (
	FormatCSV FileFormat = "csv"
	FormatXLS FileFormat = "xls"
)

// Result is the outcome of parsing one statement file: the candidates
// that normalized cleanly, the per-row errors for the ones that did not,
// and the mapping that was used. TotalRows counts data rows, so
// len(Candidates) + len(RowErrors) == TotalRows always holds.
type Result struct {
	Format     FileFormat
	Headers    []string
	Mapping    *ColumnMapping
	Candidates []*models.ParsedTransaction
	RowErrors  []models.RowError
	TotalRows  int
	Warnings   []string
}

type Parser struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse runs tokenize, schema detection and normalization over one file.
// A non-nil mapping bypasses detection (manual override). Row-level
// failures are collected, never fatal; only an unusable schema is an
// error, in which case nothing is returned.
func (p *Parser) Parse(data []byte, filename string, mapping *ColumnMapping, opts Options) (*Result, error) {
	format := detectFormat(filename)
	p.logger.Debug("detected file format", "format", format, "filename", filename)

	var rows []RawRow
	switch format {
	case FormatXLS:
		var err error
		rows, err = RowsFromXLS(data)
		if err != nil {
			return nil, fmt.Errorf("failed to read xls %s: %w", filename, err)
		}
	default:
		text := string(data)
		sep := DetectSeparator(firstLine(text))
		rows = Tokenize(text, sep)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows found in %s", filename)
	}

	header := rows[0]
	if mapping == nil {
		var err error
		mapping, err = DetectMapping(header.Fields)
		if err != nil {
			return nil, fmt.Errorf("schema detection failed for %s: %w", filename, err)
		}
	} else if len(mapping.Headers) == 0 {
		mapping.Headers = header.Fields
	}

	result := &Result{
		Format:  format,
		Headers: header.Fields,
		Mapping: mapping,
	}
	if mapping.DescriptionFallback {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no description header matched; using column %q", field(header, mapping.Description)))
	}

	for _, row := range rows[1:] {
		result.TotalRows++
		pt, err := NormalizeRow(row, mapping, opts)
		if err != nil {
			result.RowErrors = append(result.RowErrors, models.RowError{
				Row:     row.Number,
				Message: strings.TrimPrefix(err.Error(), fmt.Sprintf("row %d: ", row.Number)),
			})
			continue
		}
		result.Candidates = append(result.Candidates, pt)
	}

	p.logger.Debug("parsed statement",
		"filename", filename,
		"rows", result.TotalRows,
		"candidates", len(result.Candidates),
		"errors", len(result.RowErrors))

	return result, nil
}

func detectFormat(filename string) FileFormat {
	if strings.HasSuffix(strings.ToLower(filename), ".xls") {
		return FormatXLS
	}
	return FormatCSV
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
