package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/psantos/centavo/pkg/models"
)

// Options control the locale-ambiguous parts of parsing.
type Options struct {
	// DayFirst prefers DD/MM/YYYY over MM/DD/YYYY when a 3-part date
	// cannot be disambiguated from its digits alone.
	DayFirst bool
}

var dateSeparators = []string{"/", "-", "."}

// fallbackLayouts are the last-resort date formats tried after the ISO
// and 3-part strategies have failed.
var fallbackLayouts = []string{
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2 January 2006",
	"2006/01/02",
	"20060102",
}

// ParseDate parses a bank-export date string to a UTC calendar date.
// Strategy order: ISO YYYY-MM-DD prefix, then a 3-part separator split
// with the day-first policy, then the fallback layouts. Failing all three
// is a hard per-row error for the caller.
func ParseDate(s string, dayFirst bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}

	if t, ok := parseThreePart(s, dayFirst); ok {
		return t, nil
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseThreePart(s string, dayFirst bool) (time.Time, bool) {
	var parts []string
	for _, sep := range dateSeparators {
		if p := strings.Split(s, sep); len(p) == 3 {
			parts = p
			break
		}
	}
	if parts == nil {
		return time.Time{}, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	var year, month, day int
	switch {
	case len(parts[0]) == 4:
		year, month, day = nums[0], nums[1], nums[2]
	default:
		year = nums[2]
		if len(parts[2]) == 2 {
			year = expandYear(nums[2])
		}
		// A first part that cannot be a month forces day-first; the
		// preference flag only breaks genuine ties.
		if nums[0] > 12 || (dayFirst && nums[1] <= 12) {
			day, month = nums[0], nums[1]
		} else {
			month, day = nums[0], nums[1]
		}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		// time.Date normalized an impossible date like Feb 30.
		return time.Time{}, false
	}
	return t, true
}

// expandYear maps a 2-digit year into the 1900s when above 50, else the
// 2000s.
func expandYear(y int) int {
	if y > 50 {
		return 1900 + y
	}
	return 2000 + y
}

// ParseAmount parses a currency amount string into a decimal, handling
// currency symbols, accounting-style parentheses for negatives, and the
// comma-vs-period separator ambiguity. The convention call: when the last
// comma sits after the last period and close to the end it is a decimal
// comma (European), otherwise commas are thousands separators (US).
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Keep digits, signs and separators; drop currency symbols, codes
	// and grouping spaces.
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c == ',', c == '.', c == '-', c == '+':
			b.WriteRune(c)
		}
	}
	s = b.String()
	if strings.HasPrefix(s, "-") {
		negative = true
	}
	s = strings.Trim(s, "+-")
	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", raw)
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastComma > lastDot && len(s)-lastComma <= 4 && strings.Count(s, ",") == 1 && (lastDot >= 0 || len(s)-lastComma != 4):
		// Decimal comma: "1.234,56". A lone comma with exactly three
		// digits after it and no period ("1,234") stays a thousands
		// separator.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// NormalizeRow turns one tokenized row into a typed import candidate
// under the given mapping. Date and amount failures are hard errors that
// exclude the row; optional fields degrade silently.
func NormalizeRow(row RawRow, m *ColumnMapping, opts Options) (*models.ParsedTransaction, error) {
	date, err := ParseDate(field(row, m.Date), opts.DayFirst)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row.Number, err)
	}

	net, err := rowAmount(row, m)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row.Number, err)
	}

	txType := models.TypeIncome
	if net.IsNegative() {
		txType = models.TypeExpense
	}

	pt := &models.ParsedTransaction{
		Row:         row.Number,
		Date:        date,
		Amount:      net.Abs(),
		Type:        txType,
		Description: field(row, m.Description),
		Merchant:    field(row, m.Merchant),
		Reference:   field(row, m.Reference),
		Raw:         rawMap(row, m.Headers),
	}

	if bal := field(row, m.Balance); bal != "" {
		if d, err := ParseAmount(bal); err == nil {
			pt.Balance = &d
		}
	}

	return pt, nil
}

// rowAmount resolves the signed net amount from either the single amount
// column or the debit/credit pair.
func rowAmount(row RawRow, m *ColumnMapping) (decimal.Decimal, error) {
	if m.Amount >= 0 {
		return ParseAmount(field(row, m.Amount))
	}

	debitRaw := field(row, m.Debit)
	creditRaw := field(row, m.Credit)
	if debitRaw == "" && creditRaw == "" {
		return decimal.Zero, fmt.Errorf("empty debit and credit")
	}

	net := decimal.Zero
	if creditRaw != "" {
		credit, err := ParseAmount(creditRaw)
		if err != nil {
			return decimal.Zero, err
		}
		net = net.Add(credit.Abs())
	}
	if debitRaw != "" {
		debit, err := ParseAmount(debitRaw)
		if err != nil {
			return decimal.Zero, err
		}
		net = net.Sub(debit.Abs())
	}
	return net, nil
}

func rawMap(row RawRow, headers []string) map[string]string {
	raw := make(map[string]string, len(row.Fields))
	for i, f := range row.Fields {
		key := fmt.Sprintf("col_%d", i)
		if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
			key = headers[i]
		}
		raw[key] = f
	}
	return raw
}
