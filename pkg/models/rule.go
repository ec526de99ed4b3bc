package models

import "time"

// MatchField selects which transaction field a rule is tested against.
type MatchField string

const (
	FieldDescription MatchField = "description"
	FieldMerchant    MatchField = "merchant"
)

// MatchType is the comparison a rule applies to its field.
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
	MatchExact      MatchType = "exact"
	MatchRegex      MatchType = "regex"
)

// CategoryRule assigns a category to transactions whose description or
// merchant matches. Rules are household-scoped and evaluated in ascending
// Priority order; the first match wins.
type CategoryRule struct {
	ID            string
	HouseholdID   string
	Priority      int
	Field         MatchField
	Match         MatchType
	Value         string
	CaseSensitive bool
	CategoryID    string
	Active        bool
	MatchCount    int
	LastMatchedAt *time.Time
	CreatedAt     time.Time
}
