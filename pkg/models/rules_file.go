package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RulesFile is the YAML shape users hand-maintain to seed category rules.
type RulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is a single rule entry in a rules file.
type RuleSpec struct {
	Priority      int    `yaml:"priority"`
	Field         string `yaml:"field"`
	Match         string `yaml:"match"`
	Value         string `yaml:"value"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	Category      string `yaml:"category"`
}

// RulesFromFile reads a rules file from a YAML path, expanding ~.
func RulesFromFile(filePath string) (*RulesFile, error) {
	if strings.HasPrefix(filePath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		filePath = filepath.Join(home, filePath[2:])
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", filePath, err)
	}

	return &rf, nil
}

// Rule converts a spec entry into a CategoryRule for the given household.
// Field defaults to description and match to contains when omitted.
func (s RuleSpec) Rule(householdID string) CategoryRule {
	field := MatchField(s.Field)
	if field == "" {
		field = FieldDescription
	}
	match := MatchType(s.Match)
	if match == "" {
		match = MatchContains
	}
	return CategoryRule{
		HouseholdID:   householdID,
		Priority:      s.Priority,
		Field:         field,
		Match:         match,
		Value:         s.Value,
		CaseSensitive: s.CaseSensitive,
		CategoryID:    s.Category,
		Active:        true,
	}
}
