package rules

import (
	"context"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/psantos/centavo/pkg/models"
)

// fakeStore hands back a fixed rule set and records stat writes.
type fakeStore struct {
	rules   []models.CategoryRule
	matched []string
	failErr error
}

func (f *fakeStore) ActiveRules(_ context.Context, _ string) ([]models.CategoryRule, error) {
	out := make([]models.CategoryRule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeStore) RecordRuleMatch(_ context.Context, ruleID string, _ time.Time) error {
	f.matched = append(f.matched, ruleID)
	return f.failErr
}

func candidate(description, merchant string) *models.ParsedTransaction {
	return &models.ParsedTransaction{Description: description, Merchant: merchant}
}

func classify(t *testing.T, store *fakeStore, tx *models.ParsedTransaction) string {
	t.Helper()
	c := New(store, log.Default())
	snap, err := c.Snapshot(context.Background(), "hh-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return c.Classify(context.Background(), snap, tx)
}

func TestExactMatchCaseInsensitive(t *testing.T) {
	store := &fakeStore{rules: []models.CategoryRule{
		{ID: "r1", Priority: 1, Field: models.FieldDescription, Match: models.MatchExact, Value: "coffee shop", CategoryID: "cat-coffee"},
	}}

	if got := classify(t, store, candidate("Coffee Shop", "")); got != "cat-coffee" {
		t.Errorf("expected match, got %q", got)
	}
	if got := classify(t, store, candidate("Coffee Shop Downtown", "")); got != "" {
		t.Errorf("exact must not match a superstring, got %q", got)
	}
}

func TestPriorityOrderWinsOverDeclarationOrder(t *testing.T) {
	store := &fakeStore{rules: []models.CategoryRule{
		{ID: "later", Priority: 10, Field: models.FieldDescription, Match: models.MatchContains, Value: "coffee", CategoryID: "cat-later"},
		{ID: "earlier", Priority: 1, Field: models.FieldDescription, Match: models.MatchContains, Value: "coffee", CategoryID: "cat-earlier"},
	}}

	if got := classify(t, store, candidate("morning coffee", "")); got != "cat-earlier" {
		t.Errorf("lower priority number should win, got %q", got)
	}
	if len(store.matched) != 1 || store.matched[0] != "earlier" {
		t.Errorf("only the winning rule's stats should move: %v", store.matched)
	}
}

func TestStringPredicates(t *testing.T) {
	cases := []struct {
		match models.MatchType
		value string
		desc  string
		want  bool
	}{
		{models.MatchContains, "shop", "Coffee Shop Downtown", true},
		{models.MatchContains, "bank", "Coffee Shop", false},
		{models.MatchStartsWith, "coffee", "Coffee Shop", true},
		{models.MatchStartsWith, "shop", "Coffee Shop", false},
		{models.MatchEndsWith, "shop", "Coffee Shop", true},
		{models.MatchEndsWith, "coffee", "Coffee Shop", false},
	}
	for _, c := range cases {
		store := &fakeStore{rules: []models.CategoryRule{
			{ID: "r", Priority: 1, Field: models.FieldDescription, Match: c.match, Value: c.value, CategoryID: "cat"},
		}}
		got := classify(t, store, candidate(c.desc, ""))
		if (got == "cat") != c.want {
			t.Errorf("%s %q against %q: got %q", c.match, c.value, c.desc, got)
		}
	}
}

func TestCaseSensitiveFlag(t *testing.T) {
	store := &fakeStore{rules: []models.CategoryRule{
		{ID: "r", Priority: 1, Field: models.FieldDescription, Match: models.MatchContains, Value: "Coffee", CaseSensitive: true, CategoryID: "cat"},
	}}
	if got := classify(t, store, candidate("coffee shop", "")); got != "" {
		t.Errorf("case-sensitive rule should not match, got %q", got)
	}
	if got := classify(t, store, candidate("Coffee shop", "")); got != "cat" {
		t.Errorf("case-sensitive rule should match, got %q", got)
	}
}

func TestMerchantField(t *testing.T) {
	store := &fakeStore{rules: []models.CategoryRule{
		{ID: "r", Priority: 1, Field: models.FieldMerchant, Match: models.MatchContains, Value: "amazon", CategoryID: "cat-shopping"},
	}}
	if got := classify(t, store, candidate("order 123", "AMAZON EU")); got != "cat-shopping" {
		t.Errorf("merchant match failed, got %q", got)
	}
	if got := classify(t, store, candidate("amazon order", "")); got != "" {
		t.Errorf("merchant rule must not read description, got %q", got)
	}
}

func TestRegexRules(t *testing.T) {
	store := &fakeStore{rules: []models.CategoryRule{
		{ID: "r", Priority: 1, Field: models.FieldDescription, Match: models.MatchRegex, Value: `^uber\s+(trip|eats)`, CategoryID: "cat-ride"},
	}}
	if got := classify(t, store, candidate("UBER TRIP 12345", "")); got != "cat-ride" {
		t.Errorf("regex should match case-insensitively, got %q", got)
	}
}

func TestInvalidRegexIsSkipped(t *testing.T) {
	store := &fakeStore{rules: []models.CategoryRule{
		{ID: "bad", Priority: 1, Field: models.FieldDescription, Match: models.MatchRegex, Value: `([`, CategoryID: "cat-bad"},
		{ID: "good", Priority: 2, Field: models.FieldDescription, Match: models.MatchContains, Value: "coffee", CategoryID: "cat-good"},
	}}

	c := New(store, log.Default())
	snap, err := c.Snapshot(context.Background(), "hh-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Len() != 1 {
		t.Errorf("invalid regex rule should be dropped from the snapshot, have %d", snap.Len())
	}
	if got := c.Classify(context.Background(), snap, candidate("coffee", "")); got != "cat-good" {
		t.Errorf("classification should continue past the bad rule, got %q", got)
	}
}
