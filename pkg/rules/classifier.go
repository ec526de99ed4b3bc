// Package rules matches transactions against user-defined category rules.
package rules

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/psantos/centavo/pkg/models"
)

// Store is the slice of persistence the classifier needs: rule reads and
// usage-stat writes.
type Store interface {
	ActiveRules(ctx context.Context, householdID string) ([]models.CategoryRule, error)
	RecordRuleMatch(ctx context.Context, ruleID string, at time.Time) error
}

type Classifier struct {
	store  Store
	logger *log.Logger
}

func New(store Store, logger *log.Logger) *Classifier {
	return &Classifier{store: store, logger: logger}
}

// Snapshot is an immutable, priority-sorted view of a household's rules
// taken once per classification run. Priority edits between runs never
// reorder a run already in flight. Regex rules are compiled up front;
// ones that fail to compile are logged and dropped from the snapshot.
type Snapshot struct {
	rules    []models.CategoryRule
	compiled map[string]*regexp.Regexp
}

// Snapshot loads and freezes the active rules for one household.
func (c *Classifier) Snapshot(ctx context.Context, householdID string) (*Snapshot, error) {
	rules, err := c.store.ActiveRules(ctx, householdID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	snap := &Snapshot{compiled: make(map[string]*regexp.Regexp)}
	for _, r := range rules {
		if r.Match == models.MatchRegex {
			pattern := r.Value
			if !r.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				c.logger.Warn("skipping rule with invalid regex",
					"rule", r.ID, "pattern", r.Value, "err", err)
				continue
			}
			snap.compiled[r.ID] = re
		}
		snap.rules = append(snap.rules, r)
	}
	return snap, nil
}

// Len reports how many rules survived into the snapshot.
func (s *Snapshot) Len() int { return len(s.rules) }

// Classify returns the category of the first rule the candidate matches,
// or "" when none do. A match increments the rule's usage counters
// through the store; a failed stat write is logged, never fatal.
func (c *Classifier) Classify(ctx context.Context, snap *Snapshot, tx *models.ParsedTransaction) string {
	for i := range snap.rules {
		r := &snap.rules[i]
		if !matches(r, snap.compiled[r.ID], tx) {
			continue
		}
		if err := c.store.RecordRuleMatch(ctx, r.ID, time.Now().UTC()); err != nil {
			c.logger.Warn("failed to record rule match", "rule", r.ID, "err", err)
		}
		return r.CategoryID
	}
	return ""
}

func matches(r *models.CategoryRule, re *regexp.Regexp, tx *models.ParsedTransaction) bool {
	value := tx.Description
	if r.Field == models.FieldMerchant {
		value = tx.Merchant
	}
	if value == "" {
		return false
	}

	if r.Match == models.MatchRegex {
		return re != nil && re.MatchString(value)
	}

	target := r.Value
	if !r.CaseSensitive {
		value = strings.ToLower(value)
		target = strings.ToLower(target)
	}
	switch r.Match {
	case models.MatchContains:
		return strings.Contains(value, target)
	case models.MatchStartsWith:
		return strings.HasPrefix(value, target)
	case models.MatchEndsWith:
		return strings.HasSuffix(value, target)
	case models.MatchExact:
		return value == target
	default:
		return false
	}
}
