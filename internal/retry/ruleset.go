package retry

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
)

// RuleSet is an ordered view over retry rules. Rules are matched by exact
// position: retry count N uses the rule at position N, and an order with no
// rule at its current count has exhausted its retries.
type RuleSet struct {
	rules []models.RetryRule
}

// NewRuleSet builds a rule set from rows, ordering them by position.
func NewRuleSet(rules []models.RetryRule) *RuleSet {
	sorted := make([]models.RetryRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	return &RuleSet{rules: sorted}
}

// Len reports how many rules the set holds.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Rules returns the position-ordered rules.
func (rs *RuleSet) Rules() []models.RetryRule {
	if rs == nil {
		return nil
	}
	return rs.rules
}

// RuleFor returns the rule whose position equals retryCount, or false when
// the count has walked past the table.
func (rs *RuleSet) RuleFor(retryCount int) (*models.RetryRule, bool) {
	if rs == nil || retryCount < 0 {
		return nil, false
	}
	for i := range rs.rules {
		if rs.rules[i].Position == retryCount {
			return &rs.rules[i], true
		}
	}
	return nil, false
}

// Interval converts a rule's configured delay into a duration.
func Interval(rule *models.RetryRule) time.Duration {
	if rule == nil {
		return 0
	}
	return time.Duration(rule.IntervalSeconds) * time.Second
}

// LoadRuleSet resolves the effective rule table for an order: the order's
// override table when one exists, otherwise the default table.
func LoadRuleSet(ctx context.Context, repo RulesRepository, orderID uuid.UUID) (*RuleSet, error) {
	override, err := repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(override) > 0 {
		return NewRuleSet(override), nil
	}
	defaults, err := repo.ListDefault(ctx)
	if err != nil {
		return nil, err
	}
	return NewRuleSet(defaults), nil
}
