package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// LevelTier is one authority tier in a kind's ordered approval ladder.
// A tier covers an amount when its ceiling is greater than or equal to it;
// an unbounded tier covers any amount.
type LevelTier struct {
	Level     string
	Ceiling   decimal.Decimal
	Unbounded bool
}

// Covers returns true if the tier's ceiling covers the amount (inclusive).
func (t LevelTier) Covers(amount decimal.Decimal) bool {
	if t.Unbounded {
		return true
	}
	return t.Ceiling.GreaterThanOrEqual(amount)
}

// CriteriaRule forces an additional approval level when its condition
// matches the document snapshot, regardless of the amount tier reached.
type CriteriaRule struct {
	When         Condition
	RequireLevel string
}

// WorkflowPolicy holds the per-kind approval configuration.
type WorkflowPolicy struct {
	Kind          document.Kind
	OrderedLevels []LevelTier
	ExtraRules    []CriteriaRule
	SLAHours      int
}

// LevelRank returns the rank of a level within the ordered ladder.
// Levels appended by criteria rules are not ranked.
func (p WorkflowPolicy) LevelRank(level string) (int, bool) {
	for i, tier := range p.OrderedLevels {
		if tier.Level == level {
			return i, true
		}
	}
	return 0, false
}

// Validate checks the policy for configuration defects.
func (p WorkflowPolicy) Validate() error {
	if !p.Kind.IsValid() {
		return fmt.Errorf("%w: unknown document kind %q", document.ErrConfiguration, p.Kind)
	}
	if len(p.OrderedLevels) == 0 {
		return fmt.Errorf("%w: kind %s has no approval levels", document.ErrConfiguration, p.Kind)
	}
	seen := make(map[string]bool, len(p.OrderedLevels))
	for i, tier := range p.OrderedLevels {
		if tier.Level == "" {
			return fmt.Errorf("%w: kind %s has an unnamed level at rank %d", document.ErrConfiguration, p.Kind, i)
		}
		if seen[tier.Level] {
			return fmt.Errorf("%w: kind %s lists level %s twice", document.ErrConfiguration, p.Kind, tier.Level)
		}
		seen[tier.Level] = true
		if !tier.Unbounded && tier.Ceiling.Sign() <= 0 {
			return fmt.Errorf("%w: kind %s level %s has non-positive ceiling", document.ErrConfiguration, p.Kind, tier.Level)
		}
	}
	for _, rule := range p.ExtraRules {
		if rule.RequireLevel == "" {
			return fmt.Errorf("%w: kind %s has a criteria rule without a required level", document.ErrConfiguration, p.Kind)
		}
		if err := rule.When.Validate(); err != nil {
			return err
		}
	}
	if p.SLAHours <= 0 {
		return fmt.Errorf("%w: kind %s has non-positive SLA hours", document.ErrConfiguration, p.Kind)
	}
	return nil
}
