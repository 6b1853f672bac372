package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// AutoApprovalRule allows the system to approve a step without a human
// decision when the document amount is within the rule's ceiling.
type AutoApprovalRule struct {
	Level   string
	Kind    document.Kind
	Ceiling decimal.Decimal
}

type ruleKey struct {
	level string
	kind  document.Kind
}

// Evaluator is the deterministic auto-approval predicate. It consults a
// small immutable rule table keyed by (level, kind); evaluation never
// fails on valid input.
type Evaluator struct {
	ceilings map[ruleKey]decimal.Decimal
}

// NewEvaluator validates the rule table and builds the evaluator.
func NewEvaluator(rules []AutoApprovalRule) (*Evaluator, error) {
	ceilings := make(map[ruleKey]decimal.Decimal, len(rules))
	for _, r := range rules {
		if r.Level == "" {
			return nil, fmt.Errorf("%w: auto-approval rule without a level", document.ErrConfiguration)
		}
		if !r.Kind.IsValid() {
			return nil, fmt.Errorf("%w: auto-approval rule for unknown kind %q", document.ErrConfiguration, r.Kind)
		}
		if r.Ceiling.Sign() <= 0 {
			return nil, fmt.Errorf("%w: auto-approval rule for %s/%s has non-positive ceiling", document.ErrConfiguration, r.Kind, r.Level)
		}
		key := ruleKey{level: r.Level, kind: r.Kind}
		if _, dup := ceilings[key]; dup {
			return nil, fmt.Errorf("%w: duplicate auto-approval rule for %s/%s", document.ErrConfiguration, r.Kind, r.Level)
		}
		ceilings[key] = r.Ceiling
	}
	return &Evaluator{ceilings: ceilings}, nil
}

// Evaluate returns true when a rule for (level, kind) covers the snapshot
// amount. Side-effect free.
func (e *Evaluator) Evaluate(level string, snap document.Snapshot) bool {
	ceiling, ok := e.ceilings[ruleKey{level: level, kind: snap.Kind}]
	if !ok {
		return false
	}
	return ceiling.GreaterThanOrEqual(snap.Amount)
}
