package chain

import (
	"fmt"

	"github.com/tradeflow/approval-engine/internal/domain/document"
	"github.com/tradeflow/approval-engine/internal/domain/policy"
)

// Builder computes the required ordered approval chain for a document
// snapshot from the kind's workflow policy.
type Builder struct {
	registry *policy.Registry
}

// NewBuilder creates a chain builder over the policy registry.
func NewBuilder(registry *policy.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build walks the kind's ordered levels in rank order, requiring every
// level below the first tier whose ceiling covers the amount, plus that
// tier itself. Criteria rules then append their required level after the
// amount tiers when it is not already present. Sequences are contiguous
// from 0 and every step starts pending.
func (b *Builder) Build(snap document.Snapshot) ([]document.Step, error) {
	if snap.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", document.ErrValidation, snap.Amount)
	}

	pol, err := b.registry.Policy(snap.Kind)
	if err != nil {
		return nil, err
	}

	var steps []document.Step
	covered := false
	for _, tier := range pol.OrderedLevels {
		steps = append(steps, document.NewPendingStep(tier.Level, len(steps)))
		if tier.Covers(snap.Amount) {
			covered = true
			break
		}
	}
	if !covered {
		return nil, fmt.Errorf("%w: no approval level covers amount %s for kind %s",
			document.ErrConfiguration, snap.Amount, snap.Kind)
	}

	for _, rule := range pol.ExtraRules {
		if !rule.When.Matches(snap) {
			continue
		}
		if containsLevel(steps, rule.RequireLevel) {
			continue
		}
		steps = append(steps, document.NewPendingStep(rule.RequireLevel, len(steps)))
	}

	return steps, nil
}

func containsLevel(steps []document.Step, level string) bool {
	for i := range steps {
		if steps[i].Level == level {
			return true
		}
	}
	return false
}
