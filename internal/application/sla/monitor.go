package sla

import (
	"time"

	"github.com/tradeflow/approval-engine/internal/domain/document"
	"github.com/tradeflow/approval-engine/internal/domain/policy"
)

// Violation reports one pending step that exceeded its SLA.
type Violation struct {
	Level        string  `json:"level"`
	HoursElapsed float64 `json:"hours_elapsed"`
	HoursOverdue float64 `json:"hours_overdue"`
}

// Monitor is the read-only SLA compliance check. It never mutates the
// document; acting on violations (escalation, reminders) is the caller's
// decision, as is the polling cadence.
type Monitor struct {
	registry *policy.Registry
}

// NewMonitor creates an SLA monitor over the policy registry.
func NewMonitor(registry *policy.Registry) *Monitor {
	return &Monitor{registry: registry}
}

// CheckCompliance returns a violation for every still-pending step whose
// elapsed time since submission exceeds the kind's SLA hours.
func (m *Monitor) CheckCompliance(doc *document.Document, now time.Time) ([]Violation, error) {
	if doc.Status != document.StatusSubmitted {
		return nil, nil
	}

	submittedAt, ok := doc.SubmittedAt()
	if !ok {
		return nil, nil
	}

	pol, err := m.registry.Policy(doc.Kind)
	if err != nil {
		return nil, err
	}

	elapsed := now.Sub(submittedAt).Hours()
	if elapsed <= float64(pol.SLAHours) {
		return nil, nil
	}

	var violations []Violation
	for i := range doc.Chain {
		if doc.Chain[i].Status != document.StepPending {
			continue
		}
		violations = append(violations, Violation{
			Level:        doc.Chain[i].Level,
			HoursElapsed: elapsed,
			HoursOverdue: elapsed - float64(pol.SLAHours),
		})
	}
	return violations, nil
}
