package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// StepStatus represents the state of a single approval step
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepApproved  StepStatus = "APPROVED"
	StepRejected  StepStatus = "REJECTED"
	StepEscalated StepStatus = "ESCALATED"
)

var validStepStatuses = map[StepStatus]bool{
	StepPending:   true,
	StepApproved:  true,
	StepRejected:  true,
	StepEscalated: true,
}

// IsValid returns true if the value is a recognized step status
func (s StepStatus) IsValid() bool {
	return validStepStatuses[s]
}

// IsTerminal returns true once a step can no longer change. An escalated
// step is terminal: it no longer blocks the chain but does not count as
// an approval.
func (s StepStatus) IsTerminal() bool {
	return s != StepPending
}

// String returns the string representation of the step status
func (s StepStatus) String() string {
	return string(s)
}

// Step is one required sign-off in a document's approval chain.
type Step struct {
	Level          string           `json:"level"`
	Sequence       int              `json:"sequence"`
	Status         StepStatus       `json:"status"`
	ApproverID     string           `json:"approver_id,omitempty"`
	DecisionAmount *decimal.Decimal `json:"decision_amount,omitempty"`
	Comments       string           `json:"comments,omitempty"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty"`
}

// NewPendingStep creates a pending step at the given level and sequence.
func NewPendingStep(level string, sequence int) Step {
	return Step{
		Level:    level,
		Sequence: sequence,
		Status:   StepPending,
	}
}
