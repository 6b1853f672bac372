package document

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the business document type requiring sign-off
type Kind string

const (
	KindBudget     Kind = "budget"
	KindPromotion  Kind = "promotion"
	KindTradeSpend Kind = "trade_spend"
)

var validKinds = map[Kind]bool{
	KindBudget:     true,
	KindPromotion:  true,
	KindTradeSpend: true,
}

// IsValid returns true if the kind is a recognized document kind
func (k Kind) IsValid() bool {
	return validKinds[k]
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// Snapshot is the read-only view of a document that drives chain building
// and auto-approval rule evaluation. The engine is agnostic to how the
// amount and criteria flags were computed.
type Snapshot struct {
	Kind          Kind
	Amount        decimal.Decimal
	CriteriaFlags map[string]interface{}
}

// Document is a budget, promotion or trade-spend request that must pass
// through an ordered approval chain before execution.
type Document struct {
	ID            string                 `json:"id"`
	Kind          Kind                   `json:"kind"`
	Amount        decimal.Decimal        `json:"amount"`
	CriteriaFlags map[string]interface{} `json:"criteria_flags,omitempty"`
	Status        Status                 `json:"status"`
	Chain         []Step                 `json:"approval_chain"`
	History       []HistoryEntry         `json:"history"`
	FinalAmount   *decimal.Decimal       `json:"final_amount,omitempty"`

	// Version is the storage revision; every successful commit increases it.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a draft document with an empty approval chain.
func New(kind Kind, amount decimal.Decimal, criteriaFlags map[string]interface{}) *Document {
	now := time.Now()
	return &Document{
		ID:            uuid.NewString(),
		Kind:          kind,
		Amount:        amount,
		CriteriaFlags: criteriaFlags,
		Status:        StatusDraft,
		Chain:         []Step{},
		History:       []HistoryEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Snapshot returns the rule-evaluation view of the document.
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Kind:          d.Kind,
		Amount:        d.Amount,
		CriteriaFlags: d.CriteriaFlags,
	}
}

// Clone returns a deep copy of the document. Engine operations mutate a
// clone and commit it, so a failed commit leaves the loaded document intact.
func (d *Document) Clone() *Document {
	c := *d

	c.Chain = make([]Step, len(d.Chain))
	copy(c.Chain, d.Chain)
	for i := range c.Chain {
		if d.Chain[i].DecisionAmount != nil {
			amount := *d.Chain[i].DecisionAmount
			c.Chain[i].DecisionAmount = &amount
		}
		if d.Chain[i].DecidedAt != nil {
			t := *d.Chain[i].DecidedAt
			c.Chain[i].DecidedAt = &t
		}
	}

	c.History = make([]HistoryEntry, len(d.History))
	copy(c.History, d.History)

	if d.CriteriaFlags != nil {
		c.CriteriaFlags = make(map[string]interface{}, len(d.CriteriaFlags))
		for k, v := range d.CriteriaFlags {
			c.CriteriaFlags[k] = v
		}
	}

	if d.FinalAmount != nil {
		amount := *d.FinalAmount
		c.FinalAmount = &amount
	}

	return &c
}

// PendingStepAt returns the pending step at the given level, or nil.
func (d *Document) PendingStepAt(level string) *Step {
	for i := range d.Chain {
		if d.Chain[i].Level == level && d.Chain[i].Status == StepPending {
			return &d.Chain[i]
		}
	}
	return nil
}

// StepAt returns the most recent step at the given level, or nil.
func (d *Document) StepAt(level string) *Step {
	for i := len(d.Chain) - 1; i >= 0; i-- {
		if d.Chain[i].Level == level {
			return &d.Chain[i]
		}
	}
	return nil
}

// FirstPendingStep returns the lowest-sequence pending step, or nil.
func (d *Document) FirstPendingStep() *Step {
	var first *Step
	for i := range d.Chain {
		if d.Chain[i].Status != StepPending {
			continue
		}
		if first == nil || d.Chain[i].Sequence < first.Sequence {
			first = &d.Chain[i]
		}
	}
	return first
}

// HasPendingSteps returns true if any chain step is still pending.
func (d *Document) HasPendingSteps() bool {
	return d.FirstPendingStep() != nil
}

// NextSequence returns the sequence number for a newly appended step.
func (d *Document) NextSequence() int {
	return len(d.Chain)
}

// AppendHistory records an action in the append-only history.
func (d *Document) AppendHistory(action Action, level, actorID, detail string, at time.Time) {
	d.History = append(d.History, HistoryEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Level:     level,
		ActorID:   actorID,
		Detail:    detail,
		Timestamp: at,
	})
}

// SubmittedAt returns the timestamp of the submission history entry.
// The second return value is false for documents never submitted.
func (d *Document) SubmittedAt() (time.Time, bool) {
	for i := range d.History {
		if d.History[i].Action == ActionSubmitted {
			return d.History[i].Timestamp, true
		}
	}
	return time.Time{}, false
}
