package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// Decision is a human approver's verdict on a pending step
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DecideRequest carries one decision on a document's active step.
type DecideRequest struct {
	// ActingRole is resolved to an approval level by the role resolver.
	ActingRole string

	// ActorID identifies the deciding user for the audit trail. Falls
	// back to ActingRole when empty.
	ActorID string

	Decision Decision

	// AmountOverride replaces the requested amount as this step's
	// decision amount.
	AmountOverride *decimal.Decimal

	Comments string
}

// Outcome signals where a decision left the document.
type Outcome string

const (
	OutcomeNextLevelPending Outcome = "next_level_pending"
	OutcomeFullyApproved    Outcome = "fully_approved"
	OutcomeRejected         Outcome = "rejected"
)

// DecideResult is the committed document plus the decision outcome.
type DecideResult struct {
	Document *document.Document
	Outcome  Outcome
}

// Engine is the approval workflow state machine. Every operation loads
// the document, mutates a staged copy and commits it under the loaded
// version; a lost race surfaces document.ErrConcurrencyConflict and the
// caller reloads and retries.
type Engine interface {
	// Submit builds the approval chain for a draft document and moves it
	// to SUBMITTED.
	Submit(ctx context.Context, docID string) (*document.Document, error)

	// Decide applies an approve or reject decision to the active pending
	// step for the acting role's level.
	Decide(ctx context.Context, docID string, req DecideRequest) (*DecideResult, error)

	// Escalate retires the pending step at fromLevel and appends a new
	// pending step at the next higher level.
	Escalate(ctx context.Context, docID, fromLevel, reason string) (*document.Document, error)

	// Delegate records that another user of the same level should act.
	// The original approver keeps their authority.
	Delegate(ctx context.Context, docID, fromUserID, toUserID, reason string) (*document.Document, error)

	// AutoApprove clears pending steps covered by the auto-approval rule
	// table, in sequence order, possibly approving the whole document.
	AutoApprove(ctx context.Context, docID string) (*document.Document, error)
}
