package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/chain"
	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/domain/document"
	"github.com/tradeflow/approval-engine/internal/domain/policy"
)

const (
	systemApproverID   = "system"
	autoApproveComment = "auto-approved"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	store     port.DocumentStore
	registry  *policy.Registry
	chains    *chain.Builder
	evaluator *policy.Evaluator
	roles     port.RoleResolver
	notifier  port.Notifier
	machine   *document.Machine
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures the workflow engine
type Option func(*engineImpl)

// WithNotifier sets the notification collaborator.
func WithNotifier(n port.Notifier) Option {
	return func(e *engineImpl) {
		e.notifier = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *engineImpl) {
		e.now = now
	}
}

// noopNotifier drops notifications when no collaborator is wired.
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, port.Notification) {}

// NewEngine creates a workflow engine with its dependencies injected.
func NewEngine(
	store port.DocumentStore,
	registry *policy.Registry,
	evaluator *policy.Evaluator,
	roles port.RoleResolver,
	opts ...Option,
) Engine {
	e := &engineImpl{
		store:     store,
		registry:  registry,
		chains:    chain.NewBuilder(registry),
		evaluator: evaluator,
		roles:     roles,
		notifier:  noopNotifier{},
		machine:   document.NewMachine(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit builds the approval chain and moves a draft to SUBMITTED.
func (e *engineImpl) Submit(ctx context.Context, docID string) (*document.Document, error) {
	doc, err := e.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	stage := doc.Clone()
	nextStatus, err := e.machine.Fire(stage.Status, document.TriggerSubmit)
	if err != nil {
		return nil, err
	}

	steps, err := e.chains.Build(stage.Snapshot())
	if err != nil {
		return nil, err
	}

	now := e.now()
	stage.Chain = steps
	stage.Status = nextStatus
	stage.AppendHistory(document.ActionSubmitted, "", "", "submitted for approval", now)
	stage.UpdatedAt = now

	if err := e.store.Commit(ctx, stage, doc.Version); err != nil {
		return nil, err
	}

	e.logger.Info("Document submitted",
		zap.String("document_id", stage.ID),
		zap.String("kind", stage.Kind.String()),
		zap.Int("chain_length", len(stage.Chain)))

	if first := stage.FirstPendingStep(); first != nil {
		e.notify(ctx, port.Notification{
			Type:       port.NotifyApprovalRequired,
			DocumentID: stage.ID,
			Kind:       stage.Kind,
			Level:      first.Level,
		})
	}

	return stage, nil
}

// Decide applies one approve/reject decision to the active step.
func (e *engineImpl) Decide(ctx context.Context, docID string, req DecideRequest) (*DecideResult, error) {
	if req.Decision != DecisionApprove && req.Decision != DecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", document.ErrValidation, req.Decision)
	}

	doc, err := e.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	level, err := e.roles.LevelForRole(doc.Kind, req.ActingRole)
	if err != nil {
		return nil, fmt.Errorf("resolve role %q: %w", req.ActingRole, err)
	}

	stage := doc.Clone()
	if stage.Status.IsTerminal() {
		// A repeated approve of the step that completed the document is
		// reported as already decided, not as a state error; everything
		// else on a terminal document is a state error.
		if stage.Status == document.StatusApproved && req.Decision == DecisionApprove {
			if s := stage.StepAt(level); s != nil && s.Status == document.StepApproved {
				return nil, fmt.Errorf("%w: level %s", document.ErrAlreadyDecided, level)
			}
		}
		return nil, fmt.Errorf("%w: document is %s", document.ErrInvalidState, stage.Status)
	}
	if stage.Status != document.StatusSubmitted {
		return nil, fmt.Errorf("%w: document is %s", document.ErrInvalidState, stage.Status)
	}

	step := stage.PendingStepAt(level)
	if step == nil {
		if s := stage.StepAt(level); s != nil &&
			(s.Status == document.StepApproved || s.Status == document.StepRejected) {
			return nil, fmt.Errorf("%w: level %s", document.ErrAlreadyDecided, level)
		}
		return nil, fmt.Errorf("%w: level %s", document.ErrNoPendingApproval, level)
	}

	// A step activates only once every lower-sequence step is terminal.
	for i := range stage.Chain {
		if stage.Chain[i].Sequence < step.Sequence && stage.Chain[i].Status == document.StepPending {
			return nil, fmt.Errorf("%w: step %d at level %s is not yet active",
				document.ErrNoPendingApproval, step.Sequence, level)
		}
	}

	actorID := req.ActorID
	if actorID == "" {
		actorID = req.ActingRole
	}

	now := e.now()
	var outcome Outcome
	switch req.Decision {
	case DecisionApprove:
		amount := stage.Amount
		if req.AmountOverride != nil {
			if req.AmountOverride.Sign() <= 0 {
				return nil, fmt.Errorf("%w: decision amount must be positive", document.ErrValidation)
			}
			amount = *req.AmountOverride
		}
		full, err := e.applyApproval(stage, step, actorID, amount, req.Comments, document.ActionApproved, now)
		if err != nil {
			return nil, err
		}
		if full {
			outcome = OutcomeFullyApproved
		} else {
			outcome = OutcomeNextLevelPending
		}

	case DecisionReject:
		step.Status = document.StepRejected
		step.ApproverID = actorID
		step.Comments = req.Comments
		step.DecidedAt = &now
		stage.AppendHistory(document.ActionRejected, step.Level, actorID, req.Comments, now)
		rejected, err := e.machine.Fire(stage.Status, document.TriggerReject)
		if err != nil {
			return nil, err
		}
		stage.Status = rejected
		outcome = OutcomeRejected
	}

	stage.UpdatedAt = now
	if err := e.store.Commit(ctx, stage, doc.Version); err != nil {
		return nil, err
	}

	e.logger.Info("Decision applied",
		zap.String("document_id", stage.ID),
		zap.String("level", level),
		zap.String("decision", string(req.Decision)),
		zap.String("outcome", string(outcome)))

	switch outcome {
	case OutcomeFullyApproved:
		e.notify(ctx, port.Notification{
			Type:       port.NotifyApproved,
			DocumentID: stage.ID,
			Kind:       stage.Kind,
		})
	case OutcomeRejected:
		e.notify(ctx, port.Notification{
			Type:       port.NotifyRejected,
			DocumentID: stage.ID,
			Kind:       stage.Kind,
			Level:      level,
			Reason:     req.Comments,
		})
	case OutcomeNextLevelPending:
		if next := stage.FirstPendingStep(); next != nil {
			e.notify(ctx, port.Notification{
				Type:       port.NotifyApprovalRequired,
				DocumentID: stage.ID,
				Kind:       stage.Kind,
				Level:      next.Level,
			})
		}
	}

	return &DecideResult{Document: stage, Outcome: outcome}, nil
}

// Escalate retires the stuck pending step and appends a replacement at
// the next higher level that is not already pending.
func (e *engineImpl) Escalate(ctx context.Context, docID, fromLevel, reason string) (*document.Document, error) {
	doc, err := e.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	stage := doc.Clone()
	if stage.Status != document.StatusSubmitted {
		return nil, fmt.Errorf("%w: document is %s", document.ErrInvalidState, stage.Status)
	}

	step := stage.PendingStepAt(fromLevel)
	if step == nil {
		return nil, fmt.Errorf("%w: level %s", document.ErrNoPendingApproval, fromLevel)
	}

	pol, err := e.registry.Policy(stage.Kind)
	if err != nil {
		return nil, err
	}

	nextLevel := ""
	if rank, ok := pol.LevelRank(fromLevel); ok {
		for i := rank + 1; i < len(pol.OrderedLevels); i++ {
			candidate := pol.OrderedLevels[i].Level
			if stage.PendingStepAt(candidate) == nil {
				nextLevel = candidate
				break
			}
		}
	}
	if nextLevel == "" {
		return nil, fmt.Errorf("%w: from level %s", document.ErrEscalationExhausted, fromLevel)
	}

	now := e.now()
	step.Status = document.StepEscalated
	step.Comments = reason
	step.DecidedAt = &now
	stage.Chain = append(stage.Chain, document.NewPendingStep(nextLevel, stage.NextSequence()))
	stage.AppendHistory(document.ActionEscalated, fromLevel, "", reason, now)
	stage.UpdatedAt = now

	if err := e.store.Commit(ctx, stage, doc.Version); err != nil {
		return nil, err
	}

	e.logger.Info("Step escalated",
		zap.String("document_id", stage.ID),
		zap.String("from_level", fromLevel),
		zap.String("to_level", nextLevel))

	e.notify(ctx, port.Notification{
		Type:       port.NotifyApprovalRequired,
		DocumentID: stage.ID,
		Kind:       stage.Kind,
		Level:      nextLevel,
		Reason:     reason,
	})

	return stage, nil
}

// Delegate records an advisory reassignment within a level. The chain and
// document status are untouched and the original approver keeps their
// authority.
func (e *engineImpl) Delegate(ctx context.Context, docID, fromUserID, toUserID, reason string) (*document.Document, error) {
	doc, err := e.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	if doc.Status != document.StatusSubmitted {
		return nil, fmt.Errorf("%w: document is %s", document.ErrInvalidState, doc.Status)
	}

	fromLevel, err := e.roles.LevelForUser(doc.Kind, fromUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user %q: %w", fromUserID, err)
	}
	toLevel, err := e.roles.LevelForUser(doc.Kind, toUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user %q: %w", toUserID, err)
	}
	if fromLevel != toLevel {
		return nil, fmt.Errorf("%w: cannot delegate across levels (%s -> %s)",
			document.ErrNotAuthorized, fromLevel, toLevel)
	}

	stage := doc.Clone()
	if stage.PendingStepAt(fromLevel) == nil {
		return nil, fmt.Errorf("%w: level %s", document.ErrNoPendingApproval, fromLevel)
	}

	now := e.now()
	stage.AppendHistory(document.ActionDelegated, fromLevel, fromUserID,
		fmt.Sprintf("delegated to %s: %s", toUserID, reason), now)
	stage.UpdatedAt = now

	if err := e.store.Commit(ctx, stage, doc.Version); err != nil {
		return nil, err
	}

	e.notify(ctx, port.Notification{
		Type:       port.NotifyDelegated,
		DocumentID: stage.ID,
		Kind:       stage.Kind,
		Level:      fromLevel,
		ToUser:     toUserID,
		Reason:     reason,
	})

	return stage, nil
}

// AutoApprove clears auto-approvable pending steps in sequence order,
// stopping at the first step the rule table does not cover. The whole
// cascade is one commit.
func (e *engineImpl) AutoApprove(ctx context.Context, docID string) (*document.Document, error) {
	doc, err := e.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	stage := doc.Clone()
	if stage.Status != document.StatusSubmitted {
		return nil, fmt.Errorf("%w: document is %s", document.ErrInvalidState, stage.Status)
	}

	snap := stage.Snapshot()
	now := e.now()
	cleared := 0
	for {
		step := stage.FirstPendingStep()
		if step == nil {
			break
		}
		if !e.evaluator.Evaluate(step.Level, snap) {
			break
		}
		full, err := e.applyApproval(stage, step, systemApproverID, stage.Amount, autoApproveComment, document.ActionAutoApproved, now)
		if err != nil {
			return nil, err
		}
		cleared++
		if full {
			break
		}
	}

	if cleared == 0 {
		return stage, nil
	}

	stage.UpdatedAt = now
	if err := e.store.Commit(ctx, stage, doc.Version); err != nil {
		return nil, err
	}

	e.logger.Info("Auto-approval applied",
		zap.String("document_id", stage.ID),
		zap.Int("steps_cleared", cleared),
		zap.String("status", stage.Status.String()))

	if stage.Status == document.StatusApproved {
		e.notify(ctx, port.Notification{
			Type:       port.NotifyApproved,
			DocumentID: stage.ID,
			Kind:       stage.Kind,
		})
	} else if next := stage.FirstPendingStep(); next != nil {
		e.notify(ctx, port.Notification{
			Type:       port.NotifyApprovalRequired,
			DocumentID: stage.ID,
			Kind:       stage.Kind,
			Level:      next.Level,
		})
	}

	return stage, nil
}

// applyApproval marks the step approved and, when it was the last pending
// step, approves the document and fixes the final amount to this step's
// decision amount.
func (e *engineImpl) applyApproval(
	stage *document.Document,
	step *document.Step,
	approverID string,
	amount decimal.Decimal,
	comments string,
	action document.Action,
	now time.Time,
) (fullyApproved bool, err error) {
	step.Status = document.StepApproved
	step.ApproverID = approverID
	step.DecisionAmount = &amount
	step.Comments = comments
	step.DecidedAt = &now
	stage.AppendHistory(action, step.Level, approverID, comments, now)

	if stage.HasPendingSteps() {
		return false, nil
	}

	approved, err := e.machine.Fire(stage.Status, document.TriggerApprove)
	if err != nil {
		return false, err
	}
	stage.Status = approved
	stage.FinalAmount = &amount
	return true, nil
}

func (e *engineImpl) notify(ctx context.Context, n port.Notification) {
	n.ID = uuid.NewString()
	n.OccurredAt = e.now()
	e.notifier.Notify(ctx, n)
}
