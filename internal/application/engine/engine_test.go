package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/domain/document"
	"github.com/tradeflow/approval-engine/internal/domain/policy"
	"github.com/tradeflow/approval-engine/internal/infrastructure/persistence/memory"
)

// mockRoleResolver maps roles and user ids to levels via function fields.
type mockRoleResolver struct {
	levelForRoleFunc func(kind document.Kind, role string) (string, error)
	levelForUserFunc func(kind document.Kind, userID string) (string, error)
}

func (m *mockRoleResolver) LevelForRole(kind document.Kind, role string) (string, error) {
	if m.levelForRoleFunc != nil {
		return m.levelForRoleFunc(kind, role)
	}
	return role, nil
}

func (m *mockRoleResolver) LevelForUser(kind document.Kind, userID string) (string, error) {
	if m.levelForUserFunc != nil {
		return m.levelForUserFunc(kind, userID)
	}
	return "", fmt.Errorf("%w: user %s", document.ErrNotAuthorized, userID)
}

// recordingNotifier collects notifications for assertions. Safe for
// concurrent use.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n port.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) byType(t port.NotificationType) []port.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []port.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func testRegistry(t *testing.T) *policy.Registry {
	t.Helper()
	reg, err := policy.NewRegistry([]policy.WorkflowPolicy{
		{
			Kind: document.KindTradeSpend,
			OrderedLevels: []policy.LevelTier{
				{Level: "kam", Ceiling: decimal.NewFromInt(10000)},
				{Level: "manager", Ceiling: decimal.NewFromInt(50000)},
				{Level: "director", Ceiling: decimal.NewFromInt(200000)},
				{Level: "board", Unbounded: true},
			},
			ExtraRules: []policy.CriteriaRule{
				{
					When:         policy.Condition{Field: "spendType", Operator: policy.OpEq, Value: "cash_coop"},
					RequireLevel: "finance",
				},
			},
			SLAHours: 48,
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error: %v", err)
	}
	return reg
}

func testEvaluator(t *testing.T) *policy.Evaluator {
	t.Helper()
	ev, err := policy.NewEvaluator([]policy.AutoApprovalRule{
		{Level: "kam", Kind: document.KindTradeSpend, Ceiling: decimal.NewFromInt(20000)},
	})
	if err != nil {
		t.Fatalf("NewEvaluator() unexpected error: %v", err)
	}
	return ev
}

type fixture struct {
	engine   Engine
	store    *memory.Store
	notifier *recordingNotifier
	roles    *mockRoleResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		notifier: &recordingNotifier{},
		roles:    &mockRoleResolver{},
	}
	f.engine = NewEngine(f.store, testRegistry(t), testEvaluator(t), f.roles,
		WithNotifier(f.notifier))
	return f
}

func (f *fixture) newDraft(t *testing.T, amount int64, flags map[string]interface{}) *document.Document {
	t.Helper()
	doc := document.New(document.KindTradeSpend, decimal.NewFromInt(amount), flags)
	if err := f.store.Save(context.Background(), doc); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
	return doc
}

func (f *fixture) submit(t *testing.T, docID string) *document.Document {
	t.Helper()
	doc, err := f.engine.Submit(context.Background(), docID)
	if err != nil {
		t.Fatalf("Submit() unexpected error: %v", err)
	}
	return doc
}

func approveReq(role string) DecideRequest {
	return DecideRequest{ActingRole: role, ActorID: "u-" + role, Decision: DecisionApprove}
}

func TestEngine_Submit(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)

	doc := f.submit(t, draft.ID)

	if doc.Status != document.StatusSubmitted {
		t.Errorf("Status = %s, want %s", doc.Status, document.StatusSubmitted)
	}
	if got := len(doc.Chain); got != 2 {
		t.Fatalf("chain length = %d, want 2 (kam, manager)", got)
	}
	if doc.Chain[0].Level != "kam" || doc.Chain[1].Level != "manager" {
		t.Errorf("chain levels = [%s %s], want [kam manager]", doc.Chain[0].Level, doc.Chain[1].Level)
	}
	if doc.Version != 2 {
		t.Errorf("Version = %d, want 2 after one commit", doc.Version)
	}
	if _, ok := doc.SubmittedAt(); !ok {
		t.Error("submit must append a submission history entry")
	}

	required := f.notifier.byType(port.NotifyApprovalRequired)
	if len(required) != 1 || required[0].Level != "kam" {
		t.Errorf("approval_required notifications = %+v, want one for kam", required)
	}
}

func TestEngine_Submit_NotDraft(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	if _, err := f.engine.Submit(context.Background(), draft.ID); !errors.Is(err, document.ErrInvalidState) {
		t.Errorf("second Submit() error = %v, want ErrInvalidState", err)
	}
}

func TestEngine_Submit_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Submit(context.Background(), "missing"); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Submit(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEngine_Decide_FullApprovalRoundTrip(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	res, err := f.engine.Decide(ctx, draft.ID, approveReq("kam"))
	if err != nil {
		t.Fatalf("Decide(kam) unexpected error: %v", err)
	}
	if res.Outcome != OutcomeNextLevelPending {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomeNextLevelPending)
	}
	if res.Document.FinalAmount != nil {
		t.Error("FinalAmount must stay unset while steps are pending")
	}

	override := decimal.NewFromInt(15000)
	res, err = f.engine.Decide(ctx, draft.ID, DecideRequest{
		ActingRole:     "manager",
		ActorID:        "u-manager",
		Decision:       DecisionApprove,
		AmountOverride: &override,
		Comments:       "trimmed scope",
	})
	if err != nil {
		t.Fatalf("Decide(manager) unexpected error: %v", err)
	}
	if res.Outcome != OutcomeFullyApproved {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomeFullyApproved)
	}

	doc := res.Document
	if doc.Status != document.StatusApproved {
		t.Errorf("Status = %s, want %s", doc.Status, document.StatusApproved)
	}
	if doc.FinalAmount == nil || !doc.FinalAmount.Equal(override) {
		t.Errorf("FinalAmount = %v, want last decision amount %s", doc.FinalAmount, override)
	}
	if doc.Chain[1].ApproverID != "u-manager" {
		t.Errorf("ApproverID = %s, want u-manager", doc.Chain[1].ApproverID)
	}

	if got := f.notifier.byType(port.NotifyApproved); len(got) != 1 {
		t.Errorf("approved notifications = %d, want 1", len(got))
	}
}

func TestEngine_Decide_OrderingEnforced(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	_, err := f.engine.Decide(context.Background(), draft.ID, approveReq("manager"))
	if !errors.Is(err, document.ErrNoPendingApproval) {
		t.Errorf("Decide(manager before kam) error = %v, want ErrNoPendingApproval", err)
	}
}

func TestEngine_Decide_Idempotence(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	if _, err := f.engine.Decide(ctx, draft.ID, approveReq("kam")); err != nil {
		t.Fatalf("first Decide(kam) unexpected error: %v", err)
	}

	if _, err := f.engine.Decide(ctx, draft.ID, approveReq("kam")); !errors.Is(err, document.ErrAlreadyDecided) {
		t.Errorf("second Decide(kam) error = %v, want ErrAlreadyDecided", err)
	}
}

func TestEngine_Decide_RepeatApproveAfterFinal(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 9000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	res, err := f.engine.Decide(ctx, draft.ID, approveReq("kam"))
	if err != nil {
		t.Fatalf("Decide(kam) unexpected error: %v", err)
	}
	if res.Outcome != OutcomeFullyApproved {
		t.Fatalf("Outcome = %s, want %s", res.Outcome, OutcomeFullyApproved)
	}

	if _, err := f.engine.Decide(ctx, draft.ID, approveReq("kam")); !errors.Is(err, document.ErrAlreadyDecided) {
		t.Errorf("repeat approve on approved document error = %v, want ErrAlreadyDecided", err)
	}
}

func TestEngine_Decide_RejectShortCircuits(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	res, err := f.engine.Decide(ctx, draft.ID, DecideRequest{
		ActingRole: "kam",
		ActorID:    "u-kam",
		Decision:   DecisionReject,
		Comments:   "over budget",
	})
	if err != nil {
		t.Fatalf("Decide(reject) unexpected error: %v", err)
	}
	if res.Outcome != OutcomeRejected {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomeRejected)
	}
	if res.Document.Status != document.StatusRejected {
		t.Errorf("Status = %s, want %s", res.Document.Status, document.StatusRejected)
	}
	if res.Document.Chain[1].Status != document.StepPending {
		t.Errorf("later step status = %s, remaining steps are skipped not decided", res.Document.Chain[1].Status)
	}

	_, err = f.engine.Decide(ctx, draft.ID, approveReq("manager"))
	if !errors.Is(err, document.ErrInvalidState) {
		t.Errorf("Decide after rejection error = %v, want ErrInvalidState", err)
	}

	if got := f.notifier.byType(port.NotifyRejected); len(got) != 1 || got[0].Reason != "over budget" {
		t.Errorf("rejected notifications = %+v, want one carrying the reason", got)
	}
}

func TestEngine_Decide_Validation(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	_, err := f.engine.Decide(ctx, draft.ID, DecideRequest{ActingRole: "kam", Decision: "maybe"})
	if !errors.Is(err, document.ErrValidation) {
		t.Errorf("unknown decision error = %v, want ErrValidation", err)
	}

	negative := decimal.NewFromInt(-10)
	_, err = f.engine.Decide(ctx, draft.ID, DecideRequest{
		ActingRole:     "kam",
		Decision:       DecisionApprove,
		AmountOverride: &negative,
	})
	if !errors.Is(err, document.ErrValidation) {
		t.Errorf("negative override error = %v, want ErrValidation", err)
	}

	f.roles.levelForRoleFunc = func(document.Kind, string) (string, error) {
		return "", fmt.Errorf("%w: unknown role", document.ErrNotAuthorized)
	}
	_, err = f.engine.Decide(ctx, draft.ID, approveReq("intern"))
	if !errors.Is(err, document.ErrNotAuthorized) {
		t.Errorf("unknown role error = %v, want ErrNotAuthorized", err)
	}
}

func TestEngine_Decide_NoStepForLevel(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	_, err := f.engine.Decide(context.Background(), draft.ID, approveReq("board"))
	if !errors.Is(err, document.ErrNoPendingApproval) {
		t.Errorf("Decide(level not in chain) error = %v, want ErrNoPendingApproval", err)
	}
}

func TestEngine_Escalate(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	doc, err := f.engine.Escalate(context.Background(), draft.ID, "kam", "approver on leave")
	if err != nil {
		t.Fatalf("Escalate() unexpected error: %v", err)
	}

	if doc.Chain[0].Status != document.StepEscalated {
		t.Errorf("escalated step status = %s, want %s", doc.Chain[0].Status, document.StepEscalated)
	}
	if got := len(doc.Chain); got != 3 {
		t.Fatalf("chain length = %d, want 3 after escalation", got)
	}
	// manager already holds a pending step, so the replacement lands at
	// director.
	last := doc.Chain[2]
	if last.Level != "director" || last.Status != document.StepPending || last.Sequence != 2 {
		t.Errorf("appended step = %+v, want pending director at sequence 2", last)
	}
	if doc.Status != document.StatusSubmitted {
		t.Errorf("Status = %s, escalation must not change document status", doc.Status)
	}
}

func TestEngine_Escalate_TopLevel(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 500000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	// Chain is kam..board. Board is the top ranked level.
	for _, role := range []string{"kam", "manager", "director"} {
		if _, err := f.engine.Decide(ctx, draft.ID, approveReq(role)); err != nil {
			t.Fatalf("Decide(%s) unexpected error: %v", role, err)
		}
	}

	before, err := f.store.Load(ctx, draft.ID)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	_, err = f.engine.Escalate(ctx, draft.ID, "board", "stuck")
	if !errors.Is(err, document.ErrEscalationExhausted) {
		t.Fatalf("Escalate(board) error = %v, want ErrEscalationExhausted", err)
	}

	after, err := f.store.Load(ctx, draft.ID)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if after.Version != before.Version || len(after.Chain) != len(before.Chain) {
		t.Error("failed escalation must leave the document unchanged")
	}
}

func TestEngine_Escalate_CriteriaLevel(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 60000, map[string]interface{}{"spendType": "cash_coop"})
	f.submit(t, draft.ID)
	ctx := context.Background()

	for _, role := range []string{"kam", "manager", "director"} {
		if _, err := f.engine.Decide(ctx, draft.ID, approveReq(role)); err != nil {
			t.Fatalf("Decide(%s) unexpected error: %v", role, err)
		}
	}

	// finance was appended by a criteria rule and has no rank in the
	// ordered ladder, so it cannot escalate.
	_, err := f.engine.Escalate(ctx, draft.ID, "finance", "stuck")
	if !errors.Is(err, document.ErrEscalationExhausted) {
		t.Errorf("Escalate(finance) error = %v, want ErrEscalationExhausted", err)
	}
}

func TestEngine_Escalate_NoPendingStep(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	_, err := f.engine.Escalate(context.Background(), draft.ID, "director", "stuck")
	if !errors.Is(err, document.ErrNoPendingApproval) {
		t.Errorf("Escalate(level without pending step) error = %v, want ErrNoPendingApproval", err)
	}
}

func TestEngine_Delegate(t *testing.T) {
	f := newFixture(t)
	f.roles.levelForUserFunc = func(_ document.Kind, userID string) (string, error) {
		levels := map[string]string{"alice": "kam", "bob": "kam", "carol": "manager"}
		if level, ok := levels[userID]; ok {
			return level, nil
		}
		return "", fmt.Errorf("%w: user %s", document.ErrNotAuthorized, userID)
	}
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	doc, err := f.engine.Delegate(ctx, draft.ID, "alice", "bob", "vacation")
	if err != nil {
		t.Fatalf("Delegate() unexpected error: %v", err)
	}

	if doc.Chain[0].Status != document.StepPending {
		t.Error("delegation must not decide the pending step")
	}
	last := doc.History[len(doc.History)-1]
	if last.Action != document.ActionDelegated || last.ActorID != "alice" {
		t.Errorf("history entry = %+v, want delegated by alice", last)
	}

	// The original approver keeps their authority after delegating.
	if _, err := f.engine.Decide(ctx, draft.ID, approveReq("kam")); err != nil {
		t.Errorf("Decide by original level after delegation error = %v", err)
	}

	if got := f.notifier.byType(port.NotifyDelegated); len(got) != 1 || got[0].ToUser != "bob" {
		t.Errorf("delegated notifications = %+v, want one to bob", got)
	}
}

func TestEngine_Delegate_CrossLevel(t *testing.T) {
	f := newFixture(t)
	f.roles.levelForUserFunc = func(_ document.Kind, userID string) (string, error) {
		levels := map[string]string{"alice": "kam", "carol": "manager"}
		return levels[userID], nil
	}
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	_, err := f.engine.Delegate(context.Background(), draft.ID, "alice", "carol", "vacation")
	if !errors.Is(err, document.ErrNotAuthorized) {
		t.Errorf("cross-level Delegate() error = %v, want ErrNotAuthorized", err)
	}
}

func TestEngine_Delegate_NoPendingStep(t *testing.T) {
	f := newFixture(t)
	f.roles.levelForUserFunc = func(document.Kind, string) (string, error) {
		return "director", nil
	}
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	_, err := f.engine.Delegate(context.Background(), draft.ID, "dave", "erin", "vacation")
	if !errors.Is(err, document.ErrNoPendingApproval) {
		t.Errorf("Delegate(level without pending step) error = %v, want ErrNoPendingApproval", err)
	}
}

func TestEngine_AutoApprove_FullDocument(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 9000, nil)
	f.submit(t, draft.ID)

	doc, err := f.engine.AutoApprove(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("AutoApprove() unexpected error: %v", err)
	}

	if doc.Status != document.StatusApproved {
		t.Errorf("Status = %s, want %s", doc.Status, document.StatusApproved)
	}
	if doc.Chain[0].ApproverID != "system" {
		t.Errorf("ApproverID = %s, want system", doc.Chain[0].ApproverID)
	}
	if doc.FinalAmount == nil || !doc.FinalAmount.Equal(doc.Amount) {
		t.Errorf("FinalAmount = %v, want requested amount", doc.FinalAmount)
	}
	if len(f.notifier.byType(port.NotifyApproved)) != 1 {
		t.Error("full auto-approval must emit an approved notification")
	}
}

func TestEngine_AutoApprove_StopsAtUncoveredStep(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 18000, nil)
	f.submit(t, draft.ID)

	doc, err := f.engine.AutoApprove(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("AutoApprove() unexpected error: %v", err)
	}

	// kam is covered by the rule table up to 20000, manager has no rule.
	if doc.Chain[0].Status != document.StepApproved {
		t.Errorf("kam step status = %s, want %s", doc.Chain[0].Status, document.StepApproved)
	}
	if doc.Chain[1].Status != document.StepPending {
		t.Errorf("manager step status = %s, want %s", doc.Chain[1].Status, document.StepPending)
	}
	if doc.Status != document.StatusSubmitted {
		t.Errorf("Status = %s, want %s", doc.Status, document.StatusSubmitted)
	}
}

func TestEngine_AutoApprove_NothingCovered(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 60000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	before, err := f.store.Load(ctx, draft.ID)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	doc, err := f.engine.AutoApprove(ctx, draft.ID)
	if err != nil {
		t.Fatalf("AutoApprove() unexpected error: %v", err)
	}
	if doc.Version != before.Version {
		t.Error("AutoApprove with nothing to clear must not commit")
	}
}

func TestEngine_ConcurrentDecides_OneWinner(t *testing.T) {
	f := newFixture(t)
	draft := f.newDraft(t, 9000, nil)
	f.submit(t, draft.ID)
	ctx := context.Background()

	errs := make(chan error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.Decide(ctx, draft.ID, approveReq("kam"))
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var succeeded, conflicted, alreadyDecided int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, document.ErrConcurrencyConflict):
			conflicted++
		case errors.Is(err, document.ErrAlreadyDecided):
			// Loser loaded after the winner committed.
			alreadyDecided++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if succeeded != 1 {
		t.Errorf("winners = %d, want exactly 1", succeeded)
	}
	if conflicted+alreadyDecided != 1 {
		t.Errorf("losers = %d, want exactly 1 conflict or already-decided", conflicted+alreadyDecided)
	}

	doc, err := f.store.Load(ctx, draft.ID)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	approvals := 0
	for _, h := range doc.History {
		if h.Action == document.ActionApproved {
			approvals++
		}
	}
	if approvals != 1 {
		t.Errorf("approval history entries = %d, want exactly 1", approvals)
	}
}
