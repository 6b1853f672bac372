package document

import "fmt"

// Trigger represents an event that can change a document's status
type Trigger string

const (
	TriggerSubmit  Trigger = "SUBMIT"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// Machine validates document status transitions. The document lifecycle is
// fixed: Draft -> Submitted -> (Approved | Rejected). Escalation and
// delegation never change the document status, so they have no trigger.
type Machine struct {
	transitions map[Status]map[Trigger]Status
}

// NewMachine returns the document status machine.
func NewMachine() *Machine {
	m := &Machine{transitions: make(map[Status]map[Trigger]Status)}
	m.permit(StatusDraft, TriggerSubmit, StatusSubmitted)
	m.permit(StatusSubmitted, TriggerApprove, StatusApproved)
	m.permit(StatusSubmitted, TriggerReject, StatusRejected)
	return m
}

func (m *Machine) permit(from Status, trigger Trigger, to Status) {
	if !from.IsValid() || !to.IsValid() {
		panic(fmt.Sprintf("invalid status in transition %s -> %s", from, to))
	}
	if m.transitions[from] == nil {
		m.transitions[from] = make(map[Trigger]Status)
	}
	m.transitions[from][trigger] = to
}

// CanFire returns true if the trigger is permitted in the given status.
func (m *Machine) CanFire(from Status, trigger Trigger) bool {
	_, ok := m.transitions[from][trigger]
	return ok
}

// Fire returns the status reached by firing the trigger, or
// ErrInvalidState when the transition is not permitted.
func (m *Machine) Fire(from Status, trigger Trigger) (Status, error) {
	to, ok := m.transitions[from][trigger]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s from %s", ErrInvalidState, trigger, from)
	}
	return to, nil
}

// PermittedTriggers returns the triggers that can fire in the given status.
func (m *Machine) PermittedTriggers(from Status) []Trigger {
	triggers := make([]Trigger, 0, len(m.transitions[from]))
	for t := range m.transitions[from] {
		triggers = append(triggers, t)
	}
	return triggers
}
