package document

import "time"

// Action identifies what a history entry records
type Action string

const (
	ActionSubmitted    Action = "submitted"
	ActionApproved     Action = "approved"
	ActionRejected     Action = "rejected"
	ActionEscalated    Action = "escalated"
	ActionDelegated    Action = "delegated"
	ActionAutoApproved Action = "auto_approved"
)

// HistoryEntry is one record in a document's append-only audit trail.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Level     string    `json:"level,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
