package port

import (
	"context"
	"time"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// NotificationType identifies what a notification announces
type NotificationType string

const (
	NotifyApprovalRequired NotificationType = "approval_required"
	NotifyApproved         NotificationType = "approved"
	NotifyRejected         NotificationType = "rejected"
	NotifyDelegated        NotificationType = "delegated"
	NotifySLABreached      NotificationType = "sla_breached"
)

// Notification is the event handed to the notification collaborator.
// Delivery is at-least-once and fire-and-forget; receivers must tolerate
// duplicates.
type Notification struct {
	ID           string           `json:"id"`
	Type         NotificationType `json:"type"`
	DocumentID   string           `json:"document_id"`
	Kind         document.Kind    `json:"kind"`
	Level        string           `json:"level,omitempty"`
	ToUser       string           `json:"to_user,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	HoursOverdue float64          `json:"hours_overdue,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// Notifier dispatches notifications after successful commits. It must not
// block the caller; retry and backoff belong to the delivery channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotificationSender is one concrete delivery channel behind a Notifier.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}
