package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/port"
)

// LogSender writes notifications to the structured log. Useful in dev
// mode and as an always-on audit channel next to real delivery.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-backed notification sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the notification.
func (s *LogSender) Send(_ context.Context, n port.Notification) error {
	s.logger.Info("Notification",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("document_id", n.DocumentID),
		zap.String("kind", n.Kind.String()),
		zap.String("level", n.Level),
		zap.String("to_user", n.ToUser),
		zap.String("reason", n.Reason),
		zap.Float64("hours_overdue", n.HoursOverdue))
	return nil
}

// Verify interface compliance
var _ port.NotificationSender = (*LogSender)(nil)
