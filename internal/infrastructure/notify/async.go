package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/port"
)

const sendTimeout = 10 * time.Second

// AsyncNotifier fans a notification out to every registered sender on a
// background goroutine. Dispatch never blocks the commit path; a sender
// failure is logged and dropped (delivery is at-least-once overall, the
// channel owns its own retries).
type AsyncNotifier struct {
	senders []port.NotificationSender
	logger  *zap.Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewAsyncNotifier creates a notifier over the given delivery channels.
func NewAsyncNotifier(logger *zap.Logger, senders ...port.NotificationSender) *AsyncNotifier {
	return &AsyncNotifier{
		senders: senders,
		logger:  logger,
	}
}

// Notify dispatches the notification asynchronously. The caller's context
// is not carried over: a finished request must not cancel delivery.
func (n *AsyncNotifier) Notify(_ context.Context, event port.Notification) {
	if n.closed.Load() {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		for _, sender := range n.senders {
			if err := sender.Send(ctx, event); err != nil {
				n.logger.Warn("Notification delivery failed",
					zap.String("notification_id", event.ID),
					zap.String("type", string(event.Type)),
					zap.String("document_id", event.DocumentID),
					zap.Error(err))
			}
		}
	}()
}

// Close stops accepting notifications and waits for in-flight deliveries.
func (n *AsyncNotifier) Close() error {
	n.closed.Store(true)
	n.wg.Wait()
	return nil
}

// Verify interface compliance
var _ port.Notifier = (*AsyncNotifier)(nil)
