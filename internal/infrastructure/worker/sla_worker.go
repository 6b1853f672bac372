package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/application/sla"
	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// SLAWorker periodically scans submitted documents and emits an
// SLABreached notification for every overdue pending step. Acting on a
// breach (escalation, reminders) stays with the receivers; duplicate
// notifications across scans are expected and tolerated.
type SLAWorker struct {
	store    port.DocumentStore
	monitor  *sla.Monitor
	notifier port.Notifier
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewSLAWorker creates the SLA scan worker.
func NewSLAWorker(
	store port.DocumentStore,
	monitor *sla.Monitor,
	notifier port.Notifier,
	interval time.Duration,
	logger *zap.Logger,
) *SLAWorker {
	return &SLAWorker{
		store:    store,
		monitor:  monitor,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Name returns the worker name.
func (w *SLAWorker) Name() string {
	return "sla-monitor"
}

// Start launches the scan loop.
func (w *SLAWorker) Start(ctx context.Context) error {
	go w.run(ctx)
	return nil
}

// Stop signals the loop and waits for it to exit.
func (w *SLAWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	<-w.stopped
	return nil
}

func (w *SLAWorker) run(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *SLAWorker) scan(ctx context.Context) {
	docs, err := w.store.ListByStatus(ctx, document.StatusSubmitted)
	if err != nil {
		w.logger.Error("SLA scan failed to list documents", zap.Error(err))
		return
	}

	now := time.Now()
	breached := 0
	for _, doc := range docs {
		violations, err := w.monitor.CheckCompliance(doc, now)
		if err != nil {
			w.logger.Error("SLA check failed",
				zap.String("document_id", doc.ID),
				zap.Error(err))
			continue
		}
		for _, v := range violations {
			breached++
			w.notifier.Notify(ctx, port.Notification{
				ID:           uuid.NewString(),
				Type:         port.NotifySLABreached,
				DocumentID:   doc.ID,
				Kind:         doc.Kind,
				Level:        v.Level,
				HoursOverdue: v.HoursOverdue,
				OccurredAt:   now,
			})
		}
	}

	if breached > 0 {
		w.logger.Info("SLA scan found overdue steps",
			zap.Int("documents", len(docs)),
			zap.Int("violations", breached))
	}
}
