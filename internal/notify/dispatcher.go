package notify

import (
	"context"
	"sync"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher fans notification events out to the publisher through a
// bounded queue. Enqueue never blocks the caller: when the queue is
// full the event is dropped with a warning, because notifications are
// best-effort and must not slow down the request path.
type Dispatcher struct {
	workers   int
	queue     chan domain.NotificationEvent
	publisher Publisher
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(workers, queueSize int, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		workers:   workers,
		queue:     make(chan domain.NotificationEvent, queueSize),
		publisher: publisher,
		logger:    logger,
	}
}

// Enqueue implements domain.Notifier.
func (d *Dispatcher) Enqueue(event domain.NotificationEvent) {
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("notification queue is full, dropping event",
			zap.String("type", event.Type),
			zap.Int64("user_id", event.UserID),
		)
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop drains the queue and waits for the workers to finish.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	d.logger.Info("notification worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification worker stopping", zap.Int("worker_id", id))
			return
		case event, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.NotificationEvent) {
	if err := d.publisher.Publish(ctx, event); err != nil {
		// Delivery failures are logged and the event is dropped; the
		// originating transaction has already committed.
		d.logger.Error("failed to publish notification",
			zap.String("type", event.Type),
			zap.Int64("user_id", event.UserID),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("notification published",
		zap.String("type", event.Type),
		zap.Int64("user_id", event.UserID),
	)
}
