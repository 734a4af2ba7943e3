package jobs

import (
	"context"
	"time"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

type renewalLister interface {
	ListRenewalsDue(ctx context.Context, from, to time.Time) ([]*domain.Order, error)
}

// RenewalJob reminds clients about annual services coming up for
// renewal. It scans COMPLETED orders created in the one-day window that
// lies ageMonths in the past and enqueues one notification per order.
// Read-only; running it twice sends the reminder twice, which the daily
// schedule makes harmless.
type RenewalJob struct {
	orders    renewalLister
	notifier  domain.Notifier
	logger    *zap.Logger
	ageMonths int
}

// NewRenewalJob creates a new RenewalJob.
func NewRenewalJob(orders renewalLister, notifier domain.Notifier, logger *zap.Logger, ageMonths int) *RenewalJob {
	return &RenewalJob{orders: orders, notifier: notifier, logger: logger, ageMonths: ageMonths}
}

// Run scans one day's worth of renewal candidates.
func (j *RenewalJob) Run(ctx context.Context) {
	now := time.Now().UTC()
	from := now.AddDate(0, -j.ageMonths, 0).Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	orders, err := j.orders.ListRenewalsDue(ctx, from, to)
	if err != nil {
		j.logger.Error("renewal scan failed", zap.Error(err))
		return
	}

	for _, order := range orders {
		j.notifier.Enqueue(domain.NotificationEvent{
			Type:       domain.EventRenewalDue,
			UserID:     order.UserID,
			OccurredAt: now,
			Data: map[string]string{
				"tracking_code": order.TrackingCode,
				"service_type":  order.ServiceType,
			},
		})
	}

	if len(orders) > 0 {
		j.logger.Info("renewal reminders enqueued", zap.Int("count", len(orders)))
	}
}
