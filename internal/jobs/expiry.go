package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type checkoutExpirer interface {
	ExpirePendingCheckouts(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiryJob fails gateway checkout entries that have been PENDING for
// longer than the TTL. Safe against late callbacks: a terminal entry
// absorbs any replay.
type ExpiryJob struct {
	ledger checkoutExpirer
	logger *zap.Logger
	ttl    time.Duration
}

// NewExpiryJob creates a new ExpiryJob.
func NewExpiryJob(ledger checkoutExpirer, logger *zap.Logger, ttl time.Duration) *ExpiryJob {
	return &ExpiryJob{ledger: ledger, logger: logger, ttl: ttl}
}

// Run expires one sweep's worth of stale checkouts.
func (j *ExpiryJob) Run(ctx context.Context) {
	cutoff := time.Now().Add(-j.ttl)

	expired, err := j.ledger.ExpirePendingCheckouts(ctx, cutoff)
	if err != nil {
		j.logger.Error("checkout expiry sweep failed", zap.Error(err))
		return
	}

	if expired > 0 {
		j.logger.Info("stale checkouts expired", zap.Int64("count", expired))
	}
}
