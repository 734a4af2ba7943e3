package jobs

import (
	"context"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

type commissionSettler interface {
	SettleCommissions(ctx context.Context) ([]domain.PayoutSummary, error)
}

// PayoutJob settles all unpaid staff commissions in one batch. The
// repository runs the whole batch in a single transaction, so a second
// run right after a successful one settles nothing.
type PayoutJob struct {
	ledger commissionSettler
	logger *zap.Logger
}

// NewPayoutJob creates a new PayoutJob.
func NewPayoutJob(ledger commissionSettler, logger *zap.Logger) *PayoutJob {
	return &PayoutJob{ledger: ledger, logger: logger}
}

// Run executes one payout batch.
func (j *PayoutJob) Run(ctx context.Context) {
	summaries, err := j.ledger.SettleCommissions(ctx)
	if err != nil {
		j.logger.Error("payout batch failed, rolled back", zap.Error(err))
		return
	}

	if len(summaries) == 0 {
		j.logger.Info("payout batch: nothing to settle")
		return
	}

	var total float64
	for _, s := range summaries {
		total += s.Amount
		j.logger.Info("commission settled",
			zap.Int64("staff_id", s.StaffID),
			zap.Float64("amount", s.Amount),
			zap.Int("orders", s.Orders),
		)
	}
	j.logger.Info("payout batch completed",
		zap.Int("staff_paid", len(summaries)),
		zap.Float64("total", total),
	)
}
