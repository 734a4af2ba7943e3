package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the background jobs on cron schedules. Panics inside a
// job are recovered so one bad run cannot kill the scheduler.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		logger: logger,
	}
}

// Register adds a named job on the given cron spec.
func (s *Scheduler) Register(spec, name string, run func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("job started", zap.String("job", name))
		run(context.Background())
		s.logger.Info("job finished", zap.String("job", name))
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to register job %q with spec %q: %w", name, spec, err)
	}
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
