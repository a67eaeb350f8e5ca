// Package schedule fires the recurring notification flows on a cron
// schedule.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/signalist/notifier/pipeline"
)

// DailyDigestSpec fires the daily news digest once a day at 09:00 UTC.
const DailyDigestSpec = "0 9 * * *"

// digestTimeout bounds one whole daily run, all users included.
const digestTimeout = 30 * time.Minute

// Triggerer is the slice of notify.Service the scheduler drives.
type Triggerer interface {
	TriggerDailyDigest(ctx context.Context) (pipeline.RunOutcome, error)
}

// Scheduler runs registered jobs in UTC until stopped.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// New creates a Scheduler with the daily digest job registered.
func New(svc Triggerer, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(DailyDigestSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
		defer cancel()

		outcome, err := svc.TriggerDailyDigest(ctx)
		if err != nil {
			logger.Error("daily digest run failed", "error", err)
			return
		}
		logger.Info("daily digest run finished",
			"run_id", outcome.RunID,
			"status", string(outcome.Status),
			"entities", len(outcome.Entities),
			"failed", len(outcome.Failed()))
	})
	if err != nil {
		return nil, fmt.Errorf("register daily digest job: %w", err)
	}

	return &Scheduler{cron: c, log: logger}, nil
}

// Start begins firing jobs in a background goroutine.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started", "daily_digest", DailyDigestSpec)
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
