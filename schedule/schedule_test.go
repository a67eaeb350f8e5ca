package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/signalist/notifier/notify"
	"github.com/signalist/notifier/pipeline"
)

// The notification service is the production Triggerer.
var _ Triggerer = (*notify.Service)(nil)

type nopTriggerer struct{}

func (nopTriggerer) TriggerDailyDigest(context.Context) (pipeline.RunOutcome, error) {
	return pipeline.RunOutcome{}, nil
}

func TestDailyDigestSpec(t *testing.T) {
	sched, err := cron.ParseStandard(DailyDigestSpec)
	if err != nil {
		t.Fatalf("spec does not parse: %v", err)
	}

	// From any point in the day the next fire is 09:00 UTC.
	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next := sched.Next(from)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next fire = %v, want %v", next, want)
	}

	// And exactly once per day.
	after := sched.Next(next)
	if !after.Equal(want.AddDate(0, 0, 1)) {
		t.Errorf("subsequent fire = %v, want %v", after, want.AddDate(0, 0, 1))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New(nopTriggerer{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
