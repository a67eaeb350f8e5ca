// Package notify wires the workflow engine to the product flows: the
// welcome email sent on sign-up and the daily market news digest.
//
// Each flow is a sequence of named, checkpointed steps. Side-effecting
// steps (inference, mail delivery) are memoized, so re-triggering a run
// after a crash resumes where it stopped instead of repeating completed
// work.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalist/notifier/inference"
	"github.com/signalist/notifier/mail"
	"github.com/signalist/notifier/news"
	"github.com/signalist/notifier/pipeline"
	"github.com/signalist/notifier/pipeline/store"
	"github.com/signalist/notifier/users"
)

const (
	stepWelcomeIntro = "generate-welcome-intro"
	stepWelcomeSend  = "send-welcome-email"

	stepFetchWatchlist = "fetch-watchlist"
	stepGatherNews     = "gather-news"
	stepSummarizeNews  = "summarize-news"
	stepSendNews       = "send-news-email"
)

// newsWindowDays is how far back the digest looks for company news.
const newsWindowDays = 5

// SignUpEvent is the payload of an account creation event.
type SignUpEvent struct {
	EntityID          string `json:"entityId"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Country           string `json:"country"`
	InvestmentGoals   string `json:"investmentGoals"`
	RiskTolerance     string `json:"riskTolerance"`
	PreferredIndustry string `json:"preferredIndustry"`
}

// Service owns the notification flows.
type Service struct {
	runner     *pipeline.Runner
	aggregator *news.Aggregator
	model      inference.Client
	sender     mail.Sender
	directory  users.Directory
	log        *slog.Logger
	now        func() time.Time
}

// NewService assembles a Service. All collaborators are required except
// logger, which defaults to slog.Default().
func NewService(runner *pipeline.Runner, aggregator *news.Aggregator, model inference.Client, sender mail.Sender, directory users.Directory, logger *slog.Logger) (*Service, error) {
	switch {
	case runner == nil:
		return nil, errors.New("notify: runner is required")
	case aggregator == nil:
		return nil, errors.New("notify: aggregator is required")
	case model == nil:
		return nil, errors.New("notify: inference client is required")
	case sender == nil:
		return nil, errors.New("notify: mail sender is required")
	case directory == nil:
		return nil, errors.New("notify: user directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner:     runner,
		aggregator: aggregator,
		model:      model,
		sender:     sender,
		directory:  directory,
		log:        logger,
		now:        time.Now,
	}, nil
}

// TriggerWelcome runs the sign-up flow for one user: generate a
// personalized intro, fall back to static copy if the model yields nothing
// usable, then send the welcome email.
//
// The run ID derives from the event's entity ID, so a re-delivered event
// resumes the original run and the email goes out at most once.
func (s *Service) TriggerWelcome(ctx context.Context, ev SignUpEvent) (pipeline.RunOutcome, error) {
	if ev.Email == "" {
		return pipeline.RunOutcome{}, errors.New("notify: sign-up event has no email")
	}

	runID := "welcome-" + ev.EntityID
	if ev.EntityID == "" {
		runID = "welcome-" + uuid.NewString()
	}
	run := store.Run{ID: runID, TriggerKind: store.TriggerEvent}

	return s.runner.Execute(ctx, run, pipeline.Entity{ID: ev.Email}, func(ctx context.Context, x *pipeline.Execution) error {
		intro, err := pipeline.RunAs[string](ctx, x, stepWelcomeIntro, func(ctx context.Context) (string, error) {
			return s.model.Complete(ctx, welcomePrompt(ev))
		})
		if err != nil || strings.TrimSpace(intro) == "" {
			if ctx.Err() != nil {
				return err
			}
			if err != nil {
				s.log.Warn("welcome intro generation failed, using fallback",
					"run_id", x.RunID(), "email", ev.Email, "error", err)
			}
			intro = fallbackWelcomeIntro
		}

		_, err = x.Run(ctx, stepWelcomeSend, func(ctx context.Context) (any, error) {
			msg, err := mail.RenderWelcome(ev.Email, ev.Name, intro)
			if err != nil {
				return nil, pipeline.Permanent("render welcome email", err)
			}
			if err := s.sender.Send(ctx, msg); err != nil {
				return nil, err
			}
			return map[string]string{"to": ev.Email}, nil
		})
		return err
	})
}

// TriggerDailyDigest runs the daily news flow for every account in the
// directory. The account list is read fresh at fire time; each user is an
// isolated entity whose failure never blocks the others.
//
// The run ID derives from the calendar date, so firing twice on the same
// day resumes instead of re-sending.
func (s *Service) TriggerDailyDigest(ctx context.Context) (pipeline.RunOutcome, error) {
	recipients, err := s.directory.ListAll(ctx)
	if err != nil {
		return pipeline.RunOutcome{}, fmt.Errorf("list users: %w", err)
	}
	if len(recipients) == 0 {
		s.log.Info("no users for daily news digest")
		return pipeline.RunOutcome{}, nil
	}

	byEmail := make(map[string]users.User, len(recipients))
	entities := make([]pipeline.Entity, 0, len(recipients))
	for _, u := range recipients {
		if _, dup := byEmail[u.Email]; dup {
			continue
		}
		byEmail[u.Email] = u
		entities = append(entities, pipeline.Entity{ID: u.Email})
	}

	run := store.Run{
		ID:          "daily-news-" + s.now().UTC().Format("2006-01-02"),
		TriggerKind: store.TriggerScheduled,
	}

	return s.runner.ExecuteBatch(ctx, run, entities, func(ctx context.Context, x *pipeline.Execution) error {
		return s.digestForUser(ctx, x, byEmail[x.EntityID()])
	})
}

// digestForUser is one user's slice of the daily run: watchlist, news,
// summary, email, in that order.
func (s *Service) digestForUser(ctx context.Context, x *pipeline.Execution, u users.User) error {
	symbols, err := pipeline.RunAs[[]string](ctx, x, stepFetchWatchlist, func(ctx context.Context) ([]string, error) {
		return s.directory.WatchlistSymbols(ctx, u.Email)
	})
	if err != nil {
		return err
	}

	digest, err := pipeline.RunAs[news.Digest](ctx, x, stepGatherNews, func(ctx context.Context) (news.Digest, error) {
		return s.aggregator.Aggregate(ctx, symbols, news.LastDays(newsWindowDays))
	})
	if err != nil {
		return err
	}
	if len(digest) == 0 {
		s.log.Info("no news for user, skipping digest email", "run_id", x.RunID(), "email", u.Email)
		return nil
	}

	summary, err := pipeline.RunAs[string](ctx, x, stepSummarizeNews, func(ctx context.Context) (string, error) {
		return s.model.Complete(ctx, summaryPrompt(digest.Headlines()))
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		if ctx.Err() != nil {
			return err
		}
		if err != nil {
			s.log.Warn("news summary generation failed, using fallback",
				"run_id", x.RunID(), "email", u.Email, "error", err)
		}
		summary = fallbackNewsSummary
	}

	_, err = x.Run(ctx, stepSendNews, func(ctx context.Context) (any, error) {
		msg, err := mail.RenderDigest(u.Email, summary, digest)
		if err != nil {
			return nil, pipeline.Permanent("render digest email", err)
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			return nil, err
		}
		return map[string]any{"to": u.Email, "articles": len(digest)}, nil
	})
	return err
}
