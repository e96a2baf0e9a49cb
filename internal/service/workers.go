package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/model"
)

// OutboxDispatcher claims pending outbox rows and records publish results.
type OutboxDispatcher interface {
	Dispatch(ctx context.Context, limit, maxAttempts int, publish func(context.Context, model.OutboxEvent) error) (int, int, error)
}

// EventPublisher pushes one outbox row to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.OutboxEvent) error
}

// OutboxRelay moves committed events to the broker on a fixed interval.
type OutboxRelay struct {
	Store       OutboxDispatcher
	Publisher   EventPublisher
	Interval    time.Duration
	Batch       int
	MaxAttempts int
	Log         zerolog.Logger
}

// Run blocks until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	r.Log.Info().Dur("interval", interval).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("outbox relay stopped")
			return
		case <-t.C:
			// Drain in batches so a backlog clears in one tick.
			for {
				n, err := r.Tick(ctx)
				if err != nil || n < r.batch() {
					break
				}
			}
		}
	}
}

func (r *OutboxRelay) batch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}

// Tick runs one dispatch round and returns how many rows it handled.
func (r *OutboxRelay) Tick(ctx context.Context) (int, error) {
	max := r.MaxAttempts
	if max <= 0 {
		max = 10
	}
	sent, failed, err := r.Store.Dispatch(ctx, r.batch(), max, r.Publisher.Publish)
	if err != nil {
		r.Log.Error().Err(err).Msg("outbox dispatch failed")
		return 0, err
	}
	if sent > 0 || failed > 0 {
		r.Log.Debug().Int("sent", sent).Int("failed", failed).Msg("outbox dispatched")
	}
	if failed > 0 {
		return sent + failed, fmt.Errorf("%d events failed to publish", failed)
	}
	return sent, nil
}

// OverdueMarker flips past-due reviews to overdue.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time, limit int, effects func(model.Review) model.SideEffects) (int, error)
}

type SubmissionReader interface {
	GetByID(ctx context.Context, id uint64) (model.Submission, error)
}

// ReviewSweeper marks overdue reviews and reminds their reviewers.
type ReviewSweeper struct {
	Reviews     OverdueMarker
	Submissions SubmissionReader
	Users       UserDirectory
	Interval    time.Duration
	Log         zerolog.Logger
	Now         func() time.Time
}

func (s *ReviewSweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	s.Log.Info().Dur("interval", interval).Msg("review sweeper started")
	if _, err := s.Sweep(ctx); err != nil {
		s.Log.Error().Err(err).Msg("review sweep failed")
	}
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("review sweeper stopped")
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.Log.Error().Err(err).Msg("review sweep failed")
			}
		}
	}
}

// Sweep marks every review due before now and returns how many changed.
func (s *ReviewSweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	total := 0
	for {
		n, err := s.Reviews.MarkOverdue(ctx, now().UTC(), 200, func(rv model.Review) model.SideEffects {
			return s.reminder(ctx, rv)
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < 200 {
			break
		}
	}
	if total > 0 {
		s.Log.Info().Int("reviews", total).Msg("reviews marked overdue")
	}
	return total, nil
}

func (s *ReviewSweeper) reminder(ctx context.Context, rv model.Review) model.SideEffects {
	u, err := s.Users.GetByID(ctx, rv.ReviewerID)
	if err != nil {
		s.Log.Warn().Err(err).Uint64("review_id", rv.ID).Msg("reviewer lookup failed, no reminder sent")
		return model.SideEffects{}
	}
	title := fmt.Sprintf("submission #%d", rv.SubmissionID)
	if sub, err := s.Submissions.GetByID(ctx, rv.SubmissionID); err == nil {
		title = fmt.Sprintf("%q", sub.Title)
	}
	ns, evs, err := BuildNotices(Notice{
		Type:    model.NotifyReviewReminder,
		Subject: "Review overdue",
		Message: fmt.Sprintf("Your review of %s was due on %s.", title, rv.DueDate.Format("2006-01-02")),
		Path:    "/reviews",
		Data:    model.NotificationData{SubmissionID: rv.SubmissionID, ReviewID: rv.ID},
	}, u)
	if err != nil {
		s.Log.Warn().Err(err).Uint64("review_id", rv.ID).Msg("reminder not built")
		return model.SideEffects{}
	}
	return model.SideEffects{Notifications: ns, Events: evs}
}
