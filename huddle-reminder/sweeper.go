package huddlereminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	"github.com/rs/zerolog"
)

const (
	// SweepWindow is how far back CheckDue looks for missed reminders.
	// Anything older is stale and never notified.
	SweepWindow = time.Hour

	// RetentionWindow is how long after its datetime a reminder is kept.
	RetentionWindow = time.Hour

	// EarlyTolerance is how far ahead of its datetime a reminder may fire.
	EarlyTolerance = time.Hour
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrPremature        = errors.New("reminder is not due yet")
)

type NotifyOutcome string

const (
	OutcomeDispatched      NotifyOutcome = "dispatched"
	OutcomeAlreadyNotified NotifyOutcome = "already-notified"
)

type SweepResult struct {
	Dispatched int
	Stale      int
	Failed     int
}

type Store interface {
	Put(ctx context.Context, r reminderdao.Reminder) error
	Get(ctx context.Context, reminderID string) (*reminderdao.Reminder, error)
	UpdateDetails(ctx context.Context, r reminderdao.Reminder) (*reminderdao.Reminder, error)
	Delete(ctx context.Context, reminderID string) error
	ListByUser(ctx context.Context, userID string) ([]reminderdao.Reminder, error)
	MarkNotified(ctx context.Context, reminderID string, at time.Time) (bool, error)
	ScanPending(ctx context.Context, from, to time.Time) ([]reminderdao.Reminder, error)
	ScanBefore(ctx context.Context, t time.Time) ([]reminderdao.Reminder, error)
}

// Canceller removes a reminder's timer, either because the reminder fired or
// because it is going away.
type Canceller interface {
	Fired(ctx context.Context, reminderID string) (State, error)
	Delete(ctx context.Context, reminderID string) (State, error)
}

// Sweeper notifies due reminders, from their timer firing or from a periodic
// sweep that catches the ones whose timer never fired.
type Sweeper struct {
	Store     Store
	Sender    Sender
	Scheduler Canceller
	Logger    zerolog.Logger
	Metrics   huddlecli.Metrics

	now func() time.Time
}

func (s *Sweeper) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Notify handles a fired timer for reminderID.
func (s *Sweeper) Notify(ctx context.Context, reminderID string) (NotifyOutcome, error) {
	r, err := s.Store.Get(ctx, reminderID)
	if err != nil {
		if errors.Is(err, reminderdao.ErrNotFound) {
			return "", fmt.Errorf("%v: %w", reminderID, ErrReminderNotFound)
		}
		return "", err
	}
	if r.Notified {
		return OutcomeAlreadyNotified, nil
	}
	if r.Datetime.After(s.clock().Add(EarlyTolerance)) {
		return "", fmt.Errorf("%v due at %v: %w", reminderID, r.Datetime.Format(time.RFC3339), ErrPremature)
	}

	won, err := s.fire(ctx, *r)
	if err != nil {
		return "", err
	}
	if !won {
		return OutcomeAlreadyNotified, nil
	}

	if _, err := s.Scheduler.Fired(ctx, reminderID); err != nil {
		s.Logger.Warn().Err(err).Str("reminder_id", reminderID).Msg("failed to retire fired schedule")
	}
	return OutcomeDispatched, nil
}

// CheckDue notifies every pending reminder due within the last SweepWindow.
// Older pending reminders are counted as stale and left alone.
func (s *Sweeper) CheckDue(ctx context.Context) (SweepResult, error) {
	now := s.clock()
	cutoff := now.Add(-SweepWindow)

	pending, err := s.Store.ScanPending(ctx, time.Unix(0, 0), now)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, r := range pending {
		logger := s.Logger.With().Str("reminder_id", r.ReminderID).Logger()
		if r.Datetime.Before(cutoff) {
			result.Stale++
			logger.Debug().Time("datetime", r.Datetime).Msg("skipping stale reminder")
			continue
		}
		won, err := s.fire(ctx, r)
		switch {
		case err != nil:
			result.Failed++
			logger.Error().Err(err).Msg("failed to notify reminder")
		case won:
			result.Dispatched++
			if _, err := s.Scheduler.Fired(ctx, r.ReminderID); err != nil {
				logger.Warn().Err(err).Msg("failed to retire swept schedule")
			}
		}
	}

	s.Metrics.Count(ctx, huddlecli.ReminderDispatchedMetric, result.Dispatched)
	s.Metrics.Count(ctx, huddlecli.ReminderStaleMetric, result.Stale)

	s.Logger.Info().
		Int("dispatched", result.Dispatched).
		Int("stale", result.Stale).
		Int("failed", result.Failed).
		Msg("swept due reminders")
	return result, nil
}

// Cleanup deletes reminders more than RetentionWindow past their datetime,
// along with any timer left behind.
func (s *Sweeper) Cleanup(ctx context.Context) (int, error) {
	old, err := s.Store.ScanBefore(ctx, s.clock().Add(-RetentionWindow))
	if err != nil {
		return 0, err
	}

	var deleted int
	for _, r := range old {
		logger := s.Logger.With().Str("reminder_id", r.ReminderID).Logger()
		if _, err := s.Scheduler.Delete(ctx, r.ReminderID); err != nil {
			logger.Warn().Err(err).Msg("failed to delete schedule of expired reminder")
		}
		if err := s.Store.Delete(ctx, r.ReminderID); err != nil {
			logger.Error().Err(err).Msg("failed to delete expired reminder")
			continue
		}
		deleted++
	}

	s.Logger.Info().Int("deleted", deleted).Msg("cleaned up expired reminders")
	return deleted, nil
}

// fire dispatches r and then flips its notified flag. It reports whether this
// call won the flip. Channel failures are logged, not returned: the reminder
// counts as notified once dispatch was attempted.
func (s *Sweeper) fire(ctx context.Context, r reminderdao.Reminder) (bool, error) {
	logger := s.Logger.With().Str("reminder_id", r.ReminderID).Logger()

	if err := s.Sender.Send(ctx, r.UserID, r); err != nil {
		logger.Warn().Err(err).Msg("reminder delivery failed")
	}

	won, err := s.Store.MarkNotified(ctx, r.ReminderID, s.clock())
	if err != nil {
		return false, err
	}
	if !won {
		logger.Warn().Msg("reminder notified concurrently")
	}
	return won, nil
}
