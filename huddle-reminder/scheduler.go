// Package huddlereminder schedules reminders and notifies their owners when
// they come due.
package huddlereminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	"github.com/rs/zerolog"
)

type State string

const (
	StateUnscheduled State = "unscheduled"
	StateScheduled   State = "scheduled"
	StateRescheduled State = "rescheduled"
	StateCancelled   State = "cancelled"
	StateFired       State = "fired"
)

func ScheduleName(reminderID string) string {
	return "reminder-" + reminderID
}

func NotifyPath(reminderID string) string {
	return "/reminders/notify/" + reminderID
}

// Scheduler keeps one timer per future, unnotified reminder.
type Scheduler struct {
	Timers TimerService
	Target Target // ARN and RoleARN of the notify function; Input is built per reminder
	Token  string // bearer the notify endpoint expects
	Retry  RetryPolicy
	Logger zerolog.Logger

	now func() time.Time
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scheduler) retry() RetryPolicy {
	if s.Retry.MaxAttempts == 0 && s.Retry.MaxAge == 0 {
		return DefaultRetryPolicy
	}
	return s.Retry
}

// Create schedules r. A reminder already in the past is left unscheduled; the
// sweeper picks it up if it is recent enough. An existing schedule with the
// same key is updated instead.
func (s *Scheduler) Create(ctx context.Context, r reminderdao.Reminder) (State, error) {
	logger := s.Logger.With().Str("reminder_id", r.ReminderID).Logger()

	if r.Notified || !r.Datetime.After(s.clock()) {
		logger.Debug().Msg("reminder not in the future, leaving unscheduled")
		return StateUnscheduled, nil
	}

	target, err := s.target(r.ReminderID)
	if err != nil {
		return StateUnscheduled, err
	}

	key := ScheduleName(r.ReminderID)
	err = s.Timers.CreateSchedule(ctx, key, r.Datetime, target, s.retry())
	switch {
	case err == nil:
		return StateScheduled, nil
	case errors.Is(err, ErrScheduleConflict):
		if err := s.Timers.UpdateSchedule(ctx, key, r.Datetime, target, s.retry()); err != nil {
			logger.Error().Err(err).Msg("failed to update conflicting schedule")
			return StateUnscheduled, err
		}
		return StateRescheduled, nil
	default:
		logger.Error().Err(err).Msg("failed to create schedule")
		return StateUnscheduled, err
	}
}

// Update moves r's timer. Moving a reminder into the past, or updating one
// that has already been notified, cancels it.
func (s *Scheduler) Update(ctx context.Context, r reminderdao.Reminder) (State, error) {
	logger := s.Logger.With().Str("reminder_id", r.ReminderID).Logger()

	if r.Notified || !r.Datetime.After(s.clock()) {
		return s.Delete(ctx, r.ReminderID)
	}

	target, err := s.target(r.ReminderID)
	if err != nil {
		return StateUnscheduled, err
	}

	key := ScheduleName(r.ReminderID)
	err = s.Timers.UpdateSchedule(ctx, key, r.Datetime, target, s.retry())
	switch {
	case err == nil:
		return StateRescheduled, nil
	case errors.Is(err, ErrScheduleNotFound):
		if err := s.Timers.CreateSchedule(ctx, key, r.Datetime, target, s.retry()); err != nil {
			logger.Error().Err(err).Msg("failed to create missing schedule")
			return StateUnscheduled, err
		}
		return StateScheduled, nil
	default:
		logger.Error().Err(err).Msg("failed to update schedule")
		return StateUnscheduled, err
	}
}

// Delete cancels the reminder's timer. A missing timer is not an error.
func (s *Scheduler) Delete(ctx context.Context, reminderID string) (State, error) {
	err := s.Timers.DeleteSchedule(ctx, ScheduleName(reminderID))
	if err != nil && !errors.Is(err, ErrScheduleNotFound) {
		s.Logger.Error().Err(err).Str("reminder_id", reminderID).Msg("failed to delete schedule")
		return StateUnscheduled, err
	}
	return StateCancelled, nil
}

// Fired retires the timer of a reminder that has been notified. One-time
// schedules delete themselves after delivery, so a missing timer is expected.
func (s *Scheduler) Fired(ctx context.Context, reminderID string) (State, error) {
	err := s.Timers.DeleteSchedule(ctx, ScheduleName(reminderID))
	if err != nil && !errors.Is(err, ErrScheduleNotFound) {
		s.Logger.Error().Err(err).Str("reminder_id", reminderID).Msg("failed to retire fired schedule")
		return StateScheduled, err
	}
	return StateFired, nil
}

// target builds the API Gateway proxy request the schedule delivers to the
// notify function.
func (s *Scheduler) target(reminderID string) (Target, error) {
	path := NotifyPath(reminderID)
	input, err := json.Marshal(events.APIGatewayProxyRequest{
		Resource:   path,
		Path:       path,
		HTTPMethod: http.MethodPost,
		Headers: map[string]string{
			"Authorization": "Bearer " + s.Token,
			"Content-Type":  "application/json",
		},
		PathParameters: map[string]string{"id": reminderID},
	})
	if err != nil {
		return Target{}, fmt.Errorf("failed to marshal notify request for %v: %w", reminderID, err)
	}

	target := s.Target
	target.Input = string(input)
	return target, nil
}
