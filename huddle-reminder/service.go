package huddlereminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidReminder = errors.New("invalid reminder")
	ErrNotOwner        = errors.New("reminder belongs to another user")
)

type ReminderInput struct {
	EventID  string    `json:"eventId,omitempty"`
	Datetime time.Time `json:"datetime"`
	Label    string    `json:"label"`
	Note     string    `json:"note,omitempty"`
}

func (in ReminderInput) validate() error {
	if strings.TrimSpace(in.Label) == "" {
		return fmt.Errorf("label is required: %w", ErrInvalidReminder)
	}
	if in.Datetime.IsZero() {
		return fmt.Errorf("datetime is required: %w", ErrInvalidReminder)
	}
	return nil
}

// Timers is the part of the Scheduler the CRUD service drives.
type Timers interface {
	Create(ctx context.Context, r reminderdao.Reminder) (State, error)
	Update(ctx context.Context, r reminderdao.Reminder) (State, error)
	Delete(ctx context.Context, reminderID string) (State, error)
}

// Service is reminder CRUD for their owners. With Scheduler set, timers are
// kept in step with each write; leave it nil when the table's stream drives
// the scheduler instead. Timer failures never fail the write.
type Service struct {
	Store     Store
	Scheduler Timers
	Logger    zerolog.Logger

	newID func() string
}

func (s *Service) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

func (s *Service) Create(ctx context.Context, userID string, in ReminderInput) (*reminderdao.Reminder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	r := reminderdao.Reminder{
		ReminderID: s.id(),
		UserID:     userID,
		EventID:    in.EventID,
		Datetime:   in.Datetime.UTC(),
		Label:      in.Label,
		Note:       in.Note,
	}
	if err := s.Store.Put(ctx, r); err != nil {
		return nil, err
	}
	if s.Scheduler != nil {
		if _, err := s.Scheduler.Create(ctx, r); err != nil {
			s.Logger.Error().Err(err).Str("reminder_id", r.ReminderID).Msg("reminder saved without a timer")
		}
	}
	return &r, nil
}

func (s *Service) Get(ctx context.Context, userID, reminderID string) (*reminderdao.Reminder, error) {
	r, err := s.Store.Get(ctx, reminderID)
	if err != nil {
		if errors.Is(err, reminderdao.ErrNotFound) {
			return nil, fmt.Errorf("%v: %w", reminderID, ErrReminderNotFound)
		}
		return nil, err
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("%v: %w", reminderID, ErrNotOwner)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]reminderdao.Reminder, error) {
	return s.Store.ListByUser(ctx, userID)
}

// Update replaces the reminder's editable fields. The notified flag is left to
// the store, so a notification landing mid-edit stays recorded and the timer
// is cancelled rather than moved.
func (s *Service) Update(ctx context.Context, userID, reminderID string, in ReminderInput) (*reminderdao.Reminder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID, reminderID); err != nil {
		return nil, err
	}
	r, err := s.Store.UpdateDetails(ctx, reminderdao.Reminder{
		ReminderID: reminderID,
		UserID:     userID,
		EventID:    in.EventID,
		Datetime:   in.Datetime.UTC(),
		Label:      in.Label,
		Note:       in.Note,
	})
	if err != nil {
		if errors.Is(err, reminderdao.ErrNotFound) {
			return nil, fmt.Errorf("%v: %w", reminderID, ErrReminderNotFound)
		}
		return nil, err
	}
	if s.Scheduler != nil {
		if _, err := s.Scheduler.Update(ctx, *r); err != nil {
			s.Logger.Error().Err(err).Str("reminder_id", r.ReminderID).Msg("reminder updated without moving its timer")
		}
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, userID, reminderID string) error {
	if _, err := s.Get(ctx, userID, reminderID); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, reminderID); err != nil {
		return err
	}
	if s.Scheduler != nil {
		if _, err := s.Scheduler.Delete(ctx, reminderID); err != nil {
			s.Logger.Error().Err(err).Str("reminder_id", reminderID).Msg("reminder deleted but its timer remains")
		}
	}
	return nil
}
