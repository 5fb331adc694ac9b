package huddlereminder

import (
	"context"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	huddleddb "github.com/huddle-events/huddle-core/huddle-ddb"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	"github.com/rs/zerolog"
)

// StreamSync keeps timers in step with the reminders table by following its
// stream. Timer failures are logged and the record is acknowledged, so a bad
// timer never blocks the shard.
type StreamSync struct {
	Scheduler Timers
	Logger    zerolog.Logger
}

func (s *StreamSync) OnInsert(ctx context.Context, newValue map[string]*dynamodb.AttributeValue) error {
	var r reminderdao.Reminder
	if err := huddleddb.ParseItem(newValue, &r); err != nil {
		return err
	}
	if _, err := s.Scheduler.Create(ctx, r); err != nil {
		s.logger(ctx).Error().Err(err).Str("reminder_id", r.ReminderID).Msg("stream insert left reminder without a timer")
	}
	return nil
}

func (s *StreamSync) OnUpdate(ctx context.Context, oldValue, newValue map[string]*dynamodb.AttributeValue) error {
	var before, after reminderdao.Reminder
	if err := huddleddb.ParseItem(oldValue, &before); err != nil {
		return err
	}
	if err := huddleddb.ParseItem(newValue, &after); err != nil {
		return err
	}
	// label and note edits do not move the timer; the notified flip cancels it
	if before.Datetime.Equal(after.Datetime) && before.Notified == after.Notified {
		return nil
	}
	if _, err := s.Scheduler.Update(ctx, after); err != nil {
		s.logger(ctx).Error().Err(err).Str("reminder_id", after.ReminderID).Msg("stream update failed to move timer")
	}
	return nil
}

func (s *StreamSync) OnDelete(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
	var r reminderdao.Reminder
	if err := huddleddb.ParseItem(oldValue, &r); err != nil {
		return err
	}
	if _, err := s.Scheduler.Delete(ctx, r.ReminderID); err != nil {
		s.logger(ctx).Error().Err(err).Str("reminder_id", r.ReminderID).Msg("stream delete left a timer behind")
	}
	return nil
}

func (s *StreamSync) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}
