package huddlereminder

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	"github.com/huddle-events/huddle-core/huddle-reminder/reminderdao"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*huddledirectory.User, error)
}

// Sender delivers a due reminder to its owner.
type Sender interface {
	Send(ctx context.Context, userID string, r reminderdao.Reminder) error
}

// Dispatcher sends a reminder over every channel the owner has enabled. The
// channels are attempted concurrently and independently.
type Dispatcher struct {
	Directory UserDirectory
	Pusher    huddlenotify.Pusher
	Emailer   huddlenotify.Emailer
	Logger    zerolog.Logger
}

var _ Sender = (*Dispatcher)(nil)

// Send returns the failures of every channel that failed, for logging. A
// failed channel does not stop the others.
func (d *Dispatcher) Send(ctx context.Context, userID string, r reminderdao.Reminder) error {
	user, err := d.Directory.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load preferences of %v: %w", userID, err)
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	record := func(channel string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		result = multierror.Append(result, fmt.Errorf("%v: %w", channel, err))
	}

	push := user.PushEnabled && user.PushEndpoint != ""
	email := user.EmailEnabled && user.Email != ""
	d.Logger.Debug().
		Str("reminder_id", r.ReminderID).
		Bool("push", push).
		Bool("email", email).
		Msg("dispatching reminder")

	if push {
		g.Go(func() error {
			record("push", d.Pusher.Push(ctx, user.PushEndpoint, huddlenotify.Push{
				Title: "Reminder",
				Body:  r.Label,
				Data:  map[string]string{"reminderId": r.ReminderID, "eventId": r.EventID},
			}))
			return nil
		})
	}
	if email {
		g.Go(func() error {
			record("email", d.Emailer.SendEmail(ctx, huddlenotify.Email{
				To:      user.Email,
				Subject: "Reminder: " + r.Label,
				Text:    emailText(r),
			}))
			return nil
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}

func emailText(r reminderdao.Reminder) string {
	text := r.Label + "\n" + r.Datetime.UTC().Format("Mon Jan 2 15:04 MST")
	if r.Note != "" {
		text += "\n\n" + r.Note
	}
	return text
}
