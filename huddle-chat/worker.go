package huddlechat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/events"
	"github.com/huddle-events/huddle-core/huddle-chat/chatdao"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	"github.com/huddle-events/huddle-core/huddle-kinesis/publish"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultEmailConcurrency = 10

// Worker executes jobs, either in process through a LocalInvoker or from the
// chat jobs stream.
type Worker struct {
	Store       Store
	Directory   huddledirectory.Directory
	Broadcaster Broadcaster
	Emailer     huddlenotify.Emailer
	Logger      zerolog.Logger
	Concurrency int // max concurrent emails per announcement (default 10)
}

var _ JobHandler = (*Worker)(nil)

func (w *Worker) HandleJob(ctx context.Context, job Job) error {
	switch job.Kind {
	case JobAnnouncement:
		return w.announce(ctx, job)
	case JobReadUpdated:
		return w.readUpdated(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// HandleRecord decodes one stream record and runs its job.
func (w *Worker) HandleRecord(ctx context.Context, record events.KinesisEventRecord) error {
	envelope, err := publish.Decode(record.Kinesis.Data)
	if err != nil {
		return err
	}
	var job Job
	if err := json.Unmarshal(envelope.Payload, &job); err != nil {
		return fmt.Errorf("unmarshalling job: %w", err)
	}
	return w.HandleJob(ctx, job)
}

// readUpdated tells the room who read the message and how many have read it
// so far. A failed count is left out rather than holding back the event.
func (w *Worker) readUpdated(ctx context.Context, job Job) error {
	var readCount int
	if receipts, err := w.Store.ReceiptsOf(ctx, job.MessageID); err != nil {
		w.Logger.Warn().Err(err).Str("message_id", job.MessageID).Msg("failed to count receipts")
	} else {
		readCount = len(receipts)
	}

	payload, err := huddlews.ReadUpdatedEvent(job.GroupID, job.UserID, job.MessageID, readCount)
	if err != nil {
		return err
	}
	if _, err := w.Broadcaster.Broadcast(ctx, job.GroupID, payload); err != nil {
		return fmt.Errorf("failed to broadcast read-updated for %v: %w", job.MessageID, err)
	}
	return nil
}

// announce emails every group member except the sender. One recipient's
// failure does not affect the others.
func (w *Worker) announce(ctx context.Context, job Job) error {
	msg, err := w.Store.GetMessage(ctx, job.MessageID)
	if err != nil {
		return fmt.Errorf("failed to load announcement %v: %w", job.MessageID, err)
	}
	members, err := w.Directory.MembersOf(ctx, job.GroupID)
	if err != nil {
		return fmt.Errorf("failed to list members of %v: %w", job.GroupID, err)
	}

	logger := w.Logger.With().Str("group_id", job.GroupID).Str("message_id", job.MessageID).Logger()

	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = defaultEmailConcurrency
	}

	var sent, failed int64
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, member := range members {
		member := member
		if member.UserID == msg.SenderID {
			continue
		}
		g.Go(func() error {
			if err := w.email(ctx, member.UserID, msg); err != nil {
				atomic.AddInt64(&failed, 1)
				logger.Warn().Err(err).Str("user_id", member.UserID).Msg("failed to email announcement")
				return nil
			}
			atomic.AddInt64(&sent, 1)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().Int64("sent", sent).Int64("failed", failed).Msg("announcement emailed")
	return nil
}

func (w *Worker) email(ctx context.Context, userID string, msg *chatdao.Message) error {
	user, err := w.Directory.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return nil
	}
	return w.Emailer.SendEmail(ctx, huddlenotify.Email{
		To:      user.Email,
		Subject: "New announcement",
		Text:    msg.Content,
	})
}
