package huddlechat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type JobKind string

const (
	JobAnnouncement JobKind = "announcement"
	JobReadUpdated  JobKind = "read-updated"
)

// Job is a unit of background work. UserID is the user who caused it.
type Job struct {
	Kind      JobKind `json:"kind"`
	GroupID   string  `json:"groupId"`
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
}

// Invoker starts a job without waiting for it. Delivery is at most once and
// best effort: a job lost to a crash or a failed hand-off is not retried.
type Invoker interface {
	Invoke(ctx context.Context, job Job) error
}

type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

const defaultJobTimeout = 30 * time.Second

// LocalInvoker runs jobs on detached goroutines in this process. Cancelling
// the caller's context does not cancel the job; Timeout bounds it instead.
type LocalInvoker struct {
	Handler JobHandler
	Timeout time.Duration
	Logger  zerolog.Logger

	wg sync.WaitGroup
}

func (l *LocalInvoker) Invoke(ctx context.Context, job Job) error {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx = context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := l.Handler.HandleJob(ctx, job); err != nil {
			l.Logger.Error().Err(err).
				Str("kind", string(job.Kind)).
				Str("group_id", job.GroupID).
				Str("message_id", job.MessageID).
				Msg("job failed")
		}
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (l *LocalInvoker) Wait() {
	l.wg.Wait()
}

type Publisher interface {
	Send(ctx context.Context, topic string, payload interface{}) error
}

// StreamInvoker hands jobs to the chat jobs stream for the chat worker. Jobs
// for one group share a partition key and stay ordered.
type StreamInvoker struct {
	Publisher Publisher
}

func (s *StreamInvoker) Invoke(ctx context.Context, job Job) error {
	if err := s.Publisher.Send(ctx, job.GroupID, job); err != nil {
		return fmt.Errorf("failed to publish %v job: %w", job.Kind, err)
	}
	return nil
}
