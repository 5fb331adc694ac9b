package huddlews

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 50
	defaultSendTimeout = 5 * time.Second
)

// ErrPeerGone means the connection no longer exists on the transport side.
var ErrPeerGone = errors.New("peer gone")

// Transport delivers one payload to one connection.
type Transport interface {
	Send(ctx context.Context, member membershipdao.Membership, payload []byte) error
}

type BroadcastResult struct {
	Delivered int
	Pruned    int
	Failed    int
}

// Broadcaster fans a payload out to every member of a room.
type Broadcaster struct {
	Registry    Registry
	Transport   Transport
	Logger      zerolog.Logger
	Metrics     huddlecli.Metrics
	Name        string        // transport name for metric dimensions
	Concurrency int           // max concurrent sends (default 50)
	SendTimeout time.Duration // per-send bound (default 5s)
}

// Broadcast sends payload to every current member of groupID. Sends are
// independent; a failed or slow peer never affects the others. Peers reported
// gone are disconnected from the registry. The only error returned is a
// failure to read the room.
func (b *Broadcaster) Broadcast(ctx context.Context, groupID string, payload []byte) (BroadcastResult, error) {
	started := time.Now()

	members, err := b.Registry.MembersOf(ctx, groupID)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("listing members of %v: %w", groupID, err)
	}
	if len(members) == 0 {
		return BroadcastResult{}, nil
	}

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var delivered, pruned, failed int64
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, member := range members {
		member := member
		g.Go(func() error {
			switch err := b.send(ctx, member, payload); {
			case err == nil:
				atomic.AddInt64(&delivered, 1)
			case errors.Is(err, ErrPeerGone):
				atomic.AddInt64(&pruned, 1)
				b.prune(ctx, member.ConnectionID)
			default:
				atomic.AddInt64(&failed, 1)
				b.Logger.Warn().Err(err).
					Str("group_id", groupID).
					Str("connection_id", member.ConnectionID).
					Msg("failed to deliver")
			}
			return nil
		})
	}
	_ = g.Wait()

	result := BroadcastResult{
		Delivered: int(delivered),
		Pruned:    int(pruned),
		Failed:    int(failed),
	}

	b.Logger.Debug().
		Str("group_id", groupID).
		Int("delivered", result.Delivered).
		Int("pruned", result.Pruned).
		Int("failed", result.Failed).
		Msg("broadcast complete")

	dims := map[huddlecli.DimensionName]string{huddlecli.TransportDimension: b.Name}
	b.Metrics.Count(ctx, huddlecli.BroadcastDeliveredMetric, result.Delivered, dims)
	b.Metrics.Count(ctx, huddlecli.BroadcastPrunedMetric, result.Pruned, dims)
	b.Metrics.Count(ctx, huddlecli.BroadcastFailedMetric, result.Failed, dims)
	b.Metrics.Timing(ctx, huddlecli.BroadcastTimeMetric, started, dims)

	return result, nil
}

func (b *Broadcaster) send(ctx context.Context, member membershipdao.Membership, payload []byte) error {
	timeout := b.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return b.Transport.Send(ctx, member, payload)
}

func (b *Broadcaster) prune(ctx context.Context, connID string) {
	b.Logger.Info().Str("connection_id", connID).Msg("connection gone, cleaning up")
	if err := b.Registry.Disconnect(ctx, connID); err != nil {
		b.Logger.Error().Err(err).Str("connection_id", connID).Msg("failed to disconnect gone connection")
	}
}
