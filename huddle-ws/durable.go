package huddlews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
)

type ConnectionStore interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	Get(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

type MembershipStore interface {
	Put(ctx context.Context, m membershipdao.Membership) error
	Delete(ctx context.Context, membershipID string) error
	QueryByGroup(ctx context.Context, groupID string) ([]membershipdao.Membership, error)
	DeleteByConnection(ctx context.Context, connectionID string) error
}

// DurableRegistry reads and writes DynamoDB on every call. Each inbound event
// in the gateway shape is a fresh invocation, so nothing is cached; per-key
// put and delete atomicity replaces in-process locking.
type DurableRegistry struct {
	Connections ConnectionStore
	Memberships MembershipStore
	Directory   UserDirectory
	TTL         time.Duration

	now func() time.Time
}

var _ Registry = (*DurableRegistry)(nil)

func (r *DurableRegistry) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *DurableRegistry) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultTTL
}

func (r *DurableRegistry) Connect(ctx context.Context, userID string, meta ConnectMeta) (string, error) {
	if err := admit(ctx, r.Directory, userID); err != nil {
		return "", err
	}

	connID := meta.ConnectionID
	if connID == "" {
		connID = uuid.NewString()
	}
	now := r.clock()
	conn := connectiondao.Connection{
		ConnectionID: connID,
		UserID:       userID,
		Endpoint:     meta.Endpoint,
		ConnectedAt:  now.Unix(),
		TTL:          now.Add(r.ttl()).Unix(),
	}
	if err := r.Connections.Put(ctx, conn); err != nil {
		return "", err
	}
	return connID, nil
}

func (r *DurableRegistry) Lookup(ctx context.Context, connectionID string) (*connectiondao.Connection, error) {
	conn, err := r.Connections.Get(ctx, connectionID)
	if err != nil {
		if errors.Is(err, connectiondao.ErrNotFound) {
			return nil, fmt.Errorf("%v: %w", connectionID, ErrUnknownConnection)
		}
		return nil, err
	}
	if conn.Expired(r.clock()) {
		return nil, fmt.Errorf("%v expired: %w", connectionID, ErrUnknownConnection)
	}
	return conn, nil
}

func (r *DurableRegistry) BulkJoin(ctx context.Context, connectionID string, groupIDs []string) error {
	conn, err := r.Lookup(ctx, connectionID)
	if err != nil {
		return err
	}
	for _, groupID := range groupIDs {
		if err := r.put(ctx, conn, groupID); err != nil {
			return err
		}
	}
	return nil
}

func (r *DurableRegistry) Join(ctx context.Context, connectionID, groupID string) error {
	conn, err := r.Lookup(ctx, connectionID)
	if err != nil {
		return err
	}
	return r.put(ctx, conn, groupID)
}

func (r *DurableRegistry) put(ctx context.Context, conn *connectiondao.Connection, groupID string) error {
	now := r.clock()
	return r.Memberships.Put(ctx, membershipdao.Membership{
		MembershipID: membershipdao.ID(groupID, conn.ConnectionID),
		GroupID:      groupID,
		ConnectionID: conn.ConnectionID,
		UserID:       conn.UserID,
		Endpoint:     conn.Endpoint,
		JoinedAt:     now.Unix(),
		TTL:          conn.TTL,
	})
}

func (r *DurableRegistry) Leave(ctx context.Context, connectionID, groupID string) error {
	return r.Memberships.Delete(ctx, membershipdao.ID(groupID, connectionID))
}

// Disconnect deletes the connection first so joins racing with it fail their
// lookup. A join that already passed its lookup can leave one row behind; the
// broadcaster prunes it on the next send.
func (r *DurableRegistry) Disconnect(ctx context.Context, connectionID string) error {
	if err := r.Connections.Delete(ctx, connectionID); err != nil {
		return err
	}
	return r.Memberships.DeleteByConnection(ctx, connectionID)
}

func (r *DurableRegistry) MembersOf(ctx context.Context, groupID string) ([]membershipdao.Membership, error) {
	ms, err := r.Memberships.QueryByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	now := r.clock()
	live := ms[:0]
	for _, m := range ms {
		if m.Expired(now) {
			continue
		}
		live = append(live, m)
	}
	return live, nil
}
