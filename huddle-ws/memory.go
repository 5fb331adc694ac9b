package huddlews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
	"github.com/rs/zerolog"
)

var (
	ErrRegistryClosed = errors.New("registry closed")

	errRoomRetired = errors.New("room retired")
)

// MemoryRegistry keeps connections and room membership in process for the
// long-lived socket server.
//
// Connection records and each connection's room set live under one mutex.
// The per-room member tables are owned by one actor goroutine per room; every
// change to a room goes through that actor, which reconciles the room table
// against the connection's room set. Ops may therefore arrive in any order
// and the table still converges. An actor whose room is empty and unclaimed
// by any connection retires, so rooms live only while someone is in them.
//
// Fallback, when set, mirrors writes best-effort to durable storage and
// answers MembersOf for rooms this process has not materialized yet, e.g.
// right after a restart. Only rows stamped with NodeID are returned, so the
// broadcaster prunes them through this process's own transport.
type MemoryRegistry struct {
	Directory UserDirectory
	Fallback  Registry
	NodeID    string
	TTL       time.Duration
	Logger    zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*memConn
	rooms  map[string]*room
	claims map[string]int // connections whose room set names the group
	closed bool
	wg     sync.WaitGroup

	now func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

type memConn struct {
	conn  connectiondao.Connection
	rooms map[string]struct{}
}

type room struct {
	ops     chan roomOp
	stop    chan struct{}
	retired chan struct{}
}

type roomOp struct {
	connectionID string
	snapshot     chan []membershipdao.Membership
	done         chan struct{}
}

func NewMemoryRegistry(directory UserDirectory, logger zerolog.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		Directory: directory,
		Logger:    logger,
		conns:     map[string]*memConn{},
		rooms:     map[string]*room{},
		claims:    map[string]int{},
	}
}

func (r *MemoryRegistry) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *MemoryRegistry) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultTTL
}

func (r *MemoryRegistry) Connect(ctx context.Context, userID string, meta ConnectMeta) (string, error) {
	if err := admit(ctx, r.Directory, userID); err != nil {
		return "", err
	}

	connID := meta.ConnectionID
	if connID == "" {
		connID = uuid.NewString()
	}
	endpoint := meta.Endpoint
	if endpoint == "" {
		endpoint = r.NodeID
	}
	now := r.clock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}
	r.conns[connID] = &memConn{
		conn: connectiondao.Connection{
			ConnectionID: connID,
			UserID:       userID,
			Endpoint:     endpoint,
			ConnectedAt:  now.Unix(),
			TTL:          now.Add(r.ttl()).Unix(),
		},
		rooms: map[string]struct{}{},
	}
	r.mu.Unlock()

	if r.Fallback != nil {
		if _, err := r.Fallback.Connect(ctx, userID, ConnectMeta{ConnectionID: connID, Endpoint: endpoint}); err != nil {
			r.Logger.Warn().Err(err).Str("connection_id", connID).Msg("failed to mirror connection")
		}
	}
	return connID, nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, connectionID string) (*connectiondao.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connectionID]
	if !ok || c.conn.Expired(r.clock()) {
		return nil, fmt.Errorf("%v: %w", connectionID, ErrUnknownConnection)
	}
	conn := c.conn
	return &conn, nil
}

// Touch extends the TTL of a live connection, typically on heartbeat.
func (r *MemoryRegistry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connectionID]; ok {
		c.conn.TTL = r.clock().Add(r.ttl()).Unix()
	}
}

func (r *MemoryRegistry) BulkJoin(ctx context.Context, connectionID string, groupIDs []string) error {
	for _, groupID := range groupIDs {
		if err := r.Join(ctx, connectionID, groupID); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRegistry) Join(ctx context.Context, connectionID, groupID string) error {
	r.mu.Lock()
	c, ok := r.conns[connectionID]
	if !ok || c.conn.Expired(r.clock()) {
		r.mu.Unlock()
		return fmt.Errorf("%v: %w", connectionID, ErrUnknownConnection)
	}
	r.claimLocked(c, groupID)
	r.mu.Unlock()

	if err := r.joinRoom(ctx, connectionID, groupID); err != nil {
		return err
	}
	if r.Fallback != nil {
		if err := r.Fallback.Join(ctx, connectionID, groupID); err != nil {
			r.Logger.Warn().Err(err).Str("connection_id", connectionID).Str("group_id", groupID).Msg("failed to mirror join")
		}
	}
	return nil
}

func (r *MemoryRegistry) Leave(ctx context.Context, connectionID, groupID string) error {
	r.mu.Lock()
	if c, ok := r.conns[connectionID]; ok {
		r.unclaimLocked(c, groupID)
	}
	rm := r.rooms[groupID]
	r.mu.Unlock()

	if rm != nil {
		if err := r.send(ctx, rm, roomOp{connectionID: connectionID}); err != nil && !errors.Is(err, errRoomRetired) {
			return err
		}
	}
	if r.Fallback != nil {
		if err := r.Fallback.Leave(ctx, connectionID, groupID); err != nil {
			r.Logger.Warn().Err(err).Str("connection_id", connectionID).Str("group_id", groupID).Msg("failed to mirror leave")
		}
	}
	return nil
}

// Disconnect returns once every room the connection was in has dropped it.
func (r *MemoryRegistry) Disconnect(ctx context.Context, connectionID string) error {
	r.mu.Lock()
	var rooms []*room
	if c, ok := r.conns[connectionID]; ok {
		delete(r.conns, connectionID)
		for groupID := range c.rooms {
			r.unclaimLocked(c, groupID)
			if rm := r.rooms[groupID]; rm != nil {
				rooms = append(rooms, rm)
			}
		}
	}
	r.mu.Unlock()

	for _, rm := range rooms {
		if err := r.send(ctx, rm, roomOp{connectionID: connectionID}); err != nil && !errors.Is(err, errRoomRetired) {
			return err
		}
	}
	if r.Fallback != nil {
		if err := r.Fallback.Disconnect(ctx, connectionID); err != nil {
			r.Logger.Warn().Err(err).Str("connection_id", connectionID).Msg("failed to mirror disconnect")
		}
	}
	return nil
}

func (r *MemoryRegistry) MembersOf(ctx context.Context, groupID string) ([]membershipdao.Membership, error) {
	for {
		r.mu.Lock()
		rm := r.rooms[groupID]
		r.mu.Unlock()

		if rm == nil {
			return r.fallbackMembers(ctx, groupID)
		}

		op := roomOp{snapshot: make(chan []membershipdao.Membership, 1)}
		err := r.send(ctx, rm, op)
		if errors.Is(err, errRoomRetired) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return <-op.snapshot, nil
	}
}

func (r *MemoryRegistry) fallbackMembers(ctx context.Context, groupID string) ([]membershipdao.Membership, error) {
	if r.Fallback == nil {
		return nil, nil
	}
	ms, err := r.Fallback.MembersOf(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if r.NodeID == "" {
		return ms, nil
	}
	var local []membershipdao.Membership
	for _, m := range ms {
		if m.Endpoint == r.NodeID {
			local = append(local, m)
		}
	}
	return local, nil
}

// Reap disconnects every connection whose TTL has passed and returns how many
// were removed.
func (r *MemoryRegistry) Reap(ctx context.Context) (int, error) {
	now := r.clock()
	r.mu.Lock()
	var expired []string
	for id, c := range r.conns {
		if c.conn.Expired(now) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if err := r.Disconnect(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// Close stops every room actor. The registry rejects further use.
func (r *MemoryRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, rm := range r.rooms {
		close(rm.stop)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *MemoryRegistry) roomLocked(groupID string) (*room, error) {
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if rm, ok := r.rooms[groupID]; ok {
		return rm, nil
	}
	rm := &room{
		ops:     make(chan roomOp),
		stop:    make(chan struct{}),
		retired: make(chan struct{}),
	}
	r.rooms[groupID] = rm
	r.wg.Add(1)
	go r.runRoom(groupID, rm)
	return rm, nil
}

// joinRoom delivers a join to the room's actor, starting a new actor when the
// previous one retired before taking the op. A join whose claim was dropped
// meanwhile by Leave or Disconnect is complete as is.
func (r *MemoryRegistry) joinRoom(ctx context.Context, connectionID, groupID string) error {
	for {
		r.mu.Lock()
		c, ok := r.conns[connectionID]
		if !ok {
			r.mu.Unlock()
			return nil
		}
		if _, claimed := c.rooms[groupID]; !claimed {
			r.mu.Unlock()
			return nil
		}
		rm, err := r.roomLocked(groupID)
		r.mu.Unlock()
		if err != nil {
			return err
		}

		err = r.send(ctx, rm, roomOp{connectionID: connectionID})
		if !errors.Is(err, errRoomRetired) {
			return err
		}
	}
}

func (r *MemoryRegistry) claimLocked(c *memConn, groupID string) {
	if _, ok := c.rooms[groupID]; ok {
		return
	}
	c.rooms[groupID] = struct{}{}
	r.claims[groupID]++
}

func (r *MemoryRegistry) unclaimLocked(c *memConn, groupID string) {
	if _, ok := c.rooms[groupID]; !ok {
		return
	}
	delete(c.rooms, groupID)
	if r.claims[groupID]--; r.claims[groupID] <= 0 {
		delete(r.claims, groupID)
	}
}

// retire removes an empty room's actor unless a connection still claims the
// room, in which case a join is on its way.
func (r *MemoryRegistry) retire(groupID string, rm *room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.rooms[groupID] != rm || r.claims[groupID] > 0 {
		return false
	}
	delete(r.rooms, groupID)
	close(rm.retired)
	return true
}

// send hands op to the room's actor and waits for it. An op the actor never
// took because it retired fails with errRoomRetired.
func (r *MemoryRegistry) send(ctx context.Context, rm *room, op roomOp) error {
	op.done = make(chan struct{})
	select {
	case rm.ops <- op:
	case <-rm.retired:
		return errRoomRetired
	case <-rm.stop:
		return ErrRegistryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-op.done:
		return nil
	case <-rm.stop:
		return ErrRegistryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *MemoryRegistry) runRoom(groupID string, rm *room) {
	defer r.wg.Done()

	members := map[string]membershipdao.Membership{}
	for {
		select {
		case <-rm.stop:
			return

		case op := <-rm.ops:
			if op.snapshot != nil {
				op.snapshot <- r.live(members)
				close(op.done)
				continue
			}
			if m, ok := r.membership(groupID, op.connectionID); ok {
				if _, exists := members[op.connectionID]; !exists {
					members[op.connectionID] = m
				}
			} else {
				delete(members, op.connectionID)
			}
			retired := len(members) == 0 && r.retire(groupID, rm)
			close(op.done)
			if retired {
				return
			}
		}
	}
}

// live copies the members whose connection has not expired, carrying the
// connection's current TTL.
func (r *MemoryRegistry) live(members map[string]membershipdao.Membership) []membershipdao.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	out := make([]membershipdao.Membership, 0, len(members))
	for id, m := range members {
		c, ok := r.conns[id]
		if !ok || c.conn.Expired(now) {
			continue
		}
		m.TTL = c.conn.TTL
		out = append(out, m)
	}
	return out
}

// membership reports the row a connection should have in a room right now.
func (r *MemoryRegistry) membership(groupID, connectionID string) (membershipdao.Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connectionID]
	if !ok {
		return membershipdao.Membership{}, false
	}
	if _, in := c.rooms[groupID]; !in {
		return membershipdao.Membership{}, false
	}
	return membershipdao.Membership{
		MembershipID: membershipdao.ID(groupID, connectionID),
		GroupID:      groupID,
		ConnectionID: connectionID,
		UserID:       c.conn.UserID,
		Endpoint:     c.conn.Endpoint,
		JoinedAt:     r.clock().Unix(),
		TTL:          c.conn.TTL,
	}, true
}
