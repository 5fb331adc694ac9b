package huddlews

import (
	"context"
	"fmt"
	"sync"

	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
)

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]huddledirectory.User
	members map[string]map[string]bool // groupID -> userID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:   map[string]huddledirectory.User{},
		members: map[string]map[string]bool{},
	}
}

func (f *fakeDirectory) addUser(userID string, groups ...string) *fakeDirectory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = huddledirectory.User{UserID: userID}
	for _, g := range groups {
		if f.members[g] == nil {
			f.members[g] = map[string]bool{}
		}
		f.members[g][userID] = true
	}
	return f
}

func (f *fakeDirectory) ban(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	u.UserID = userID
	u.Banned = true
	f.users[userID] = u
}

func (f *fakeDirectory) GetUser(_ context.Context, userID string) (*huddledirectory.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("%v: %w", userID, huddledirectory.ErrUserNotFound)
	}
	return &u, nil
}

func (f *fakeDirectory) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID][userID], nil
}

func (f *fakeDirectory) GroupsOf(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var groups []string
	for g, users := range f.members {
		if users[userID] {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

type fakeConnections struct {
	mu    sync.Mutex
	items map[string]connectiondao.Connection
}

func (f *fakeConnections) Put(_ context.Context, conn connectiondao.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string]connectiondao.Connection{}
	}
	f.items[conn.ConnectionID] = conn
	return nil
}

func (f *fakeConnections) Get(_ context.Context, connectionID string) (*connectiondao.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.items[connectionID]
	if !ok {
		return nil, fmt.Errorf("%v: %w", connectionID, connectiondao.ErrNotFound)
	}
	return &conn, nil
}

func (f *fakeConnections) Delete(_ context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, connectionID)
	return nil
}

type fakeMemberships struct {
	mu    sync.Mutex
	items map[string]membershipdao.Membership
}

func (f *fakeMemberships) Put(_ context.Context, m membershipdao.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string]membershipdao.Membership{}
	}
	f.items[m.MembershipID] = m
	return nil
}

func (f *fakeMemberships) Delete(_ context.Context, membershipID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, membershipID)
	return nil
}

func (f *fakeMemberships) QueryByGroup(_ context.Context, groupID string) ([]membershipdao.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ms []membershipdao.Membership
	for _, m := range f.items {
		if m.GroupID == groupID {
			ms = append(ms, m)
		}
	}
	return ms, nil
}

func (f *fakeMemberships) DeleteByConnection(_ context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.items {
		if m.ConnectionID == connectionID {
			delete(f.items, id)
		}
	}
	return nil
}

func newDurable(directory UserDirectory) *DurableRegistry {
	return &DurableRegistry{
		Connections: &fakeConnections{},
		Memberships: &fakeMemberships{},
		Directory:   directory,
	}
}

// fakeTransport records deliveries. Connections in gone report ErrPeerGone;
// connections in failing report a plain error; connections in slow block
// until the send context ends.
type fakeTransport struct {
	mu        sync.Mutex
	delivered map[string][][]byte
	gone      map[string]bool
	failing   map[string]bool
	slow      map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		delivered: map[string][][]byte{},
		gone:      map[string]bool{},
		failing:   map[string]bool{},
		slow:      map[string]bool{},
	}
}

func (f *fakeTransport) Send(ctx context.Context, member membershipdao.Membership, payload []byte) error {
	f.mu.Lock()
	gone, failing, slow := f.gone[member.ConnectionID], f.failing[member.ConnectionID], f.slow[member.ConnectionID]
	f.mu.Unlock()

	switch {
	case gone:
		return fmt.Errorf("%v: %w", member.ConnectionID, ErrPeerGone)
	case failing:
		return fmt.Errorf("%v: boom", member.ConnectionID)
	case slow:
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[member.ConnectionID] = append(f.delivered[member.ConnectionID], payload)
	return nil
}

func (f *fakeTransport) count(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered[connID])
}

func connectionIDs(ms []membershipdao.Membership) []string {
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ConnectionID)
	}
	return ids
}
