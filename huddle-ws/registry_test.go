package huddlews

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type registryFactory func(directory UserDirectory, now func() time.Time) (Registry, func())

func registryFactories() map[string]registryFactory {
	return map[string]registryFactory{
		"durable": func(directory UserDirectory, now func() time.Time) (Registry, func()) {
			r := newDurable(directory)
			r.now = now
			return r, func() {}
		},
		"memory": func(directory UserDirectory, now func() time.Time) (Registry, func()) {
			r := NewMemoryRegistry(directory, zerolog.Nop())
			r.now = now
			return r, r.Close
		},
		"memory with fallback": func(directory UserDirectory, now func() time.Time) (Registry, func()) {
			fallback := newDurable(directory)
			fallback.now = now
			r := NewMemoryRegistry(directory, zerolog.Nop())
			r.Fallback = fallback
			r.NodeID = "node-1"
			r.now = now
			return r, r.Close
		},
	}
}

// TestRegistry runs the same contract against every registry shape.
func TestRegistry(t *testing.T) {
	for name, factory := range registryFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			testRegistryContract(t, factory)
		})
	}
}

func testRegistryContract(t *testing.T, factory registryFactory) {
	ctx := context.Background()

	setup := func(t *testing.T) (Registry, *fakeDirectory, *clock) {
		directory := newFakeDirectory().
			addUser("alice", "g1", "g2").
			addUser("bob", "g1")
		c := &clock{now: time.Unix(1_700_000_000, 0)}
		r, cleanup := factory(directory, c.Now)
		t.Cleanup(cleanup)
		return r, directory, c
	}

	t.Run("rejects unknown and banned users", func(t *testing.T) {
		r, directory, _ := setup(t)

		_, err := r.Connect(ctx, "mallory", ConnectMeta{})
		assert.True(t, errors.Is(err, ErrUnknownUser))
		assert.True(t, errors.Is(err, ErrAuthRejected))

		_, err = r.Connect(ctx, "", ConnectMeta{})
		assert.True(t, errors.Is(err, ErrUnknownUser))

		directory.ban("bob")
		_, err = r.Connect(ctx, "bob", ConnectMeta{})
		assert.True(t, errors.Is(err, ErrBanned))
		assert.True(t, errors.Is(err, ErrAuthRejected))
	})

	t.Run("connect and join places the user in every group", func(t *testing.T) {
		r, directory, _ := setup(t)

		connID, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)
		assert.NotEmpty(t, connID)

		for _, g := range []string{"g1", "g2"} {
			ms, err := r.MembersOf(ctx, g)
			assert.NoError(t, err)
			assert.Len(t, ms, 1)
			assert.Equal(t, connID, ms[0].ConnectionID)
			assert.Equal(t, "alice", ms[0].UserID)
			assert.Equal(t, g, ms[0].GroupID)
		}

		conn, err := r.Lookup(ctx, connID)
		assert.NoError(t, err)
		assert.Equal(t, "alice", conn.UserID)
	})

	t.Run("uses the transport connection id when given", func(t *testing.T) {
		r, _, _ := setup(t)

		connID, err := r.Connect(ctx, "alice", ConnectMeta{ConnectionID: "abc=", Endpoint: "node-1"})
		assert.NoError(t, err)
		assert.Equal(t, "abc=", connID)
	})

	t.Run("join is idempotent", func(t *testing.T) {
		r, _, _ := setup(t)

		connID, err := r.Connect(ctx, "alice", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)
		assert.NoError(t, r.Join(ctx, connID, "g1"))
		assert.NoError(t, r.Join(ctx, connID, "g1"))
		assert.NoError(t, r.BulkJoin(ctx, connID, []string{"g1", "g1"}))

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Len(t, ms, 1)
	})

	t.Run("leave is idempotent", func(t *testing.T) {
		r, _, _ := setup(t)

		connID, err := r.Connect(ctx, "alice", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)
		assert.NoError(t, r.Join(ctx, connID, "g1"))
		assert.NoError(t, r.Leave(ctx, connID, "g1"))
		assert.NoError(t, r.Leave(ctx, connID, "g1"))
		assert.NoError(t, r.Leave(ctx, connID, "never-joined"))

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Empty(t, ms)
	})

	t.Run("disconnect removes the connection from every room", func(t *testing.T) {
		r, directory, _ := setup(t)

		alice, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)
		bob, err := ConnectAndJoin(ctx, r, directory, "bob", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)

		assert.NoError(t, r.Disconnect(ctx, alice))

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Equal(t, []string{bob}, connectionIDs(ms))

		ms, err = r.MembersOf(ctx, "g2")
		assert.NoError(t, err)
		assert.Empty(t, ms)

		assert.NoError(t, r.Disconnect(ctx, alice))

		err = r.Join(ctx, alice, "g1")
		assert.True(t, errors.Is(err, ErrUnknownConnection))

		ms, err = r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Equal(t, []string{bob}, connectionIDs(ms))

		_, err = r.Lookup(ctx, alice)
		assert.True(t, errors.Is(err, ErrUnknownConnection))
	})

	t.Run("expired connections drop out", func(t *testing.T) {
		r, directory, c := setup(t)

		connID, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)

		c.Advance(DefaultTTL + time.Second)

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Empty(t, ms)

		_, err = r.Lookup(ctx, connID)
		assert.True(t, errors.Is(err, ErrUnknownConnection))

		err = r.Join(ctx, connID, "g1")
		assert.True(t, errors.Is(err, ErrUnknownConnection))
	})

	t.Run("concurrent joins and disconnects converge", func(t *testing.T) {
		r, directory, _ := setup(t)
		for i := 0; i < 20; i++ {
			directory.addUser(fmt.Sprintf("u%02d", i), "g1")
		}

		ids := make([]string, 20)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				connID, err := ConnectAndJoin(ctx, r, directory, fmt.Sprintf("u%02d", i), ConnectMeta{Endpoint: "node-1"})
				assert.NoError(t, err)
				ids[i] = connID
			}()
		}
		wg.Wait()

		for i := 0; i < 20; i += 2 {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, r.Disconnect(ctx, ids[i]))
			}()
		}
		wg.Wait()

		var want []string
		for i := 1; i < 20; i += 2 {
			want = append(want, ids[i])
		}
		sort.Strings(want)

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		got := connectionIDs(ms)
		sort.Strings(got)
		assert.Equal(t, want, got)
	})
}

func TestMemoryRegistry_Fallback(t *testing.T) {
	ctx := context.Background()
	directory := newFakeDirectory().addUser("alice", "g1").addUser("bob", "g1")
	fallback := newDurable(directory)

	before := NewMemoryRegistry(directory, zerolog.Nop())
	before.Fallback = fallback
	before.NodeID = "node-1"

	alice, err := ConnectAndJoin(ctx, before, directory, "alice", ConnectMeta{})
	assert.NoError(t, err)
	_, err = ConnectAndJoin(ctx, fallback, directory, "bob", ConnectMeta{Endpoint: "node-2"})
	assert.NoError(t, err)
	before.Close()

	t.Run("a cold room is served from this node's durable rows", func(t *testing.T) {
		after := NewMemoryRegistry(directory, zerolog.Nop())
		after.Fallback = fallback
		after.NodeID = "node-1"
		defer after.Close()

		ms, err := after.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Equal(t, []string{alice}, connectionIDs(ms))

		// pruning a stale row reaches durable storage
		assert.NoError(t, after.Disconnect(ctx, alice))
		ms, err = after.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Empty(t, ms)
	})
}

func TestMemoryRegistry_Reap(t *testing.T) {
	ctx := context.Background()
	directory := newFakeDirectory().addUser("alice", "g1").addUser("bob", "g1")
	c := &clock{now: time.Unix(1_700_000_000, 0)}

	r := NewMemoryRegistry(directory, zerolog.Nop())
	r.now = c.Now
	defer r.Close()

	alice, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{})
	assert.NoError(t, err)
	bob, err := ConnectAndJoin(ctx, r, directory, "bob", ConnectMeta{})
	assert.NoError(t, err)

	c.Advance(DefaultTTL / 2)
	r.Touch(bob)
	c.Advance(DefaultTTL/2 + time.Second)

	n, err := r.Reap(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Lookup(ctx, alice)
	assert.True(t, errors.Is(err, ErrUnknownConnection))

	ms, err := r.MembersOf(ctx, "g1")
	assert.NoError(t, err)
	assert.Equal(t, []string{bob}, connectionIDs(ms))
}

func TestMemoryRegistry_Close(t *testing.T) {
	ctx := context.Background()
	directory := newFakeDirectory().addUser("alice", "g1")

	r := NewMemoryRegistry(directory, zerolog.Nop())
	connID, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{})
	assert.NoError(t, err)

	r.Close()
	r.Close()

	_, err = r.Connect(ctx, "alice", ConnectMeta{})
	assert.True(t, errors.Is(err, ErrRegistryClosed))

	_, err = r.MembersOf(ctx, "g1")
	assert.True(t, errors.Is(err, ErrRegistryClosed))

	err = r.Join(ctx, connID, "g2")
	assert.True(t, errors.Is(err, ErrRegistryClosed))
}

func (r *MemoryRegistry) roomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func TestMemoryRegistry_RoomsRetire(t *testing.T) {
	ctx := context.Background()

	t.Run("emptied rooms release their actor", func(t *testing.T) {
		directory := newFakeDirectory().addUser("alice")
		r := NewMemoryRegistry(directory, zerolog.Nop())
		defer r.Close()

		before := runtime.NumGoroutine()
		for i := 0; i < 200; i++ {
			groupID := fmt.Sprintf("g%v", i)
			connID, err := r.Connect(ctx, "alice", ConnectMeta{})
			assert.NoError(t, err)
			assert.NoError(t, r.Join(ctx, connID, groupID))
			assert.NoError(t, r.Join(ctx, connID, "shared"))
			if i%2 == 0 {
				assert.NoError(t, r.Leave(ctx, connID, groupID))
			}
			assert.NoError(t, r.Disconnect(ctx, connID))
		}

		assert.Equal(t, 0, r.roomCount())
		assert.Empty(t, r.claims)

		deadline := time.Now().Add(time.Second)
		for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		assert.True(t, runtime.NumGoroutine() <= before)
	})

	t.Run("a room stays while anyone is in it", func(t *testing.T) {
		directory := newFakeDirectory().addUser("alice", "g1").addUser("bob", "g1")
		r := NewMemoryRegistry(directory, zerolog.Nop())
		defer r.Close()

		alice, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{})
		assert.NoError(t, err)
		bob, err := ConnectAndJoin(ctx, r, directory, "bob", ConnectMeta{})
		assert.NoError(t, err)

		assert.NoError(t, r.Leave(ctx, alice, "g1"))
		assert.Equal(t, 1, r.roomCount())

		assert.NoError(t, r.Disconnect(ctx, bob))
		assert.Equal(t, 0, r.roomCount())

		// rejoining a retired room starts a fresh actor
		assert.NoError(t, r.Join(ctx, alice, "g1"))
		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Equal(t, []string{alice}, connectionIDs(ms))
	})

	t.Run("an emptied room reads durable rows again", func(t *testing.T) {
		directory := newFakeDirectory().addUser("alice", "g1").addUser("bob", "g1")
		fallback := newDurable(directory)
		r := NewMemoryRegistry(directory, zerolog.Nop())
		r.Fallback = fallback
		r.NodeID = "node-1"
		defer r.Close()

		alice, err := ConnectAndJoin(ctx, r, directory, "alice", ConnectMeta{})
		assert.NoError(t, err)
		assert.NoError(t, r.Leave(ctx, alice, "g1"))
		assert.Equal(t, 0, r.roomCount())

		// a row another process left for this node
		bob, err := ConnectAndJoin(ctx, fallback, directory, "bob", ConnectMeta{Endpoint: "node-1"})
		assert.NoError(t, err)

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Equal(t, []string{bob}, connectionIDs(ms))
	})

	t.Run("concurrent joins and leaves converge", func(t *testing.T) {
		directory := newFakeDirectory()
		for i := 0; i < 20; i++ {
			directory.addUser(fmt.Sprintf("u%v", i))
		}
		r := NewMemoryRegistry(directory, zerolog.Nop())
		defer r.Close()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				connID, err := r.Connect(ctx, fmt.Sprintf("u%v", i), ConnectMeta{})
				assert.NoError(t, err)
				for j := 0; j < 50; j++ {
					assert.NoError(t, r.Join(ctx, connID, "g1"))
					assert.NoError(t, r.Leave(ctx, connID, "g1"))
				}
				assert.NoError(t, r.Join(ctx, connID, "g1"))
			}()
		}
		wg.Wait()

		ms, err := r.MembersOf(ctx, "g1")
		assert.NoError(t, err)
		assert.Len(t, ms, 20)
	})
}
