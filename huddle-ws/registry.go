package huddlews

import (
	"context"
	"errors"
	"fmt"
	"time"

	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	"github.com/huddle-events/huddle-core/huddle-ws/connectiondao"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
)

// DefaultTTL bounds how long a connection or membership survives without an
// explicit disconnect.
const DefaultTTL = time.Hour

var (
	ErrAuthRejected      = errors.New("connection rejected")
	ErrUnknownUser       = fmt.Errorf("unknown user: %w", ErrAuthRejected)
	ErrBanned            = fmt.Errorf("user is banned: %w", ErrAuthRejected)
	ErrUnknownConnection = errors.New("unknown connection")
)

// Registry tracks which connections belong to which users and which rooms.
// MembersOf may return stale entries; Broadcaster prunes them.
type Registry interface {
	Connect(ctx context.Context, userID string, meta ConnectMeta) (string, error)
	BulkJoin(ctx context.Context, connectionID string, groupIDs []string) error
	Join(ctx context.Context, connectionID, groupID string) error
	Leave(ctx context.Context, connectionID, groupID string) error
	Disconnect(ctx context.Context, connectionID string) error
	MembersOf(ctx context.Context, groupID string) ([]membershipdao.Membership, error)
	Lookup(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
}

// ConnectMeta describes the transport side of a new connection. ConnectionID
// is set when the transport assigns ids itself (API Gateway); otherwise the
// registry generates one.
type ConnectMeta struct {
	ConnectionID string
	Endpoint     string
}

// UserDirectory is the slice of the directory the transports need.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*huddledirectory.User, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GroupsOf(ctx context.Context, userID string) ([]string, error)
}

func admit(ctx context.Context, directory UserDirectory, userID string) error {
	if userID == "" {
		return ErrUnknownUser
	}
	user, err := directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, huddledirectory.ErrUserNotFound) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to look up user %v: %w", userID, err)
	}
	if user.Banned {
		return ErrBanned
	}
	return nil
}

// ConnectAndJoin registers a connection and places it in every room the user
// belongs to.
func ConnectAndJoin(ctx context.Context, registry Registry, directory UserDirectory, userID string, meta ConnectMeta) (string, error) {
	connID, err := registry.Connect(ctx, userID, meta)
	if err != nil {
		return "", err
	}
	groups, err := directory.GroupsOf(ctx, userID)
	if err != nil {
		return connID, fmt.Errorf("failed to list groups of %v: %w", userID, err)
	}
	if err := registry.BulkJoin(ctx, connID, groups); err != nil {
		return connID, err
	}
	return connID, nil
}
