// Package huddledirectory is the user directory: identity and ban status,
// notification preferences, and durable group membership.
package huddledirectory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

var ErrUserNotFound = errors.New("user not found")

// Directory is the read side other packages depend on.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	MembersOf(ctx context.Context, groupID string) ([]GroupMember, error)
	GroupsOf(ctx context.Context, userID string) ([]string, error)
}

type DAO struct {
	users   *ddb.Table
	members *ddb.Table
}

var _ Directory = (*DAO)(nil)

func New(api dynamodbiface.DynamoDBAPI, usersTable, membersTable string) *DAO {
	client := ddb.New(api)
	return &DAO{
		users:   client.MustTable(usersTable, User{}),
		members: client.MustTable(membersTable, GroupMember{}),
	}
}

func (d *DAO) PutUser(ctx context.Context, user User) error {
	return d.users.Put(user).RunWithContext(ctx)
}

// GetUser returns ErrUserNotFound for unknown ids.
func (d *DAO) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := d.users.Get(userID).ScanWithContext(ctx, &user); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("user %v: %w", userID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user %v: %w", userID, err)
	}
	return &user, nil
}

func (d *DAO) AddMember(ctx context.Context, groupID, userID string) error {
	return d.members.Put(GroupMember{
		MemberID: MemberID(groupID, userID),
		GroupID:  groupID,
		UserID:   userID,
		JoinedAt: time.Now().Unix(),
	}).RunWithContext(ctx)
}

func (d *DAO) RemoveMember(ctx context.Context, groupID, userID string) error {
	return d.members.Delete(MemberID(groupID, userID)).RunWithContext(ctx)
}

func (d *DAO) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var member GroupMember
	if err := d.members.Get(MemberID(groupID, userID)).ScanWithContext(ctx, &member); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check membership of %v in %v: %w", userID, groupID, err)
	}
	return true, nil
}

func (d *DAO) MembersOf(ctx context.Context, groupID string) ([]GroupMember, error) {
	var members []GroupMember
	err := d.members.Query("#GroupID = ?", groupID).
		IndexName("GroupIndex").
		FindAllWithContext(ctx, &members)
	if err != nil {
		return nil, fmt.Errorf("failed to query members of group %v: %w", groupID, err)
	}
	return members, nil
}

func (d *DAO) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	var members []GroupMember
	err := d.members.Query("#UserID = ?", userID).
		IndexName("UserIndex").
		FindAllWithContext(ctx, &members)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups of user %v: %w", userID, err)
	}
	groups := make([]string, 0, len(members))
	for _, m := range members {
		groups = append(groups, m.GroupID)
	}
	return groups, nil
}
