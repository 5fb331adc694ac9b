package huddlechat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/huddle-events/huddle-core/huddle-chat/chatdao"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlenotify "github.com/huddle-events/huddle-core/huddle-notify"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
)

type fakeStore struct {
	mu        sync.Mutex
	messages  map[string]chatdao.Message
	receipts  map[string]chatdao.Receipt
	reactions map[string]chatdao.Reaction
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:  map[string]chatdao.Message{},
		receipts:  map[string]chatdao.Receipt{},
		reactions: map[string]chatdao.Reaction{},
	}
}

func (f *fakeStore) PutMessage(_ context.Context, m chatdao.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.MessageID] = m
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, messageID string) (*chatdao.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %v: %w", messageID, chatdao.ErrNotFound)
	}
	return &m, nil
}

func (f *fakeStore) hasMessage(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[messageID]
	return ok
}

func (f *fakeStore) PutReceipt(_ context.Context, r chatdao.Receipt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ReceiptID = chatdao.ReceiptID(r.MessageID, r.UserID)
	if _, ok := f.receipts[r.ReceiptID]; ok {
		return false, nil
	}
	f.receipts[r.ReceiptID] = r
	return true, nil
}

func (f *fakeStore) ToggleReaction(_ context.Context, r chatdao.Reaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ReactionID = chatdao.ReactionID(r.MessageID, r.UserID, r.Emoji)
	if _, ok := f.reactions[r.ReactionID]; ok {
		delete(f.reactions, r.ReactionID)
		return false, nil
	}
	f.reactions[r.ReactionID] = r
	return true, nil
}

func (f *fakeStore) ReceiptsOf(_ context.Context, messageID string) ([]chatdao.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var rs []chatdao.Receipt
	for _, r := range f.receipts {
		if r.MessageID == messageID {
			rs = append(rs, r)
		}
	}
	return rs, nil
}

func (f *fakeStore) ReactionsOf(_ context.Context, messageID string) ([]chatdao.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var rs []chatdao.Reaction
	for _, r := range f.reactions {
		if r.MessageID == messageID {
			rs = append(rs, r)
		}
	}
	return rs, nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]huddledirectory.User
	members map[string][]string
	err     error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:   map[string]huddledirectory.User{},
		members: map[string][]string{},
	}
}

func (f *fakeDirectory) add(groupID, userID, email string) *fakeDirectory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = huddledirectory.User{UserID: userID, Email: email, EmailEnabled: email != ""}
	f.members[groupID] = append(f.members[groupID], userID)
	return f
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
	if f.err != nil {
		return false, f.err
	}
	for _, u := range f.members[groupID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDirectory) MembersOf(_ context.Context, groupID string) ([]huddledirectory.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ms []huddledirectory.GroupMember
	for _, u := range f.members[groupID] {
		ms = append(ms, huddledirectory.GroupMember{
			MemberID: huddledirectory.MemberID(groupID, u),
			GroupID:  groupID,
			UserID:   u,
		})
	}
	return ms, nil
}

func (f *fakeDirectory) GroupsOf(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var groups []string
	for g, users := range f.members {
		for _, u := range users {
			if u == userID {
				groups = append(groups, g)
			}
		}
	}
	return groups, nil
}

type broadcast struct {
	GroupID string
	Payload string
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	sent   []broadcast
	err    error
	before func(groupID string, payload []byte)
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, groupID string, payload []byte) (huddlews.BroadcastResult, error) {
	if f.before != nil {
		f.before(groupID, payload)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return huddlews.BroadcastResult{}, f.err
	}
	f.sent = append(f.sent, broadcast{GroupID: groupID, Payload: string(payload)})
	return huddlews.BroadcastResult{Delivered: 1}, nil
}

func (f *fakeBroadcaster) broadcasts() []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast(nil), f.sent...)
}

type fakeInvoker struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (f *fakeInvoker) Invoke(_ context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.err
}

type fakeEmailer struct {
	mu      sync.Mutex
	sent    []huddlenotify.Email
	failFor map[string]bool
}

func (f *fakeEmailer) SendEmail(_ context.Context, email huddlenotify.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[email.To] {
		return errors.New("mailbox full")
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeEmailer) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var to []string
	for _, e := range f.sent {
		to = append(to, e.To)
	}
	return to
}
