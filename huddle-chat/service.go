// Package huddlechat implements group chat: posting messages, reactions and
// read receipts, and the background jobs they trigger.
package huddlechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/huddle-events/huddle-core/huddle-chat/chatdao"
	huddledirectory "github.com/huddle-events/huddle-core/huddle-directory"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
	"github.com/rs/zerolog"
)

const maxEmojiLength = 10

var (
	ErrNotAMember      = errors.New("not a member of group")
	ErrEmptyContent    = errors.New("content must not be empty")
	ErrInvalidEmoji    = errors.New("emoji must be 1 to 10 characters")
	ErrMessageNotFound = errors.New("message not found")
)

type Store interface {
	PutMessage(ctx context.Context, m chatdao.Message) error
	GetMessage(ctx context.Context, messageID string) (*chatdao.Message, error)
	PutReceipt(ctx context.Context, r chatdao.Receipt) (bool, error)
	ReceiptsOf(ctx context.Context, messageID string) ([]chatdao.Receipt, error)
	ToggleReaction(ctx context.Context, r chatdao.Reaction) (bool, error)
	ReactionsOf(ctx context.Context, messageID string) ([]chatdao.Reaction, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, groupID string, payload []byte) (huddlews.BroadcastResult, error)
}

type Service struct {
	Store       Store
	Directory   huddledirectory.Directory
	Broadcaster Broadcaster
	Invoker     Invoker
	Logger      zerolog.Logger

	now   func() time.Time
	newID func() string
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

// PostMessage persists a message and fans it out to the room. The broadcast
// outcome never fails the post. Announcements additionally trigger an email
// to every other member, which the caller does not wait for.
func (s *Service) PostMessage(ctx context.Context, actorID, groupID, content string, isAnnouncement bool) (*chatdao.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	msg := chatdao.Message{
		MessageID:      s.id(),
		GroupID:        groupID,
		SenderID:       actorID,
		Content:        content,
		IsAnnouncement: isAnnouncement,
		CreatedAt:      s.clock().Unix(),
	}
	if err := s.Store.PutMessage(ctx, msg); err != nil {
		return nil, err
	}

	logger := s.Logger.With().Str("group_id", groupID).Str("message_id", msg.MessageID).Logger()

	if payload, err := huddlews.NewMessageEvent(groupID, msg); err != nil {
		logger.Error().Err(err).Msg("failed to encode new-message")
	} else if result, err := s.Broadcaster.Broadcast(ctx, groupID, payload); err != nil {
		logger.Error().Err(err).Msg("failed to broadcast new-message")
	} else {
		logger.Debug().Int("delivered", result.Delivered).Msg("new-message broadcast")
	}

	if isAnnouncement {
		job := Job{Kind: JobAnnouncement, GroupID: groupID, MessageID: msg.MessageID, UserID: actorID}
		if err := s.Invoker.Invoke(ctx, job); err != nil {
			logger.Error().Err(err).Msg("failed to invoke announcement job")
		}
	}

	return &msg, nil
}

// React toggles the actor's emoji on a message and reports whether it is now
// present.
func (s *Service) React(ctx context.Context, actorID, messageID, emoji string) (bool, error) {
	if n := utf8.RuneCountInString(emoji); n < 1 || n > maxEmojiLength {
		return false, ErrInvalidEmoji
	}
	msg, err := s.message(ctx, messageID)
	if err != nil {
		return false, err
	}
	if err := s.requireMember(ctx, msg.GroupID, actorID); err != nil {
		return false, err
	}

	return s.Store.ToggleReaction(ctx, chatdao.Reaction{
		MessageID: messageID,
		UserID:    actorID,
		Emoji:     emoji,
		CreatedAt: s.clock().Unix(),
	})
}

// ReactionCounts tallies a message's reactions by emoji. Callers check
// membership first, as React does.
func (s *Service) ReactionCounts(ctx context.Context, messageID string) (map[string]int, error) {
	reactions, err := s.Store.ReactionsOf(ctx, messageID)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, r := range reactions {
		counts[r.Emoji]++
	}
	return counts, nil
}

// MarkRead records the actor's receipt. Repeating it does not change the
// stored receipt. The read-updated broadcast is handed to the invoker and
// never fails the call.
func (s *Service) MarkRead(ctx context.Context, actorID, messageID string) error {
	msg, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, msg.GroupID, actorID); err != nil {
		return err
	}

	created, err := s.Store.PutReceipt(ctx, chatdao.Receipt{
		MessageID: messageID,
		GroupID:   msg.GroupID,
		UserID:    actorID,
		ReadAt:    s.clock().Unix(),
	})
	if err != nil {
		return err
	}

	job := Job{Kind: JobReadUpdated, GroupID: msg.GroupID, MessageID: messageID, UserID: actorID}
	if err := s.Invoker.Invoke(ctx, job); err != nil {
		s.Logger.Error().Err(err).
			Str("message_id", messageID).
			Bool("created", created).
			Msg("failed to invoke read-updated job")
	}
	return nil
}

func (s *Service) message(ctx context.Context, messageID string) (*chatdao.Message, error) {
	msg, err := s.Store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, chatdao.ErrNotFound) {
			return nil, fmt.Errorf("%v: %w", messageID, ErrMessageNotFound)
		}
		return nil, err
	}
	return msg, nil
}

func (s *Service) requireMember(ctx context.Context, groupID, userID string) error {
	ok, err := s.Directory.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership of %v in %v: %w", userID, groupID, err)
	}
	if !ok {
		return fmt.Errorf("%v in %v: %w", userID, groupID, ErrNotAMember)
	}
	return nil
}
