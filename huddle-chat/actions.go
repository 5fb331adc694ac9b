package huddlechat

import (
	"context"
	"errors"

	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
)

// Actions exposes the service to the websocket router. Validation and
// authorization failures are marked visible so the actor sees them.
type Actions struct {
	Service *Service
}

var _ huddlews.ChatActions = Actions{}

func (a Actions) PostMessage(ctx context.Context, actorID, groupID, content string, isAnnouncement bool) error {
	_, err := a.Service.PostMessage(ctx, actorID, groupID, content, isAnnouncement)
	return visible(err)
}

func (a Actions) MarkRead(ctx context.Context, actorID, messageID string) error {
	return visible(a.Service.MarkRead(ctx, actorID, messageID))
}

// React toggles the reaction and answers with the message's current counts.
// A failed tally still reports the toggle.
func (a Actions) React(ctx context.Context, actorID, messageID, emoji string) (*huddlews.ReactionsPayload, error) {
	added, err := a.Service.React(ctx, actorID, messageID, emoji)
	if err != nil {
		return nil, visible(err)
	}
	reply := &huddlews.ReactionsPayload{MessageID: messageID, Emoji: emoji, Added: added}
	counts, err := a.Service.ReactionCounts(ctx, messageID)
	if err != nil {
		a.Service.Logger.Warn().Err(err).Str("message_id", messageID).Msg("failed to count reactions")
		return reply, nil
	}
	reply.Counts = counts
	return reply, nil
}

func visible(err error) error {
	for _, target := range []error{ErrNotAMember, ErrEmptyContent, ErrInvalidEmoji, ErrMessageNotFound} {
		if errors.Is(err, target) {
			return huddlews.Visible(err)
		}
	}
	return err
}
