package huddlews

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ChatActions are the direct chat actions a connected user can take.
type ChatActions interface {
	PostMessage(ctx context.Context, actorID, groupID, content string, isAnnouncement bool) error
	MarkRead(ctx context.Context, actorID, messageID string) error
	React(ctx context.Context, actorID, messageID, emoji string) (*ReactionsPayload, error)
}

// UserError is a validation or authorization failure the acting user may see.
type UserError struct {
	Err error
}

func (e *UserError) Error() string { return e.Err.Error() }
func (e *UserError) Unwrap() error { return e.Err }

// Visible marks err as safe to report back to the acting connection.
func Visible(err error) error {
	if err == nil {
		return nil
	}
	return &UserError{Err: err}
}

var ErrNotGroupMember = errors.New("not a member of group")

// Router resolves the actor of an inbound event and hands it to the chat
// actions or the registry. The same router serves both transport shapes.
type Router struct {
	Registry  Registry
	Directory UserDirectory
	Chat      ChatActions
	Logger    zerolog.Logger
}

// Dispatch handles one inbound event from connID. The returned reply, if
// any, goes back to the acting connection only. Errors are reserved for
// failures the user cannot act on.
func (r *Router) Dispatch(ctx context.Context, connID string, body []byte) ([]byte, error) {
	logger := r.Logger.With().Str("connection_id", connID).Logger()

	event, err := ParseEvent(body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid event")
		return ErrorEvent(err.Error()), nil
	}
	if event.Type == EventPing {
		return PongEvent(), nil
	}

	conn, err := r.Registry.Lookup(ctx, connID)
	if err != nil {
		if errors.Is(err, ErrUnknownConnection) {
			return ErrorEvent("unknown connection"), nil
		}
		return nil, fmt.Errorf("looking up connection %v: %w", connID, err)
	}
	actorID := conn.UserID
	logger = logger.With().Str("user_id", actorID).Str("type", event.Type).Logger()

	reply, err := r.dispatch(ctx, connID, actorID, event)
	var uerr *UserError
	switch {
	case err == nil:
		return reply, nil
	case errors.As(err, &uerr):
		logger.Info().Err(err).Msg("event rejected")
		return ErrorEvent(uerr.Error()), nil
	default:
		logger.Error().Err(err).Msg("failed to handle event")
		return ErrorEvent("internal error"), err
	}
}

// dispatch runs one event. Only react answers the actor directly; every other
// event's outcome reaches the room by broadcast.
func (r *Router) dispatch(ctx context.Context, connID, actorID string, event *Event) ([]byte, error) {
	switch event.Type {
	case EventSendMessage:
		var p SendMessagePayload
		if err := event.Decode(&p); err != nil {
			return nil, Visible(err)
		}
		return nil, r.Chat.PostMessage(ctx, actorID, p.GroupID, p.Content, p.IsAnnouncement)

	case EventMarkRead:
		var p MarkReadPayload
		if err := event.Decode(&p); err != nil {
			return nil, Visible(err)
		}
		return nil, r.Chat.MarkRead(ctx, actorID, p.MessageID)

	case EventReact:
		var p ReactPayload
		if err := event.Decode(&p); err != nil {
			return nil, Visible(err)
		}
		reactions, err := r.Chat.React(ctx, actorID, p.MessageID, p.Emoji)
		if err != nil {
			return nil, err
		}
		return ReactionsEvent(*reactions)

	case EventJoinGroup:
		var p GroupPayload
		if err := event.Decode(&p); err != nil {
			return nil, Visible(err)
		}
		ok, err := r.Directory.IsMember(ctx, p.GroupID, actorID)
		if err != nil {
			return nil, fmt.Errorf("checking membership of %v in %v: %w", actorID, p.GroupID, err)
		}
		if !ok {
			return nil, Visible(fmt.Errorf("%v: %w", p.GroupID, ErrNotGroupMember))
		}
		return nil, r.Registry.Join(ctx, connID, p.GroupID)

	case EventLeaveGroup:
		var p GroupPayload
		if err := event.Decode(&p); err != nil {
			return nil, Visible(err)
		}
		return nil, r.Registry.Leave(ctx, connID, p.GroupID)

	default:
		return nil, Visible(fmt.Errorf("unknown event type %q", event.Type))
	}
}
