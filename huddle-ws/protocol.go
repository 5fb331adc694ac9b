package huddlews

import (
	"encoding/json"
	"fmt"
)

// Inbound event types.
const (
	EventSendMessage = "send-message"
	EventMarkRead    = "mark-read"
	EventJoinGroup   = "join-group"
	EventLeaveGroup  = "leave-group"
	EventReact       = "react"
	EventPing        = "ping"
)

// Outbound event types.
const (
	EventNewMessage  = "new-message"
	EventReadUpdated = "read-updated"
	EventReactions   = "reactions"
	EventError       = "error"
	EventPong        = "pong"
)

// Event is the envelope for every message in either direction.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SendMessagePayload struct {
	GroupID        string `json:"groupId"`
	Content        string `json:"content"`
	IsAnnouncement bool   `json:"isAnnouncement"`
}

type MarkReadPayload struct {
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
}

type GroupPayload struct {
	GroupID string `json:"groupId"`
}

type ReactPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type NewMessagePayload struct {
	GroupID string      `json:"groupId"`
	Message interface{} `json:"message"`
}

type ReadUpdatedPayload struct {
	GroupID   string `json:"groupId"`
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
	ReadCount int    `json:"readCount,omitempty"`
}

// ReactionsPayload answers a react event: whether the actor's emoji is now
// present and the message's reaction counts by emoji.
type ReactionsPayload struct {
	MessageID string         `json:"messageId"`
	Emoji     string         `json:"emoji"`
	Added     bool           `json:"added"`
	Counts    map[string]int `json:"counts,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ParseEvent parses an inbound envelope.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("missing event type")
	}
	return &event, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%v: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%v: invalid payload: %w", e.Type, err)
	}
	return nil
}

// EncodeEvent wraps payload in an envelope of the given type.
func EncodeEvent(eventType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %v payload: %w", eventType, err)
		}
		raw = b
	}
	b, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshalling %v event: %w", eventType, err)
	}
	return b, nil
}

func NewMessageEvent(groupID string, message interface{}) ([]byte, error) {
	return EncodeEvent(EventNewMessage, NewMessagePayload{GroupID: groupID, Message: message})
}

func ReadUpdatedEvent(groupID, userID, messageID string, readCount int) ([]byte, error) {
	return EncodeEvent(EventReadUpdated, ReadUpdatedPayload{
		GroupID:   groupID,
		UserID:    userID,
		MessageID: messageID,
		ReadCount: readCount,
	})
}

func ReactionsEvent(p ReactionsPayload) ([]byte, error) {
	return EncodeEvent(EventReactions, p)
}

// ErrorEvent returns an error event for the acting connection.
func ErrorEvent(msg string) []byte {
	b, _ := EncodeEvent(EventError, ErrorPayload{Message: msg})
	return b
}

func PongEvent() []byte {
	b, _ := EncodeEvent(EventPong, nil)
	return b
}
