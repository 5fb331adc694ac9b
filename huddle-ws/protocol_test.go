package huddlews

import (
	"encoding/json"
	"testing"

	"github.com/tj/assert"
)

func TestProtocol(t *testing.T) {
	t.Run("ParseEvent", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"type":"send-message","payload":{"groupId":"g1","content":"hi","isAnnouncement":true}}`))
		assert.NoError(t, err)
		assert.Equal(t, EventSendMessage, event.Type)

		var p SendMessagePayload
		assert.NoError(t, event.Decode(&p))
		assert.Equal(t, SendMessagePayload{GroupID: "g1", Content: "hi", IsAnnouncement: true}, p)
	})

	t.Run("ParseEvent missing type", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"payload":{}}`))
		assert.Error(t, err)
	})

	t.Run("ParseEvent invalid json", func(t *testing.T) {
		_, err := ParseEvent([]byte(`not json`))
		assert.Error(t, err)
	})

	t.Run("Decode missing payload", func(t *testing.T) {
		event, err := ParseEvent([]byte(`{"type":"join-group"}`))
		assert.NoError(t, err)
		var p GroupPayload
		assert.Error(t, event.Decode(&p))
	})

	t.Run("NewMessageEvent", func(t *testing.T) {
		b, err := NewMessageEvent("g1", map[string]string{"id": "m1"})
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"new-message","payload":{"groupId":"g1","message":{"id":"m1"}}}`, string(b))
	})

	t.Run("ReadUpdatedEvent", func(t *testing.T) {
		b, err := ReadUpdatedEvent("g1", "bob", "m1", 0)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"read-updated","payload":{"groupId":"g1","userId":"bob","messageId":"m1"}}`, string(b))

		b, err = ReadUpdatedEvent("g1", "bob", "m1", 3)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"read-updated","payload":{"groupId":"g1","userId":"bob","messageId":"m1","readCount":3}}`, string(b))
	})

	t.Run("ReactionsEvent", func(t *testing.T) {
		b, err := ReactionsEvent(ReactionsPayload{MessageID: "m1", Emoji: "👍", Added: true, Counts: map[string]int{"👍": 2}})
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"reactions","payload":{"messageId":"m1","emoji":"👍","added":true,"counts":{"👍":2}}}`, string(b))
	})

	t.Run("ErrorEvent", func(t *testing.T) {
		var event Event
		assert.NoError(t, json.Unmarshal(ErrorEvent("nope"), &event))
		assert.Equal(t, EventError, event.Type)

		var p ErrorPayload
		assert.NoError(t, event.Decode(&p))
		assert.Equal(t, "nope", p.Message)
	})

	t.Run("PongEvent", func(t *testing.T) {
		assert.JSONEq(t, `{"type":"pong"}`, string(PongEvent()))
	})
}
