package huddlechat

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	huddlews "github.com/huddle-events/huddle-core/huddle-ws"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type chatFixture struct {
	store  *fakeStore
	http   *httptest.Server
	server *huddlews.SocketServer
}

// newChatFixture runs the whole in-process stack: socket server, memory
// registry, broadcaster, service and a local worker.
func newChatFixture(t *testing.T, directory *fakeDirectory) *chatFixture {
	logger := zerolog.Nop()
	store := newFakeStore()

	registry := huddlews.NewMemoryRegistry(directory, logger)
	registry.NodeID = "node-1"
	router := &huddlews.Router{Registry: registry, Directory: directory, Logger: logger}
	server := huddlews.NewSocketServer(registry, directory, router, logger, "node-1")
	broadcaster := &huddlews.Broadcaster{Registry: registry, Transport: server, Logger: logger}

	invoker := &LocalInvoker{
		Handler: &Worker{
			Store:       store,
			Directory:   directory,
			Broadcaster: broadcaster,
			Emailer:     &fakeEmailer{},
			Logger:      logger,
		},
		Logger: logger,
	}
	router.Chat = Actions{Service: &Service{
		Store:       store,
		Directory:   directory,
		Broadcaster: broadcaster,
		Invoker:     invoker,
		Logger:      logger,
	}}

	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
		invoker.Wait()
		registry.Close()
	})
	return &chatFixture{store: store, http: ts, server: server}
}

func (f *chatFixture) dial(t *testing.T, userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	b, err := huddlews.EncodeEvent(eventType, payload)
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func await(t *testing.T, conn *websocket.Conn, eventType string) *huddlews.Event {
	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		assert.NoError(t, err)
		event, err := huddlews.ParseEvent(msg)
		assert.NoError(t, err)
		if event.Type == eventType {
			return event
		}
	}
}

func TestScenario_PostAndRead(t *testing.T) {
	directory := newFakeDirectory().
		add("g1", "A", "a@example.com").
		add("g1", "B", "b@example.com").
		add("g2", "C", "c@example.com")
	f := newChatFixture(t, directory)

	a := f.dial(t, "A")
	b := f.dial(t, "B")
	c := f.dial(t, "C")

	emit(t, a, huddlews.EventSendMessage, huddlews.SendMessagePayload{GroupID: "g1", Content: "hi"})

	var posted struct {
		GroupID string `json:"groupId"`
		Message struct {
			ID       string `json:"id"`
			SenderID string `json:"senderId"`
			Content  string `json:"content"`
		} `json:"message"`
	}
	assert.NoError(t, await(t, b, huddlews.EventNewMessage).Decode(&posted))
	assert.Equal(t, "g1", posted.GroupID)
	assert.Equal(t, "A", posted.Message.SenderID)
	assert.Equal(t, "hi", posted.Message.Content)
	assert.NotEmpty(t, posted.Message.ID)

	// the sender's own connection is in the room too
	await(t, a, huddlews.EventNewMessage)

	for i := 0; i < 2; i++ {
		emit(t, b, huddlews.EventMarkRead, huddlews.MarkReadPayload{GroupID: "g1", MessageID: posted.Message.ID})

		var read huddlews.ReadUpdatedPayload
		assert.NoError(t, await(t, a, huddlews.EventReadUpdated).Decode(&read))
		assert.Equal(t, huddlews.ReadUpdatedPayload{GroupID: "g1", UserID: "B", MessageID: posted.Message.ID, ReadCount: 1}, read)
	}
	f.store.mu.Lock()
	assert.Len(t, f.store.receipts, 1)
	f.store.mu.Unlock()

	// C is in another group and must not see g1 traffic
	emit(t, c, huddlews.EventPing, nil)
	assert.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := c.ReadMessage()
	assert.NoError(t, err)
	first, err := huddlews.ParseEvent(msg)
	assert.NoError(t, err)
	assert.Equal(t, huddlews.EventPong, first.Type)

	// C cannot post into g1
	emit(t, c, huddlews.EventSendMessage, huddlews.SendMessagePayload{GroupID: "g1", Content: "sneaky"})
	var rejected huddlews.ErrorPayload
	assert.NoError(t, await(t, c, huddlews.EventError).Decode(&rejected))
	assert.Contains(t, rejected.Message, ErrNotAMember.Error())
}
