package huddlews

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
	"github.com/rs/zerolog"
)

var (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = int64(16 * 1024)
	sendBuffer     = 256
)

// SocketServer is the long-lived transport: it upgrades GET /ws?userId=
// requests, owns one read and one write pump per connection, and delivers
// broadcast payloads as a Transport.
type SocketServer struct {
	Registry  Registry
	Directory UserDirectory
	Router    *Router
	Logger    zerolog.Logger
	NodeID    string

	Upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*socketSession
}

var _ Transport = (*SocketServer)(nil)

type socketSession struct {
	connID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *socketSession) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *socketSession) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func NewSocketServer(registry Registry, directory UserDirectory, router *Router, logger zerolog.Logger, nodeID string) *SocketServer {
	return &SocketServer{
		Registry:  registry,
		Directory: directory,
		Router:    router,
		Logger:    logger,
		NodeID:    nodeID,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: map[string]*socketSession{},
	}
}

// Send queues payload on the member's session. Unknown, closed and backed-up
// sessions all report ErrPeerGone; a backed-up session is also closed so the
// client reconnects.
func (s *SocketServer) Send(_ context.Context, member membershipdao.Membership, payload []byte) error {
	if s.NodeID != "" && member.Endpoint != "" && member.Endpoint != s.NodeID {
		return fmt.Errorf("%v on %v: %w", member.ConnectionID, member.Endpoint, ErrPeerGone)
	}

	s.mu.RLock()
	sess, ok := s.sessions[member.ConnectionID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%v: %w", member.ConnectionID, ErrPeerGone)
	}
	if !sess.enqueue(payload) {
		sess.close()
		return fmt.Errorf("%v: %w", member.ConnectionID, ErrPeerGone)
	}
	return nil
}

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("userId")
	connID := uuid.NewString()
	logger := s.Logger.With().Str("connection_id", connID).Str("user_id", userID).Logger()
	ctx = logger.WithContext(ctx)

	// the session exists before the registry knows the connection so an early
	// broadcast is queued rather than pruned
	sess := &socketSession{
		connID: connID,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	s.register(sess)

	if _, err := ConnectAndJoin(ctx, s.Registry, s.Directory, userID, ConnectMeta{ConnectionID: connID, Endpoint: s.NodeID}); err != nil {
		s.unregister(sess)
		s.disconnect(ctx, logger, connID)
		status := ConnectStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error().Err(err).Msg("failed to register connection")
		} else {
			logger.Info().Err(err).Msg("connection rejected")
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to upgrade")
		s.unregister(sess)
		s.disconnect(ctx, logger, connID)
		return
	}

	logger.Info().Msg("connection established")
	go s.writePump(logger, conn, sess)
	s.readPump(ctx, logger, conn, sess)
}

func (s *SocketServer) readPump(ctx context.Context, logger zerolog.Logger, conn *websocket.Conn, sess *socketSession) {
	defer func() {
		sess.close()
		s.unregister(sess)
		s.disconnect(ctx, logger, sess.connID)
		conn.Close()
		logger.Info().Msg("connection closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		s.touch(sess.connID)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		s.touch(sess.connID)

		reply, err := s.Router.Dispatch(ctx, sess.connID, msg)
		if err != nil {
			logger.Error().Err(err).Msg("failed to dispatch")
		}
		if reply != nil && !sess.enqueue(reply) {
			return
		}
	}
}

func (s *SocketServer) writePump(logger zerolog.Logger, conn *websocket.Conn, sess *socketSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-sess.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug().Err(err).Msg("write failed")
				sess.close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.close()
				return
			}

		case <-sess.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close ends every session.
func (s *SocketServer) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.close()
	}
}

func (s *SocketServer) register(sess *socketSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = map[string]*socketSession{}
	}
	s.sessions[sess.connID] = sess
}

func (s *SocketServer) unregister(sess *socketSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.connID] == sess {
		delete(s.sessions, sess.connID)
	}
}

func (s *SocketServer) touch(connID string) {
	if t, ok := s.Registry.(interface{ Touch(string) }); ok {
		t.Touch(connID)
	}
}

func (s *SocketServer) disconnect(ctx context.Context, logger zerolog.Logger, connID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeWait)
	defer cancel()
	if err := s.Registry.Disconnect(ctx, connID); err != nil {
		logger.Error().Err(err).Msg("failed to disconnect")
	}
}
