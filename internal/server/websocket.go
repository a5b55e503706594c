package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetstream/meeting-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin against the front-end hosts
		// For now, allow all origins (development only)
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsSubscriber adapts one WebSocket connection to the subscriber
// interface. Writes carry a deadline so a stalled client surfaces as a
// Send error and gets dropped by the hub instead of blocking it.
type wsSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *wsSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsSubscriber{conn: conn, writeTimeout: writeTimeout}
}

func (s *wsSubscriber) Send(event session.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(event)
}

func (s *wsSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// handleWebSocket serves GET /ws/{session_id}: it attaches the upgraded
// connection as a live subscriber until the client disconnects or the
// session stops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if _, ok := s.registry.Status(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("WebSocket upgrade failed")
		return
	}

	sub := newWSSubscriber(conn, time.Duration(s.cfg.SubscriberSendTimeout)*time.Second)
	if err := s.registry.Subscribe(id, sub); err != nil {
		// Session stopped between the status check and the upgrade.
		sub.Close()
		return
	}

	s.logger.Info().Str("session_id", id).Str("remote", r.RemoteAddr).Msg("Subscriber connected")

	// Drain the read side to detect client disconnects; inbound frames
	// carry no meaning on this endpoint.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.registry.Unsubscribe(id, sub)
	sub.Close()
	s.logger.Info().Str("session_id", id).Str("remote", r.RemoteAddr).Msg("Subscriber disconnected")
}
