package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Gateway bridges broker channels to WebSocket clients. Each connected client
// gets one broker subscription on its personal notification channel; the
// subscription is torn down when the client disconnects.
type Gateway struct {
	broker   *broker.Broker
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[*session]struct{}
}

type session struct {
	gw     *Gateway
	conn   *websocket.Conn
	send   chan []byte
	handle *broker.Handle
	userID string
	once   sync.Once
}

func New(b *broker.Broker, logger *slog.Logger) *Gateway {
	return &Gateway{
		broker:   b,
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

// HandleNotifications upgrades the HTTP connection and forwards every message
// published on the user's notification channel to it.
func (g *Gateway) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := &session{
		gw:     g,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	// The subscription outlives the HTTP request context.
	s.handle = g.broker.Subscribe(context.Background(), broker.UserNotifications(userID), s.forward)

	g.mu.Lock()
	g.sessions[s] = struct{}{}
	g.mu.Unlock()
	g.logger.Debug("websocket client connected", "user_id", userID, "total_clients", g.ActiveConnections())

	go s.writePump()
	go s.readPump()
}

// ActiveConnections returns the number of connected WebSocket clients.
func (g *Gateway) ActiveConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

func (g *Gateway) detach(s *session) {
	s.once.Do(func() {
		g.broker.Unsubscribe(context.Background(), s.handle)

		g.mu.Lock()
		delete(g.sessions, s)
		g.mu.Unlock()

		close(s.send)
		g.logger.Debug("websocket client disconnected", "user_id", s.userID, "total_clients", g.ActiveConnections())
	})
}

// forward is the broker callback: re-serialize the decoded message and queue
// it for the client. Failures never propagate; a client with a full buffer
// just misses the push.
func (s *session) forward(data any) {
	var payload []byte
	switch v := data.(type) {
	case []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s.gw.logger.Error("failed to marshal websocket payload", "error", err)
			return
		}
		payload = b
	}

	select {
	case s.send <- payload:
	default:
		s.gw.logger.Warn("websocket send buffer full, dropping message", "user_id", s.userID)
	}
}

// readPump drains client messages and detects disconnects.
func (s *session) readPump() {
	defer func() {
		s.gw.detach(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump pushes queued payloads and keepalive pings to the client.
func (s *session) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
