// Package push fans turn progress out to WebSocket subscribers.
package push

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Notice is one progress update pushed to a session's subscribers.
type Notice struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	TurnID    string          `json:"turn_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Connection is one WebSocket subscriber bound to a session.
type Connection struct {
	ID        string
	SessionID string
	ws        *websocket.Conn
	send      chan []byte
}

// Hub manages WebSocket subscribers keyed by session id.
type Hub struct {
	connections map[string]*Connection
	sessions    map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan sessionMessage

	logger *slog.Logger
	mu     sync.RWMutex
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

// NewHub creates a hub. Call Run in its own goroutine.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan sessionMessage, 256),
		logger:      logger,
	}
}

// Run drives registration and fan-out.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[string]bool)
			}
			h.sessions[conn.SessionID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug("subscriber registered", "conn_id", conn.ID, "session_id", conn.SessionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if set := h.sessions[conn.SessionID]; set != nil {
					delete(set, conn.ID)
					if len(set) == 0 {
						delete(h.sessions, conn.SessionID)
					}
				}
				close(conn.send)
			}
			h.mu.Unlock()
			h.logger.Debug("subscriber unregistered", "conn_id", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.sessions[msg.sessionID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.send <- msg.data:
				default:
					h.logger.Warn("subscriber buffer full, dropping connection", "conn_id", connID)
					go func(c *Connection) { h.unregister <- c }(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish sends a notice to all subscribers of its session. Marshalling
// errors are returned; a session with no subscribers is not an error.
func (h *Hub) Publish(n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	h.broadcast <- sessionMessage{sessionID: n.SessionID, data: data}
	return nil
}

// SubscriberCount returns the number of live subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Serve registers the WebSocket connection for a session and blocks until
// it closes. The caller owns the upgrade.
func (h *Hub) Serve(ws *websocket.Conn, sessionID string) {
	conn := &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
	}
	h.register <- conn

	go conn.writePump()
	conn.readPump(h)
}

// readPump discards client frames and detects disconnects.
func (c *Connection) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.ws.Close()
	}()
	c.ws.SetReadLimit(4096)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
