package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame written to websocket clients
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

const (
	// writeWait bounds a single frame write to a client
	writeWait = 10 * time.Second
	// sendBuffer is how many frames a client may fall behind before it is
	// evicted
	sendBuffer = 32
)

type conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn conn
	send chan Message
}

// Hub keeps the connected dispatch websocket clients. Each client has its
// own writer goroutine so a slow peer never holds up Emit.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
	buffer  int
}

// NewHub returns an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client), buffer: sendBuffer}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "error", err)
		return
	}

	id := uuid.New().String()
	h.register(id, c)
	zap.S().Debugw("dispatch websocket connected", "id", id)

	for {
		if _, _, err := c.NextReader(); err != nil {
			h.unregister(id)
			zap.S().Debugw("dispatch websocket disconnected", "id", id)
			return
		}
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(id string, c conn) {
	cl := &client{conn: c, send: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.clients[id] = cl
	h.mu.Unlock()
	go h.writer(id, cl)
}

// writer drains the client's queue until it is closed or a write fails
func (h *Hub) writer(id string, cl *client) {
	for msg := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteJSON(msg); err != nil {
			zap.S().Warnw("dropping dispatch websocket client", "id", id, "error", err)
			h.unregister(id)
			return
		}
	}
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(cl.send)
	}
	h.mu.Unlock()
	if ok {
		cl.conn.Close()
	}
}

// Emit queues the event for every client without waiting on the network.
// Clients whose queue is full are evicted.
func (h *Hub) Emit(_ context.Context, event string, payload interface{}) error {
	msg := Message{Event: event, Data: payload}

	var evicted []*client
	h.mu.Lock()
	for id, cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			zap.S().Warnw("evicting slow dispatch websocket client", "id", id)
			delete(h.clients, id)
			close(cl.send)
			evicted = append(evicted, cl)
		}
	}
	h.mu.Unlock()

	for _, cl := range evicted {
		cl.conn.Close()
	}
	if len(evicted) > 0 {
		return fmt.Errorf("evicted %d slow dispatch websocket clients", len(evicted))
	}
	return nil
}
