package realtime

import (
	"context"
	"fmt"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"
)

// SocketIO emits events to the dispatch room of a socket.io server
type SocketIO struct {
	server *socketio.Server
}

// NewSocketIO builds the socket.io server. Every connection joins the
// dispatch room, so the server must only be mounted behind authentication.
// Call Serve in a goroutine and mount Server.
func NewSocketIO() *SocketIO {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		s.Join(DispatchRoom)
		zap.S().Debugw("socket.io client connected", "id", s.ID())
		return nil
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		zap.S().Warnw("socket.io error", "error", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		zap.S().Debugw("socket.io client disconnected", "id", s.ID(), "reason", reason)
	})

	server.OnEvent("/", "join_dispatch", func(s socketio.Conn, msg map[string]interface{}) {
		s.Join(DispatchRoom)
		zap.S().Debugw("socket.io client joined dispatch", "id", s.ID())
	})

	server.OnEvent("/", "leave_dispatch", func(s socketio.Conn, msg map[string]interface{}) {
		s.Leave(DispatchRoom)
	})

	return &SocketIO{server: server}
}

// Server exposes the underlying server so it can be mounted on a router
func (s *SocketIO) Server() *socketio.Server {
	return s.server
}

// Serve runs the socket.io event loop until Close
func (s *SocketIO) Serve() error {
	return s.server.Serve()
}

// Close shuts the server down
func (s *SocketIO) Close() error {
	return s.server.Close()
}

// Emit broadcasts to the dispatch room
func (s *SocketIO) Emit(_ context.Context, event string, payload interface{}) error {
	if s == nil || s.server == nil {
		return fmt.Errorf("socket.io server not initialized")
	}
	s.server.BroadcastToRoom("/", DispatchRoom, event, payload)
	return nil
}
