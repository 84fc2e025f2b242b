// Package realtime pushes dispatch events to connected clients. Handlers get
// an Emitter injected, they never reach for a process wide server.
package realtime

import (
	"context"
	"errors"
)

// Event names published to dispatch clients
const (
	EventCallCreated = "call-created"
	EventCallUpdated = "call-updated"
)

// DispatchRoom is the socket.io room every dispatch client joins
const DispatchRoom = "dispatch"

// Emitter publishes a tagged payload to subscribed dispatch clients
type Emitter interface {
	Emit(ctx context.Context, event string, payload interface{}) error
}

// Nop drops every event
type Nop struct{}

// Emit does nothing
func (Nop) Emit(context.Context, string, interface{}) error { return nil }

// Fanout emits to each emitter in order and joins their errors
type Fanout []Emitter

// Emit sends the event to every emitter, a failure in one does not stop the rest
func (f Fanout) Emit(ctx context.Context, event string, payload interface{}) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(ctx context.Context, event string, payload interface{}) error

// Emit calls f
func (f EmitterFunc) Emit(ctx context.Context, event string, payload interface{}) error {
	return f(ctx, event, payload)
}
