package realtime

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	written  []interface{}
	err      error
	closed   bool
	deadline time.Time
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) messages() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.written...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// stalledConn never finishes a write until it is closed, like a peer whose
// TCP window is full
type stalledConn struct {
	once    sync.Once
	release chan struct{}
}

func newStalledConn() *stalledConn {
	return &stalledConn{release: make(chan struct{})}
}

func (s *stalledConn) WriteJSON(v interface{}) error {
	<-s.release
	return errors.New("use of closed network connection")
}

func (s *stalledConn) SetWriteDeadline(time.Time) error { return nil }

func (s *stalledConn) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

func (s *stalledConn) isClosed() bool {
	select {
	case <-s.release:
		return true
	default:
		return false
	}
}

func TestHubEmitDropsFailedClients(t *testing.T) {
	h := NewHub()
	good, bad := &fakeConn{}, &fakeConn{err: errors.New("broken pipe")}
	h.register("good", good)
	h.register("bad", bad)

	require.NoError(t, h.Emit(context.Background(), EventCallUpdated, map[string]string{"_id": "c1"}))

	assert.Eventually(t, func() bool { return h.Len() == 1 && bad.isClosed() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(good.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, EventCallUpdated, good.messages()[0].(Message).Event)

	good.mu.Lock()
	assert.False(t, good.deadline.IsZero())
	good.mu.Unlock()
}

func TestHubEmitDoesNotWaitOnStalledClient(t *testing.T) {
	h := NewHub()
	h.buffer = 2
	good, stalled := &fakeConn{}, newStalledConn()
	h.register("good", good)
	h.register("stalled", stalled)

	for i := 1; i <= 5; i++ {
		done := make(chan struct{})
		go func() {
			h.Emit(context.Background(), EventCallUpdated, map[string]int{"n": i})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Emit %d blocked on a stalled client", i)
		}
		require.Eventually(t, func() bool { return len(good.messages()) == i }, time.Second, 5*time.Millisecond)
	}

	lenDone := make(chan int)
	go func() { lenDone <- h.Len() }()
	select {
	case n := <-lenDone:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("Len blocked")
	}
	assert.True(t, stalled.isClosed())
}

func TestHubEmitReportsEvictions(t *testing.T) {
	h := NewHub()
	h.buffer = 1
	stalled := newStalledConn()
	h.register("stalled", stalled)

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = h.Emit(context.Background(), EventCallCreated, i)
	}

	assert.EqualError(t, err, "evicted 1 slow dispatch websocket clients")
	assert.Equal(t, 0, h.Len())
	assert.True(t, stalled.isClosed())
}

func TestHubUnregister(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.register("a", c)
	h.unregister("a")
	h.unregister("a")

	assert.Equal(t, 0, h.Len())
	assert.True(t, c.isClosed())
	assert.NoError(t, h.Emit(context.Background(), EventCallCreated, "x"))
}

func TestHubServeHTTP(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Emit(context.Background(), EventCallCreated, map[string]string{"_id": "c1"}))

	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, EventCallCreated, msg.Event)
	assert.Equal(t, "c1", msg.Data["_id"])

	ws.Close()
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 10*time.Millisecond)
}
