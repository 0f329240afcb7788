package core

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the outbound side of one live connection. The transport owns
// the socket and its pumps; the core owns the queue and the drop signal.
type Session struct {
	// ID tags log lines and metrics for this connection.
	ID string

	// Name is the registered username, or the chosen name of a read-only
	// listener (listeners never appear in the registry).
	Name string

	send chan []byte
	done chan struct{}
	once sync.Once

	user     *User                 // nil for listeners; set once before the session escapes
	channels map[*channel]struct{} // guarded by the state lock
}

func newSession(name string, depth int) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Name:     name,
		send:     make(chan []byte, depth),
		done:     make(chan struct{}),
		channels: make(map[*channel]struct{}),
	}
}

// Frames is the outbound queue the transport's write loop drains.
func (s *Session) Frames() <-chan []byte {
	return s.send
}

// Done is closed when the core wants the connection gone: slow subscriber,
// server shutdown, or normal teardown. The transport must close the
// socket when it fires.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Drop signals the transport to tear the connection down. Idempotent; the
// send queue is never closed, so concurrent enqueues stay safe.
func (s *Session) Drop() {
	s.once.Do(func() { close(s.done) })
}

// trySend enqueues without blocking. A false return means the queue is
// full and the subscriber must be dropped.
func (s *Session) trySend(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}
