package core

import (
	"errors"
	"sync/atomic"
	"time"

	"uwuchat/internal/protocol"
)

var (
	// ErrDuplicateName rejects a registration or listener whose name is
	// already registered.
	ErrDuplicateName = errors.New("core: username already registered")

	// ErrServerClosed rejects new sessions during shutdown.
	ErrServerClosed = errors.New("core: server shutting down")
)

// User is one registered participant. Status is guarded by the state
// lock; lastAction is atomic so the per-frame touch never needs the
// exclusive lock.
type User struct {
	Name   string
	Status protocol.Status

	lastAction atomic.Int64 // unix nanos of last observed client activity
	sess       *Session
}

func (u *User) touch(now time.Time) {
	u.lastAction.Store(now.UnixNano())
}

func (u *User) idleFor(now time.Time) time.Duration {
	return time.Duration(now.UnixNano() - u.lastAction.Load())
}

// registry is the ordered, unique-by-name user set. Iteration order is
// registration order, which is also the roster serialization order.
type registry struct {
	order  []*User
	byName map[string]*User
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]*User)}
}

func (r *registry) register(u *User) error {
	if _, ok := r.byName[u.Name]; ok {
		return ErrDuplicateName
	}
	r.byName[u.Name] = u
	r.order = append(r.order, u)
	return nil
}

func (r *registry) lookup(name string) (*User, bool) {
	u, ok := r.byName[name]
	return u, ok
}

func (r *registry) remove(name string) {
	u, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	for i, cur := range r.order {
		if cur == u {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *registry) len() int {
	return len(r.order)
}

func (r *registry) roster() []protocol.RosterEntry {
	out := make([]protocol.RosterEntry, 0, len(r.order))
	for _, u := range r.order {
		out = append(out, protocol.RosterEntry{
			Name:   []byte(u.Name),
			Status: u.Status,
		})
	}
	return out
}
