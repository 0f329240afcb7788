// Package bridge forwards published frames between server instances over
// an external broker. The bridge is an opaque forwarder: frames cross
// instances byte-identical and fan out only to local subscribers of the
// same channel name. Presence and histories stay per-instance.
package bridge

import (
	"github.com/google/uuid"
)

// Router is the local delivery surface an engine injects remote frames
// into. Implementations must be safe to call from engine goroutines.
type Router interface {
	DeliverRemote(channel string, frame []byte)
}

// Engine mirrors locally published frames to other instances. Publish must
// never block the caller; a congested engine drops the frame and reports
// it through its own logging.
type Engine interface {
	Publish(channel string, frame []byte)
	Subscribe(channel string)
	Unsubscribe(channel string)
	Close() error
}

// Local is the single-process engine. Publishes have no remote audience
// and subscriptions are no-ops.
type Local struct{}

func NewLocal() Local { return Local{} }

func (Local) Publish(string, []byte) {}
func (Local) Subscribe(string)       {}
func (Local) Unsubscribe(string)     {}
func (Local) Close() error           { return nil }

// Broker payloads are the frame prefixed with the publishing instance id,
// so an instance can discard its own publishes when the broker echoes them
// back.
const envelopeHeader = 16

func wrap(id uuid.UUID, frame []byte) []byte {
	out := make([]byte, 0, envelopeHeader+len(frame))
	out = append(out, id[:]...)
	return append(out, frame...)
}

func unwrap(payload []byte) (uuid.UUID, []byte, bool) {
	if len(payload) < envelopeHeader {
		return uuid.UUID{}, nil, false
	}
	var id uuid.UUID
	copy(id[:], payload[:envelopeHeader])
	return id, payload[envelopeHeader:], true
}

// dispatchRemote unwraps a broker payload and hands it to the local router
// unless this instance published it. Reports whether a frame was delivered.
func dispatchRemote(r Router, self uuid.UUID, channel string, payload []byte) bool {
	id, frame, ok := unwrap(payload)
	if !ok || id == self {
		return false
	}
	r.DeliverRemote(channel, frame)
	return true
}
