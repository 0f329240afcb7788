package bridge

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// subjectPrefix namespaces this server's traffic on a shared broker.
const subjectPrefix = "uwuchat."

// subjectFor maps a channel key to a NATS subject. Usernames may contain
// subject metacharacters (dots, wildcards, spaces), so the key is
// hex-encoded rather than used verbatim; the encoding is injective, so
// distinct channels never share a subject.
func subjectFor(channel string) string {
	return subjectPrefix + hex.EncodeToString([]byte(channel))
}

// NATSEngine mirrors published frames through NATS core pub/sub, one
// subject per channel key.
type NATSEngine struct {
	log    zerolog.Logger
	id     uuid.UUID
	router Router
	conn   *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewNATS connects to url and returns the engine. The client buffers
// publishes internally, so Publish never blocks on the broker.
func NewNATS(url string, router Router, log zerolog.Logger) (*NATSEngine, error) {
	conn, err := nats.Connect(url,
		nats.Name("uwuchat"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge: nats connect: %w", err)
	}

	e := &NATSEngine{
		log:    log.With().Str("component", "bridge").Str("engine", "nats").Logger(),
		id:     uuid.New(),
		router: router,
		conn:   conn,
		subs:   make(map[string]*nats.Subscription),
	}

	e.log.Info().Str("addr", conn.ConnectedUrl()).Msg("nats bridge connected")
	return e, nil
}

func (e *NATSEngine) Publish(channel string, frame []byte) {
	if err := e.conn.Publish(subjectFor(channel), wrap(e.id, frame)); err != nil {
		e.log.Error().Err(err).Str("channel", channel).Msg("broker publish failed")
	}
}

func (e *NATSEngine) Subscribe(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[channel]; ok {
		return
	}
	sub, err := e.conn.Subscribe(subjectFor(channel), func(m *nats.Msg) {
		dispatchRemote(e.router, e.id, channel, m.Data)
	})
	if err != nil {
		e.log.Error().Err(err).Str("channel", channel).Msg("subscribe failed")
		return
	}
	e.subs[channel] = sub
}

func (e *NATSEngine) Unsubscribe(channel string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.subs[channel]
	if !ok {
		return
	}
	delete(e.subs, channel)
	if err := sub.Unsubscribe(); err != nil {
		e.log.Debug().Err(err).Str("channel", channel).Msg("unsubscribe failed")
	}
}

func (e *NATSEngine) Close() error {
	return e.conn.Drain()
}
