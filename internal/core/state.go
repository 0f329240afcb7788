// Package core implements the chat server's concurrency fabric: the
// presence registry, the pair-keyed pub/sub router with bounded
// histories, the typed frame dispatcher, and the idle detector.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uwuchat/internal/bridge"
	"uwuchat/internal/history"
	"uwuchat/internal/protocol"
)

// DefaultQueueDepth is the per-connection outbound buffer used when the
// caller does not override it.
const DefaultQueueDepth = 256

// Options configures a State.
type Options struct {
	// QueueDepth is the per-connection outbound buffer; a full buffer
	// drops the connection. Defaults to DefaultQueueDepth.
	QueueDepth int
}

// State is the server core. The registry and the channel table share one
// RWMutex; each channel guards its own subscriber set and history. Fan-out
// runs synchronously at publish time under the channel lock, so the
// audience of a publish is the subscriber set of that moment and every
// subscriber observes one channel's publishes in the same order. The
// bounded per-session queue is the only async boundary.
type State struct {
	log        zerolog.Logger
	queueDepth int

	// engine mirrors publishes across instances. Set once via
	// AttachEngine before Run; immutable afterwards.
	engine bridge.Engine

	mu       sync.RWMutex
	users    *registry
	channels map[string]*channel
	sessions map[*Session]struct{}
	closed   bool

	group *channel
}

// NewState builds a core with an empty registry and the group channel
// already routed.
func NewState(log zerolog.Logger, opts Options) *State {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	s := &State{
		log:        log.With().Str("component", "core").Logger(),
		queueDepth: depth,
		engine:     bridge.NewLocal(),
		users:      newRegistry(),
		channels:   make(map[string]*channel),
		sessions:   make(map[*Session]struct{}),
	}
	s.group = newChannel(protocol.GroupName, kindGroup, history.GroupCapacity)
	s.channels[protocol.GroupName] = s.group
	return s
}

// AttachEngine wires a cross-instance bridge. Must be called before Run
// and before the first connection is accepted.
func (s *State) AttachEngine(eng bridge.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = eng
	for name := range s.channels {
		eng.Subscribe(name)
	}
}

// Run blocks until ctx is canceled, then shuts the core down: no further
// sessions or publishes are accepted and every open session is dropped.
func (s *State) Run(ctx context.Context) {
	<-ctx.Done()
	s.shutdown()
}

func (s *State) fanOut(ch *channel, frame []byte) {
	for _, slow := range ch.fanOut(frame) {
		metricDroppedSubscribers.Inc()
		s.log.Warn().
			Str("conn_id", slow.ID).
			Str("user", slow.Name).
			Str("channel", ch.name).
			Msg("outbound queue full, dropping subscriber")
		slow.Drop()
	}
}

func (s *State) shutdown() {
	s.mu.Lock()
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.Drop()
	}
	s.log.Info().Int("sessions", len(open)).Msg("core shut down")
}

// publish fans a frame out to the channel's current subscribers and
// mirrors it to the bridge. Callers may hold the state lock; enqueues are
// non-blocking, and a full subscriber queue drops that subscriber, never
// the frame for the others.
func (s *State) publish(ch *channel, frame []byte) {
	metricPublishedFrames.WithLabelValues(ch.kind).Inc()
	s.fanOut(ch, frame)
	s.engine.Publish(ch.name, frame)
}

// DeliverRemote injects a frame the bridge received from another
// instance. Channels with no local counterpart have no local subscribers
// and are dropped.
func (s *State) DeliverRemote(channelName string, frame []byte) {
	s.mu.RLock()
	ch, ok := s.channels[channelName]
	closed := s.closed
	s.mu.RUnlock()
	if !ok || closed {
		return
	}
	s.fanOut(ch, frame)
}

// Open registers name and returns its session. The duplicate check,
// registration, pair-channel creation, both-endpoint subscription and the
// REGISTERED_USER announcement happen in one exclusive critical section,
// so a registered peer always implies a live pair channel, and any later
// CHANGED_STATUS for this user follows the announcement on the group
// channel.
func (s *State) Open(name string) (*Session, error) {
	sess := newSession(name, s.queueDepth)
	now := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	u := &User{Name: name, Status: protocol.StatusActive, sess: sess}
	u.touch(now)
	if err := s.users.register(u); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sess.user = u
	s.sessions[sess] = struct{}{}

	s.subscribeLocked(sess, s.group)
	for _, other := range s.users.order {
		if other == u {
			continue
		}
		ch := s.ensurePairLocked(name, other.Name)
		s.subscribeLocked(sess, ch)
		s.subscribeLocked(other.sess, ch)
	}

	s.publish(s.group, protocol.EncodeRegisteredUser([]byte(name), protocol.StatusActive))
	count := s.users.len()
	s.mu.Unlock()

	metricConnectedUsers.Set(float64(count))
	s.log.Info().
		Str("conn_id", sess.ID).
		Str("user", name).
		Int("users", count).
		Msg("user registered")
	return sess, nil
}

// OpenListener subscribes a read-only session to the group channel
// without registering a user. The name may not collide with a registered
// user; listeners may share names with each other.
func (s *State) OpenListener(name string) (*Session, error) {
	sess := newSession(name, s.queueDepth)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	if _, ok := s.users.lookup(name); ok {
		s.mu.Unlock()
		return nil, ErrDuplicateName
	}
	s.sessions[sess] = struct{}{}
	s.subscribeLocked(sess, s.group)
	s.mu.Unlock()

	s.log.Info().Str("conn_id", sess.ID).Str("listener", name).Msg("listener subscribed")
	return sess, nil
}

// Close tears a session down: its subscriptions, its registry entry, and
// every pair history touching its name. The reaped channels lose the
// peer's subscription too, so the channel table never holds a pair key
// with an unregistered endpoint. Safe to call more than once.
func (s *State) Close(sess *Session) {
	sess.Drop()

	s.mu.Lock()
	if _, open := s.sessions[sess]; !open {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess)

	for ch := range sess.channels {
		ch.unsubscribe(sess)
	}
	clear(sess.channels)

	count := -1
	if sess.user != nil {
		name := sess.Name
		s.users.remove(name)
		count = s.users.len()
		for key, ch := range s.channels {
			if ch.kind != kindPair || !pairKeyTouches(key, name) {
				continue
			}
			delete(s.channels, key)
			s.engine.Unsubscribe(key)
			for _, sub := range ch.drainSubs() {
				delete(sub.channels, ch)
			}
		}
	}
	s.mu.Unlock()

	if count >= 0 {
		metricConnectedUsers.Set(float64(count))
		s.log.Info().
			Str("conn_id", sess.ID).
			Str("user", sess.Name).
			Int("users", count).
			Msg("user disconnected")
		return
	}
	s.log.Info().Str("conn_id", sess.ID).Str("listener", sess.Name).Msg("listener gone")
}

func (s *State) subscribeLocked(sess *Session, ch *channel) {
	if _, ok := sess.channels[ch]; ok {
		return
	}
	sess.channels[ch] = struct{}{}
	ch.subscribe(sess)
}

func (s *State) ensurePairLocked(a, b string) *channel {
	key := PairKey(a, b)
	ch, ok := s.channels[key]
	if !ok {
		ch = newChannel(key, kindPair, history.PairCapacity)
		s.channels[key] = ch
		s.engine.Subscribe(key)
	}
	return ch
}

// Exists reports whether name is currently registered. The handshake uses
// it to refuse duplicates before upgrading; Open re-checks atomically.
func (s *State) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users.lookup(name)
	return ok
}

// Roster snapshots the registry in registration order.
func (s *State) Roster() []protocol.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.roster()
}

// UserCount returns the number of registered users.
func (s *State) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.len()
}

// ChannelCount returns the number of routed channels, the group included.
func (s *State) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}
