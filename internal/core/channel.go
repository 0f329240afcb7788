package core

import (
	"strings"
	"sync"

	"uwuchat/internal/history"
	"uwuchat/internal/protocol"
)

// Channel kinds, used for metric labels and reap filtering.
const (
	kindGroup = "group"
	kindPair  = "pair"
)

// PairKey derives the canonical channel name for two users: the
// lexicographically smaller name first, joined by the separator. It is
// commutative, and no valid username can collide with a key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + protocol.PairSep + b
}

// pairKeyTouches reports whether key names a pair involving name.
func pairKeyTouches(key, name string) bool {
	return strings.HasPrefix(key, name+protocol.PairSep) ||
		strings.HasSuffix(key, protocol.PairSep+name)
}

// channel couples one pub/sub name with its subscriber set and bounded
// history. Each channel is its own lock domain; the state lock may be
// held while taking a channel lock, never the reverse.
type channel struct {
	name string
	kind string

	mu   sync.Mutex
	subs map[*Session]struct{}
	hist *history.History
}

func newChannel(name, kind string, capacity int) *channel {
	return &channel{
		name: name,
		kind: kind,
		subs: make(map[*Session]struct{}),
		hist: history.New(name, capacity),
	}
}

func (c *channel) subscribe(sess *Session) {
	c.mu.Lock()
	c.subs[sess] = struct{}{}
	c.mu.Unlock()
}

func (c *channel) unsubscribe(sess *Session) {
	c.mu.Lock()
	delete(c.subs, sess)
	c.mu.Unlock()
}

// drainSubs empties the subscriber set and returns the former members.
// Used when a pair channel is reaped.
func (c *channel) drainSubs() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.subs))
	for sess := range c.subs {
		out = append(out, sess)
	}
	clear(c.subs)
	return out
}

func (c *channel) append(e history.Entry) {
	c.mu.Lock()
	c.hist.Append(e)
	c.mu.Unlock()
}

func (c *channel) entries() []history.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hist.Entries()
}

// fanOut enqueues frame to every subscriber and returns the sessions
// whose queue was full. It runs at publish time under the channel lock,
// so the audience is the subscriber set of that moment and every
// subscriber observes publishes on one channel in the same order.
func (c *channel) fanOut(frame []byte) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	var slow []*Session
	for sess := range c.subs {
		if !sess.trySend(frame) {
			slow = append(slow, sess)
		}
	}
	return slow
}
