package core

import (
	"time"

	"uwuchat/internal/history"
	"uwuchat/internal/protocol"
)

// HandleFrame decodes and executes one inbound frame for a registered
// user session. Malformed frames are counted, logged and dropped; the
// connection stays open. Any well-formed frame refreshes the sender's
// last-action clock, and an Inactive sender is promoted back to Active
// before the frame itself runs.
func (s *State) HandleFrame(sess *Session, frame []byte) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		metricMalformedFrames.Inc()
		s.log.Warn().
			Err(err).
			Str("conn_id", sess.ID).
			Str("user", sess.Name).
			Int("len", len(frame)).
			Msg("malformed frame dropped")
		return
	}
	metricInboundFrames.WithLabelValues(protocol.TypeName(req.Type)).Inc()
	s.touchAndPromote(sess)

	switch req.Type {
	case protocol.TypeListUsers:
		s.handleListUsers(sess)
	case protocol.TypeGetUser:
		s.handleGetUser(sess, req)
	case protocol.TypeChangeStatus:
		s.handleChangeStatus(sess, req)
	case protocol.TypeSendMessage:
		s.handleSendMessage(sess, frame, req)
	case protocol.TypeGetMessages:
		s.handleGetMessages(sess, req)
	}
}

// touchAndPromote refreshes the sender's activity clock. If the idle
// detector had demoted the sender, the promotion broadcast goes out here,
// ahead of both the frame's own reply and anything it publishes.
func (s *State) touchAndPromote(sess *Session) {
	u := sess.user
	u.touch(time.Now())

	s.mu.RLock()
	inactive := u.Status == protocol.StatusInactive
	s.mu.RUnlock()
	if !inactive {
		return
	}

	s.mu.Lock()
	promoted := u.Status == protocol.StatusInactive
	if promoted {
		u.Status = protocol.StatusActive
		s.publish(s.group, protocol.EncodeChangedStatus([]byte(u.Name), protocol.StatusActive))
	}
	s.mu.Unlock()
	if promoted {
		s.log.Debug().Str("user", u.Name).Msg("idle user promoted back to active")
	}
}

func (s *State) handleListUsers(sess *Session) {
	s.mu.RLock()
	roster := s.users.roster()
	s.mu.RUnlock()
	s.sendTo(sess, protocol.EncodeListedUsers(roster))
}

func (s *State) handleGetUser(sess *Session, req protocol.Request) {
	s.mu.RLock()
	u, ok := s.users.lookup(string(req.Target))
	var st protocol.Status
	if ok {
		st = u.Status
	}
	s.mu.RUnlock()

	if !ok {
		s.sendTo(sess, protocol.EncodeError(protocol.ErrCodeUserNotFound))
		return
	}
	// The reply carries the name bytes as the requester wrote them.
	s.sendTo(sess, protocol.EncodeGotUser(req.Target, st))
}

// handleChangeStatus applies a self-service status change. Explicit
// changes may only toggle between Active and Busy, and a no-op change is
// refused the same way as an out-of-range byte. Requests naming another
// user are dropped without a reply.
func (s *State) handleChangeStatus(sess *Session, req protocol.Request) {
	if string(req.Target) != sess.Name {
		s.log.Debug().
			Str("user", sess.Name).
			Str("target", string(req.Target)).
			Msg("status change for another user ignored")
		return
	}

	next := req.Status
	s.mu.Lock()
	u := sess.user
	valid := (next == protocol.StatusActive || next == protocol.StatusBusy) && next != u.Status
	if valid {
		u.Status = next
		s.publish(s.group, protocol.EncodeChangedStatus([]byte(u.Name), next))
	}
	s.mu.Unlock()

	if !valid {
		s.sendTo(sess, protocol.EncodeError(protocol.ErrCodeInvalidStatus))
		return
	}
	s.log.Debug().Str("user", sess.Name).Str("status", next.String()).Msg("status changed")
}

// handleSendMessage records the message in the target channel's history
// and publishes it exactly once; fan-out delivers it to every subscriber,
// the sender included. The published frame is the inbound frame with its
// type byte rewritten, so the peer field reads as the sender addressed it.
func (s *State) handleSendMessage(sess *Session, frame []byte, req protocol.Request) {
	if len(req.Content) == 0 {
		s.sendTo(sess, protocol.EncodeError(protocol.ErrCodeEmptyMessage))
		return
	}

	entry := history.Entry{
		Origin:  []byte(sess.Name),
		Content: append([]byte(nil), req.Content...),
	}
	out := protocol.RetypeAsGotMessage(frame)

	target := string(req.Target)
	if target == protocol.GroupName {
		s.group.append(entry)
		s.publish(s.group, out)
		return
	}

	s.mu.RLock()
	_, ok := s.users.lookup(target)
	ch := s.channels[PairKey(sess.Name, target)]
	s.mu.RUnlock()
	if !ok {
		s.sendTo(sess, protocol.EncodeError(protocol.ErrCodeUserNotFound))
		return
	}
	if ch == nil {
		// Self-addressed pairs are created on first use; a peer pair can
		// also be missing if the peer raced a reconnect.
		if ch = s.ensurePair(sess, target); ch == nil {
			s.sendTo(sess, protocol.EncodeError(protocol.ErrCodeUserNotFound))
			return
		}
	}
	ch.append(entry)
	s.publish(ch, out)
}

// ensurePair get-or-creates the pair channel between sess and target with
// both endpoints subscribed, or returns nil if target is no longer
// registered.
func (s *State) ensurePair(sess *Session, target string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok := s.users.lookup(target)
	if !ok {
		return nil
	}
	ch := s.ensurePairLocked(sess.Name, target)
	s.subscribeLocked(sess, ch)
	s.subscribeLocked(peer.sess, ch)
	return ch
}

func (s *State) handleGetMessages(sess *Session, req protocol.Request) {
	target := string(req.Target)
	var ch *channel
	if target == protocol.GroupName {
		ch = s.group
	} else {
		s.mu.RLock()
		_, ok := s.users.lookup(target)
		ch = s.channels[PairKey(sess.Name, target)]
		s.mu.RUnlock()
		if !ok || ch == nil {
			s.sendTo(sess, protocol.EncodeError(protocol.ErrCodeUserNotFound))
			return
		}
	}

	stored := ch.entries()
	entries := make([]protocol.MessageEntry, len(stored))
	for i, e := range stored {
		entries[i] = protocol.MessageEntry{Origin: e.Origin, Content: e.Content}
	}
	s.sendTo(sess, protocol.EncodeGotMessages(entries))
}

// sendTo enqueues a direct reply on the same queue fan-out lands in, so
// a broadcast published earlier on this dispatcher goroutine reaches the
// client first. A full queue drops the connection, the same as a slow
// subscriber during fan-out.
func (s *State) sendTo(sess *Session, frame []byte) {
	if sess.trySend(frame) {
		return
	}
	metricDroppedSubscribers.Inc()
	s.log.Warn().
		Str("conn_id", sess.ID).
		Str("user", sess.Name).
		Msg("outbound queue full, dropping connection")
	sess.Drop()
}
