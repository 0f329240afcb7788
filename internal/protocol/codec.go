package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every decode failure. Malformed frames are
// dropped by the dispatcher; the connection stays open.
var ErrMalformed = errors.New("protocol: malformed frame")

// Request is a decoded client frame. Fields are set according to Type;
// unused fields stay zero. Target and Content alias the input buffer.
type Request struct {
	Type    byte
	Target  []byte // GET_USER user, CHANGE_STATUS user, SEND_MESSAGE / GET_MESSAGES peer
	Status  Status // CHANGE_STATUS only
	Content []byte // SEND_MESSAGE only
}

// reader walks a frame body left to right.
type reader struct {
	buf []byte
	off int
}

func (r *reader) byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d, have %d", ErrMalformed, r.off, len(r.buf))
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// bytes reads one length-prefixed byte string. A zero length prefix yields
// an empty (non-nil) slice; emptiness is judged by the dispatcher.
func (r *reader) bytes() ([]byte, error) {
	n, err := r.byte()
	if err != nil {
		return nil, err
	}
	end := r.off + int(n)
	if end > len(r.buf) {
		return nil, fmt.Errorf("%w: length prefix %d overruns frame at offset %d", ErrMalformed, n, r.off-1)
	}
	s := r.buf[r.off:end:end]
	r.off = end
	return s, nil
}

// DecodeRequest parses one inbound frame. Each request shape reads only
// what it needs; bytes past the decoded body are ignored.
func DecodeRequest(frame []byte) (Request, error) {
	r := reader{buf: frame}
	t, err := r.byte()
	if err != nil {
		return Request{}, err
	}

	req := Request{Type: t}
	switch t {
	case TypeListUsers:
		return req, nil

	case TypeGetUser, TypeGetMessages:
		if req.Target, err = r.bytes(); err != nil {
			return Request{}, err
		}
		return req, nil

	case TypeChangeStatus:
		if req.Target, err = r.bytes(); err != nil {
			return Request{}, err
		}
		st, err := r.byte()
		if err != nil {
			return Request{}, err
		}
		req.Status = Status(st)
		return req, nil

	case TypeSendMessage:
		if req.Target, err = r.bytes(); err != nil {
			return Request{}, err
		}
		if req.Content, err = r.bytes(); err != nil {
			return Request{}, err
		}
		return req, nil

	default:
		return Request{}, fmt.Errorf("%w: unknown type code %d", ErrMalformed, t)
	}
}

// RosterEntry is one user in a LISTED_USERS response.
type RosterEntry struct {
	Name   []byte
	Status Status
}

// MessageEntry is one stored chat line in a GOT_MESSAGES response.
type MessageEntry struct {
	Origin  []byte
	Content []byte
}

// appendString appends a length-prefixed byte string. Fields longer than
// MaxFieldLen are clamped; ingress validation keeps this unreachable for
// well-behaved callers.
func appendString(dst, s []byte) []byte {
	if len(s) > MaxFieldLen {
		s = s[:MaxFieldLen]
	}
	dst = append(dst, byte(len(s)))
	return append(dst, s...)
}

// EncodeError builds an ERROR frame.
func EncodeError(code ErrCode) []byte {
	return []byte{TypeError, byte(code)}
}

// EncodeRegisteredUser builds the REGISTERED_USER broadcast.
func EncodeRegisteredUser(name []byte, st Status) []byte {
	out := make([]byte, 0, 3+len(name))
	out = append(out, TypeRegisteredUser)
	out = appendString(out, name)
	return append(out, byte(st))
}

// EncodeChangedStatus builds the CHANGED_STATUS broadcast.
func EncodeChangedStatus(name []byte, st Status) []byte {
	out := make([]byte, 0, 3+len(name))
	out = append(out, TypeChangedStatus)
	out = appendString(out, name)
	return append(out, byte(st))
}

// EncodeGotUser builds the GOT_USER reply.
func EncodeGotUser(name []byte, st Status) []byte {
	out := make([]byte, 0, 3+len(name))
	out = append(out, TypeGotUser)
	out = appendString(out, name)
	return append(out, byte(st))
}

// EncodeGotMessage builds a GOT_MESSAGE frame. The peer field is carried
// exactly as the sender addressed it, so every subscriber of the channel
// sees the same bytes.
func EncodeGotMessage(peer, content []byte) []byte {
	out := make([]byte, 0, 3+len(peer)+len(content))
	out = append(out, TypeGotMessage)
	out = appendString(out, peer)
	return appendString(out, content)
}

// EncodeListedUsers builds the LISTED_USERS reply. At most MaxListEntries
// users fit behind the one-byte count; extras are dropped from the tail.
func EncodeListedUsers(users []RosterEntry) []byte {
	if len(users) > MaxListEntries {
		users = users[:MaxListEntries]
	}
	out := make([]byte, 0, 2+len(users)*8)
	out = append(out, TypeListedUsers, byte(len(users)))
	for _, u := range users {
		out = appendString(out, u.Name)
		out = append(out, byte(u.Status))
	}
	return out
}

// EncodeGotMessages builds the GOT_MESSAGES reply, oldest entry first. At
// most MaxListEntries entries fit behind the one-byte count.
func EncodeGotMessages(entries []MessageEntry) []byte {
	if len(entries) > MaxListEntries {
		entries = entries[:MaxListEntries]
	}
	out := make([]byte, 0, 2+len(entries)*16)
	out = append(out, TypeGotMessages, byte(len(entries)))
	for _, e := range entries {
		out = appendString(out, e.Origin)
		out = appendString(out, e.Content)
	}
	return out
}

// RetypeAsGotMessage rewrites an inbound SEND_MESSAGE frame into the
// GOT_MESSAGE broadcast published on the target channel. The body is
// byte-identical to what the sender wrote.
func RetypeAsGotMessage(frame []byte) []byte {
	out := make([]byte, len(frame))
	copy(out, frame)
	out[0] = TypeGotMessage
	return out
}
