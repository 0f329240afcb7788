// Package protocol defines the length-prefixed binary chat protocol.
//
// Every frame starts with a one-byte type code. Byte string fields are
// encoded as a single length byte followed by that many payload bytes, so
// no field exceeds 255 bytes.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Client to server frame types.
const (
	TypeListUsers    byte = 1
	TypeGetUser      byte = 2
	TypeChangeStatus byte = 3
	TypeSendMessage  byte = 4
	TypeGetMessages  byte = 5
)

// Server to client frame types.
const (
	TypeError          byte = 50
	TypeListedUsers    byte = 51
	TypeGotUser        byte = 52
	TypeRegisteredUser byte = 53
	TypeChangedStatus  byte = 54
	TypeGotMessage     byte = 55
	TypeGotMessages    byte = 56
)

// TypeName returns a short lowercase name for a frame type code, for logs
// and metric labels.
func TypeName(t byte) string {
	switch t {
	case TypeListUsers:
		return "list_users"
	case TypeGetUser:
		return "get_user"
	case TypeChangeStatus:
		return "change_status"
	case TypeSendMessage:
		return "send_message"
	case TypeGetMessages:
		return "get_messages"
	case TypeError:
		return "error"
	case TypeListedUsers:
		return "listed_users"
	case TypeGotUser:
		return "got_user"
	case TypeRegisteredUser:
		return "registered_user"
	case TypeChangedStatus:
		return "changed_status"
	case TypeGotMessage:
		return "got_message"
	case TypeGotMessages:
		return "got_messages"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Status is a user presence state as carried on the wire.
type Status byte

const (
	StatusDisconnected Status = 0
	StatusActive       Status = 1
	StatusBusy         Status = 2
	StatusInactive     Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusActive:
		return "active"
	case StatusBusy:
		return "busy"
	case StatusInactive:
		return "inactive"
	default:
		return fmt.Sprintf("status(%d)", byte(s))
	}
}

// ErrCode is the wire error code carried by an ERROR frame.
type ErrCode byte

const (
	ErrCodeUserNotFound            ErrCode = 0
	ErrCodeInvalidStatus           ErrCode = 1
	ErrCodeEmptyMessage            ErrCode = 2
	ErrCodeUserAlreadyDisconnected ErrCode = 3
)

func (e ErrCode) String() string {
	switch e {
	case ErrCodeUserNotFound:
		return "user_not_found"
	case ErrCodeInvalidStatus:
		return "invalid_status"
	case ErrCodeEmptyMessage:
		return "empty_message"
	case ErrCodeUserAlreadyDisconnected:
		return "user_already_disconnected"
	default:
		return fmt.Sprintf("err(%d)", byte(e))
	}
}

// GroupName is the reserved peer name addressing the group room. No user
// may register under it.
const GroupName = "~"

// PairSep separates the two usernames inside a pair channel key. Names
// containing it are rejected at the handshake so pair keys stay injective.
const PairSep = "&/)"

// Wire limits.
const (
	// MaxFieldLen is the longest byte string a single length prefix can
	// describe.
	MaxFieldLen = 255

	// MaxListEntries bounds the repeated section of LISTED_USERS and
	// GOT_MESSAGES; both carry a one-byte entry count.
	MaxListEntries = 255

	// MaxFrameSize is the largest frame the server ever produces: a
	// GOT_MESSAGES response with 255 entries of two maximal byte strings.
	// Inbound reads are capped at no less than this.
	MaxFrameSize = 1 + 1 + MaxListEntries*(1+MaxFieldLen+1+MaxFieldLen)
)

// Username validation failures, surfaced during the HTTP handshake.
var (
	ErrNameEmpty    = errors.New("protocol: username is empty")
	ErrNameTooLong  = errors.New("protocol: username exceeds 255 bytes")
	ErrNameReserved = errors.New("protocol: username is reserved")
)

// ValidateName checks a proposed username against the wire rules: 1..255
// bytes, not the reserved group name, and free of the pair separator.
// Uniqueness is checked at registration, not here.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxFieldLen {
		return ErrNameTooLong
	}
	if name == GroupName || strings.Contains(name, PairSep) {
		return ErrNameReserved
	}
	return nil
}
