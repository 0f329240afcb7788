package core

import (
	"testing"

	"uwuchat/internal/protocol"
)

// openPair registers alice and bob and drains the registration
// broadcasts, so each test starts from quiet queues.
func openPair(t *testing.T, st *State) (*Session, *Session) {
	t.Helper()
	alice := openUser(t, st, "alice")
	bob := openUser(t, st, "bob")
	recvExact(t, alice, protocol.EncodeRegisteredUser([]byte("alice"), protocol.StatusActive))
	recvExact(t, alice, protocol.EncodeRegisteredUser([]byte("bob"), protocol.StatusActive))
	recvExact(t, bob, protocol.EncodeRegisteredUser([]byte("bob"), protocol.StatusActive))
	return alice, bob
}

// ---------------------------------------------------------------------------
// LIST_USERS / GET_USER
// ---------------------------------------------------------------------------

func TestListUsersReturnsRosterWithStatuses(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(bob, []byte{protocol.TypeChangeStatus, 3, 'b', 'o', 'b', byte(protocol.StatusBusy)})
	recvExact(t, alice, protocol.EncodeChangedStatus([]byte("bob"), protocol.StatusBusy))
	recvExact(t, bob, protocol.EncodeChangedStatus([]byte("bob"), protocol.StatusBusy))

	st.HandleFrame(alice, []byte{protocol.TypeListUsers})
	recvExact(t, alice, protocol.EncodeListedUsers([]protocol.RosterEntry{
		{Name: []byte("alice"), Status: protocol.StatusActive},
		{Name: []byte("bob"), Status: protocol.StatusBusy},
	}))
}

func TestGetUserEchoesRequestedName(t *testing.T) {
	st := newTestState(t)
	alice, _ := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeGetUser, 3, 'b', 'o', 'b'})
	recvExact(t, alice, protocol.EncodeGotUser([]byte("bob"), protocol.StatusActive))
}

func TestGetUserUnknownUser(t *testing.T) {
	st := newTestState(t)
	alice, _ := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeGetUser, 5, 'g', 'h', 'o', 's', 't'})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeUserNotFound))
}

// ---------------------------------------------------------------------------
// CHANGE_STATUS
// ---------------------------------------------------------------------------

func TestChangeStatusBroadcastsToEveryone(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeChangeStatus, 5, 'a', 'l', 'i', 'c', 'e', byte(protocol.StatusBusy)})
	want := protocol.EncodeChangedStatus([]byte("alice"), protocol.StatusBusy)
	recvExact(t, alice, want)
	recvExact(t, bob, want)
}

func TestChangeStatusRejectsNoOp(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	// alice is already active.
	st.HandleFrame(alice, []byte{protocol.TypeChangeStatus, 5, 'a', 'l', 'i', 'c', 'e', byte(protocol.StatusActive)})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeInvalidStatus))
	assertNoFrame(t, bob)
}

func TestChangeStatusRejectsOutOfRangeValues(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	for _, status := range []byte{byte(protocol.StatusDisconnected), byte(protocol.StatusInactive), 9} {
		st.HandleFrame(alice, []byte{protocol.TypeChangeStatus, 5, 'a', 'l', 'i', 'c', 'e', status})
		recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeInvalidStatus))
	}
	assertNoFrame(t, bob)
}

func TestChangeStatusForAnotherUserIgnored(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeChangeStatus, 3, 'b', 'o', 'b', byte(protocol.StatusBusy)})
	assertNoFrame(t, alice)
	assertNoFrame(t, bob)

	roster := st.Roster()
	if roster[1].Status != protocol.StatusActive {
		t.Fatalf("bob's status = %v, want active; nobody changes it but bob", roster[1].Status)
	}
}

// ---------------------------------------------------------------------------
// SEND_MESSAGE
// ---------------------------------------------------------------------------

func TestDirectMessageReachesBothEndpoints(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	frame := []byte{protocol.TypeSendMessage, 3, 'b', 'o', 'b', 2, 'h', 'i'}
	st.HandleFrame(alice, frame)

	want := []byte{protocol.TypeGotMessage, 3, 'b', 'o', 'b', 2, 'h', 'i'}
	recvExact(t, alice, want)
	recvExact(t, bob, want)

	if frame[0] != protocol.TypeSendMessage {
		t.Fatal("inbound frame must not be mutated by the retype")
	}
}

func TestDirectMessageEmptyContentRejected(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 3, 'b', 'o', 'b', 0})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeEmptyMessage))
	assertNoFrame(t, bob)
}

func TestDirectMessageUnknownPeer(t *testing.T) {
	st := newTestState(t)
	alice, _ := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 5, 'g', 'h', 'o', 's', 't', 2, 'h', 'i'})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeUserNotFound))
}

func TestSelfMessageDeliversOnce(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 5, 'a', 'l', 'i', 'c', 'e', 2, 'h', 'i'})
	recvExact(t, alice, []byte{protocol.TypeGotMessage, 5, 'a', 'l', 'i', 'c', 'e', 2, 'h', 'i'})
	assertNoFrame(t, alice)
	assertNoFrame(t, bob)

	st.HandleFrame(alice, []byte{protocol.TypeGetMessages, 5, 'a', 'l', 'i', 'c', 'e'})
	recvExact(t, alice, protocol.EncodeGotMessages([]protocol.MessageEntry{
		{Origin: []byte("alice"), Content: []byte("hi")},
	}))
}

func TestGroupMessageFanOutAndHistory(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 1, '~', 2, 'y', 'o'})
	wantFirst := []byte{protocol.TypeGotMessage, 1, '~', 2, 'y', 'o'}
	recvExact(t, alice, wantFirst)
	recvExact(t, bob, wantFirst)

	st.HandleFrame(bob, []byte{protocol.TypeSendMessage, 1, '~', 2, 'h', 'i'})
	wantSecond := []byte{protocol.TypeGotMessage, 1, '~', 2, 'h', 'i'}
	recvExact(t, alice, wantSecond)
	recvExact(t, bob, wantSecond)

	st.HandleFrame(alice, []byte{protocol.TypeGetMessages, 1, '~'})
	recvExact(t, alice, protocol.EncodeGotMessages([]protocol.MessageEntry{
		{Origin: []byte("alice"), Content: []byte("yo")},
		{Origin: []byte("bob"), Content: []byte("hi")},
	}))
}

// ---------------------------------------------------------------------------
// GET_MESSAGES
// ---------------------------------------------------------------------------

func TestGetMessagesUnknownPeer(t *testing.T) {
	st := newTestState(t)
	alice, _ := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeGetMessages, 5, 'g', 'h', 'o', 's', 't'})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeUserNotFound))
}

func TestGetMessagesSelfPairBeforeFirstMessage(t *testing.T) {
	st := newTestState(t)
	alice, _ := openPair(t, st)

	// The self pair only exists once a message created it.
	st.HandleFrame(alice, []byte{protocol.TypeGetMessages, 5, 'a', 'l', 'i', 'c', 'e'})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeUserNotFound))
}

func TestGetMessagesPairHistoryKeepsOrder(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 3, 'b', 'o', 'b', 3, 'o', 'n', 'e'})
	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 3, 'b', 'o', 'b', 3, 't', 'w', 'o'})
	st.HandleFrame(bob, []byte{protocol.TypeSendMessage, 5, 'a', 'l', 'i', 'c', 'e', 5, 't', 'h', 'r', 'e', 'e'})
	for i := 0; i < 3; i++ {
		recvFrame(t, alice)
		recvFrame(t, bob)
	}

	st.HandleFrame(bob, []byte{protocol.TypeGetMessages, 5, 'a', 'l', 'i', 'c', 'e'})
	recvExact(t, bob, protocol.EncodeGotMessages([]protocol.MessageEntry{
		{Origin: []byte("alice"), Content: []byte("one")},
		{Origin: []byte("alice"), Content: []byte("two")},
		{Origin: []byte("bob"), Content: []byte("three")},
	}))
}

func TestGetMessagesAfterPeerDisconnectStartsFresh(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{protocol.TypeSendMessage, 3, 'b', 'o', 'b', 2, 'h', 'i'})
	recvFrame(t, alice)
	recvFrame(t, bob)

	st.Close(bob)
	st.HandleFrame(alice, []byte{protocol.TypeGetMessages, 3, 'b', 'o', 'b'})
	recvExact(t, alice, protocol.EncodeError(protocol.ErrCodeUserNotFound))

	// Reconnecting starts with a clean slate: the old history was reaped
	// with the pair channel.
	openUser(t, st, "bob")
	recvExact(t, alice, protocol.EncodeRegisteredUser([]byte("bob"), protocol.StatusActive))
	st.HandleFrame(alice, []byte{protocol.TypeGetMessages, 3, 'b', 'o', 'b'})
	recvExact(t, alice, protocol.EncodeGotMessages(nil))
}

// ---------------------------------------------------------------------------
// Malformed input
// ---------------------------------------------------------------------------

func TestMalformedFrameIsDroppedQuietly(t *testing.T) {
	st := newTestState(t)
	alice, bob := openPair(t, st)

	st.HandleFrame(alice, []byte{99, 1, 2})
	st.HandleFrame(alice, []byte{protocol.TypeGetUser, 200, 'x'})
	st.HandleFrame(alice, nil)
	assertNoFrame(t, alice)
	assertNoFrame(t, bob)

	select {
	case <-alice.Done():
		t.Fatal("malformed frames must not drop the connection")
	default:
	}

	// The connection keeps working afterwards.
	st.HandleFrame(alice, []byte{protocol.TypeListUsers})
	recvExact(t, alice, protocol.EncodeListedUsers(st.Roster()))
}
