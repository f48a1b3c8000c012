package registry

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakeConn struct {
	id      uuid.UUID
	frames  [][]byte
	failing bool
}

func (f *fakeConn) ID() uuid.UUID { return f.id }
func (f *fakeConn) Enqueue(messageType uint16, payload []byte) error {
	if f.failing {
		return errors.New("enqueue failed")
	}
	f.frames = append(f.frames, payload)
	return nil
}

func TestBindUnbindTracksOnlineStatus(t *testing.T) {
	r := New()
	userID := uuid.New()
	c := &fakeConn{id: uuid.New()}

	if r.IsOnline(userID) {
		t.Fatalf("expected offline before bind")
	}
	r.Bind(userID, c)
	if !r.IsOnline(userID) {
		t.Fatalf("expected online after bind")
	}
	r.Unbind(userID, c.ID())
	if r.IsOnline(userID) {
		t.Fatalf("expected offline after unbind")
	}
}

func TestFanOutExcludesSenderConnection(t *testing.T) {
	r := New()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	aliceConn := &fakeConn{id: uuid.New()}
	bobConn := &fakeConn{id: uuid.New()}
	carolConn := &fakeConn{id: uuid.New()}
	r.Bind(alice, aliceConn)
	r.Bind(bob, bobConn)
	r.Bind(carol, carolConn)

	payload := []byte("message-receive-payload")
	delivered := r.FanOut([]uuid.UUID{alice, bob, carol}, aliceConn.ID(), 0x0502, payload)

	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if len(aliceConn.frames) != 0 {
		t.Fatalf("expected sender's own connection to receive nothing")
	}
	if len(bobConn.frames) != 1 || len(carolConn.frames) != 1 {
		t.Fatalf("expected exactly one delivery each to bob and carol")
	}
}

func TestDeliverSkipsFailingConnectionWithoutAborting(t *testing.T) {
	r := New()
	userID := uuid.New()
	good := &fakeConn{id: uuid.New()}
	bad := &fakeConn{id: uuid.New(), failing: true}
	r.Bind(userID, good)
	r.Bind(userID, bad)

	delivered := r.Deliver(userID, uuid.Nil, 0x0502, []byte("x"))
	if delivered != 1 {
		t.Fatalf("expected exactly 1 successful delivery, got %d", delivered)
	}
}

func TestCurrentUsersCountsDistinctUsers(t *testing.T) {
	r := New()
	u1, u2 := uuid.New(), uuid.New()
	r.Bind(u1, &fakeConn{id: uuid.New()})
	r.Bind(u1, &fakeConn{id: uuid.New()})
	r.Bind(u2, &fakeConn{id: uuid.New()})
	if got := r.CurrentUsers(); got != 2 {
		t.Fatalf("expected 2 distinct users, got %d", got)
	}
}
