package dispatch

import (
	"time"

	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/session"
	"github.com/google/uuid"
)

// fakeSession is a minimal Session implementation for driving handlers
// directly in tests, bypassing the wire codec and Registry.Dispatch.
type fakeSession struct {
	userID uuid.UUID
	connID uuid.UUID
	authed bool
}

func (s fakeSession) UserID() uuid.UUID   { return s.userID }
func (s fakeSession) ConnID() uuid.UUID   { return s.connID }
func (s fakeSession) Authenticated() bool { return s.authed }

func newTestDeps() *Deps {
	return &Deps{
		Users:    repo.NewInMemoryUserRepository(),
		Sessions: session.NewManager(repo.NewInMemorySessionRepository(), session.Config{Secret: []byte("dispatch-test-secret"), TokenTTL: time.Hour}),
		Chats:    repo.NewInMemoryChatRepository(),
		Messages: repo.NewInMemoryMessageRepository(),
	}
}

func authedSession(userID uuid.UUID) fakeSession {
	return fakeSession{userID: userID, connID: uuid.New(), authed: true}
}
