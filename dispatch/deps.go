package dispatch

import (
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/session"
	"github.com/google/uuid"
)

// Fanout is the subset of registry.Registry the dispatcher needs: push a
// plaintext (messageType, payload) to every live connection of each chat
// participant. Defined here (rather than importing package registry
// directly) so dispatch has no compile-time dependency on the connection
// registry's concurrency internals — only the capability it actually
// calls. Payloads stay plaintext at this layer because each recipient
// connection holds its own session key and encrypts the push for itself
// (spec.md §4.2).
type Fanout interface {
	FanOut(participantIDs []uuid.UUID, excludeConnID uuid.UUID, messageType uint16, payload []byte) int
}

// Deps bundles every external collaborator a handler may need. It is built
// once at server startup and handed to New.
type Deps struct {
	Users    repo.UserRepository
	Sessions *session.Manager
	Chats    repo.ChatRepository
	Messages repo.MessageRepository
	Fanout   Fanout
}
