package connection

import "errors"

var (
	errOutboundQueueFull  = errors.New("connection: outbound queue full")
	errNoSessionKey       = errors.New("connection: encrypted frame received with no session key bound")
	errUnencryptedPayload = errors.New("connection: plaintext frame received after a session key was bound")
	errWrongState         = errors.New("connection: message type not valid in current state")
	errHandshakeFailed    = errors.New("connection: key exchange handshake failed")
)
