package connection

import (
	"encoding/json"
	"time"

	"github.com/chatv2/chatv2-server/cryptosuite"
	"github.com/chatv2/chatv2-server/observability"
	"github.com/chatv2/chatv2-server/wire"
)

type keyExchangeAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleHandshake implements the UNAUTHENTICATED_PLAIN -> AWAIT_KEY_EXCHANGE
// transition of spec.md §4.3: reply with the server's DER-encoded RSA
// public key.
func (c *Conn) handleHandshake(pkt wire.Packet) error {
	c.setState(StateAwaitKeyExchange)
	resp := pkt.Reply(wire.MsgAuthHandshakeRes, c.identity.PublicKeyDER, nowMillis())
	return c.sendOutbound(resp)
}

// handleKeyExchange implements AWAIT_KEY_EXCHANGE -> UNAUTHENTICATED_ENCRYPTED:
// unwrap the RSA-OAEP-wrapped AES-256 key, bind a SessionCipher, and ack.
// Also permitted from UNAUTHENTICATED_ENCRYPTED to allow an already-keyed
// connection to rotate its session key (spec.md §4.4 "replace the session
// key atomically").
func (c *Conn) handleKeyExchange(pkt wire.Packet) error {
	state := c.getState()
	if state != StateAwaitKeyExchange && state != StateUnauthenticatedEncrypted {
		c.obs.Handshake(observability.HandshakeResultFailed)
		return errWrongState
	}

	key, err := c.identity.priv.unwrap(pkt.Payload)
	if err != nil {
		c.obs.Handshake(observability.HandshakeResultFailed)
		ack := mustMarshalAck(keyExchangeAck{OK: false, Error: "handshake failed"})
		_ = c.sendOutbound(pkt.Reply(wire.MsgAuthKeyExchangeRes, ack, nowMillis()))
		return errHandshakeFailed
	}
	cipher, err := cryptosuite.NewSessionCipher(key)
	if err != nil {
		c.obs.Handshake(observability.HandshakeResultFailed)
		return errHandshakeFailed
	}

	c.mu.Lock()
	c.cipher = cipher
	c.mu.Unlock()
	c.setState(StateUnauthenticatedEncrypted)
	c.obs.Handshake(observability.HandshakeResultOK)

	ack := mustMarshalAck(keyExchangeAck{OK: true})
	return c.sendOutbound(pkt.Reply(wire.MsgAuthKeyExchangeRes, ack, nowMillis()))
}

func mustMarshalAck(a keyExchangeAck) []byte {
	b, err := json.Marshal(a)
	if err != nil {
		return []byte(`{"ok":false,"error":"internal error"}`)
	}
	return b
}

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }
