package connection

import (
	"bufio"
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/chatv2/chatv2-server/cryptosuite"
	"github.com/chatv2/chatv2-server/dispatch"
	"github.com/chatv2/chatv2-server/observability"
	"github.com/chatv2/chatv2-server/registry"
	"github.com/chatv2/chatv2-server/wire"
)

func TestStateStringCoversAllStates(t *testing.T) {
	cases := map[State]string{
		StateNew:                      "NEW",
		StateUnauthenticatedPlain:     "UNAUTHENTICATED_PLAIN",
		StateAwaitKeyExchange:         "AWAIT_KEY_EXCHANGE",
		StateUnauthenticatedEncrypted: "UNAUTHENTICATED_ENCRYPTED",
		StateAuthenticated:            "AUTHENTICATED",
		StateClosed:                   "CLOSED",
		State(99):                     "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func newTestIdentity(t *testing.T) *ServerIdentity {
	t.Helper()
	priv, err := cryptosuite.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	der, err := cryptosuite.EncodePublicKeyDER(&priv.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyDER: %v", err)
	}
	return NewServerIdentity(der, func(wrapped []byte) ([32]byte, error) {
		return cryptosuite.UnwrapSessionKey(priv, wrapped)
	})
}

func newTestConn(t *testing.T, nc net.Conn) *Conn {
	t.Helper()
	identity := newTestIdentity(t)
	disp := dispatch.New(&dispatch.Deps{})
	reg := registry.New()
	return New(nc, identity, disp, reg, observability.Noop, Config{
		ReadTimeout:        time.Second,
		HeartbeatInterval:  500 * time.Millisecond,
		EncryptionRequired: true,
		MaxQueuedOutbound:  16,
	})
}

func TestConnIDMatchesConnIDAccessor(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newTestConn(t, server)
	if c.ID() != c.ConnID() {
		t.Fatalf("expected ID() and ConnID() to match")
	}
	if c.Authenticated() {
		t.Fatalf("expected a fresh connection to be unauthenticated")
	}
	if c.UserID().String() == "" {
		t.Fatalf("expected UserID() to return a zero-value uuid, not empty")
	}
}

func TestKeyExchangeBeforeHandshakeIsRejected(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newTestConn(t, server)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Serve(ctx)

	// Sending MsgAuthKeyExchangeReq while still in StateUnauthenticatedPlain
	// (handshake never performed) is a protocol violation: the connection
	// must close rather than silently accept it.
	frame, err := wire.Encode(wire.Packet{Type: wire.MsgAuthKeyExchangeReq, Payload: []byte("bogus")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := client.Read(buf); err == nil {
		t.Fatalf("expected the connection to close without a reply")
	}
}

func TestUnencryptedFrameAfterKeyExchangeIsRejected(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newTestConn(t, server)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Serve(ctx)

	dec := wire.NewDecoder(bufio.NewReader(client))

	// Handshake: request the server's public key.
	frame, err := wire.Encode(wire.Packet{Type: wire.MsgAuthHandshakeReq})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := dec.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket(handshake): %v", err)
	}
	pub, err := cryptosuite.DecodePublicKeyDER(resp.Payload)
	if err != nil {
		t.Fatalf("DecodePublicKeyDER: %v", err)
	}

	// Key exchange: wrap a fresh session key and bind it.
	var sessionKey [32]byte
	if _, err := rand.Read(sessionKey[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	wrapped, err := cryptosuite.WrapSessionKey(pub, sessionKey)
	if err != nil {
		t.Fatalf("WrapSessionKey: %v", err)
	}
	frame, err = wire.Encode(wire.Packet{Type: wire.MsgAuthKeyExchangeReq, Payload: wrapped})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err = dec.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket(key exchange): %v", err)
	}
	if resp.Type != wire.MsgAuthKeyExchangeRes {
		t.Fatalf("expected MsgAuthKeyExchangeRes, got %v", resp.Type)
	}

	// A session key is now bound. A non-handshake-exempt frame sent with
	// FlagEncrypted clear must be rejected and the connection closed,
	// rather than accepted as plaintext.
	frame, err = wire.Encode(wire.Packet{Type: wire.MsgPing})
	if err != nil {
		t.Fatalf("Encode(ping): %v", err)
	}
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("Write(ping): %v", err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := dec.ReadPacket(); err == nil {
		t.Fatalf("expected the connection to close rather than reply to an unencrypted frame")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newTestConn(t, server)
	c.Close(observability.CloseReasonServerShutdown)
	c.Close(observability.CloseReasonServerShutdown)
	if c.getState() != StateClosed {
		t.Fatalf("expected StateClosed after Close, got %v", c.getState())
	}
}
