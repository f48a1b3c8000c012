// Package connection implements the per-connection handler chain and state
// machine of spec.md §4.3: frame codec, decryption, dispatch, encryption,
// frame codec, wired around a net.Conn. The closeOnce/background-goroutine
// shape (a stop channel guarding a single teardown) is adapted from the
// teacher's endpoint/session.go session.Close/startKeepalive pattern.
package connection

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/chatv2/chatv2-server/cryptosuite"
	"github.com/chatv2/chatv2-server/dispatch"
	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/internal/defaults"
	"github.com/chatv2/chatv2-server/observability"
	"github.com/chatv2/chatv2-server/registry"
	"github.com/chatv2/chatv2-server/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is a connection's position in the handshake/auth state machine.
type State int32

const (
	StateNew State = iota
	StateUnauthenticatedPlain
	StateAwaitKeyExchange
	StateUnauthenticatedEncrypted
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateUnauthenticatedPlain:
		return "UNAUTHENTICATED_PLAIN"
	case StateAwaitKeyExchange:
		return "AWAIT_KEY_EXCHANGE"
	case StateUnauthenticatedEncrypted:
		return "UNAUTHENTICATED_ENCRYPTED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ServerIdentity is the long-lived RSA keypair and DER encoding of the
// public half, generated once at server startup and shared by every
// connection's handshake handler.
type ServerIdentity struct {
	PublicKeyDER []byte
	priv         *rsaPrivateKeyHolder
}

// rsaPrivateKeyHolder avoids importing crypto/rsa into this file's public
// surface; connection only ever calls UnwrapSessionKey through it.
type rsaPrivateKeyHolder struct {
	unwrap func(wrapped []byte) ([32]byte, error)
}

// NewServerIdentity wraps a generated RSA keypair for handshake use.
func NewServerIdentity(pub []byte, unwrap func(wrapped []byte) ([32]byte, error)) *ServerIdentity {
	return &ServerIdentity{PublicKeyDER: pub, priv: &rsaPrivateKeyHolder{unwrap: unwrap}}
}

// Config configures a Conn's timeouts. EncryptionRequired is carried but not
// read by Conn: a login binds a connection only after the key exchange,
// whatever its value.
type Config struct {
	ReadTimeout         time.Duration
	HeartbeatInterval   time.Duration
	EncryptionRequired  bool
	MaxQueuedOutbound   int
}

// DefaultConfig mirrors internal/defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:        defaults.ReadTimeout,
		HeartbeatInterval:  defaults.HeartbeatInterval,
		EncryptionRequired: true,
		MaxQueuedOutbound:  256,
	}
}

// Conn is one accepted TCP connection running the full pipeline. It
// implements dispatch.Session (identity/auth state for handlers) and
// registry.Conn (non-blocking outbound enqueue for fan-out).
type Conn struct {
	id       uuid.UUID
	nc       net.Conn
	decoder  *wire.Decoder
	cfg      Config
	identity *ServerIdentity
	disp     *dispatch.Registry
	reg      *registry.Registry
	obs      observability.Observer

	mu     sync.Mutex
	state  State
	cipher *cryptosuite.SessionCipher
	userID uuid.UUID

	out      chan []byte
	closeCh  chan struct{}
	closeOnce sync.Once
}

var _ dispatch.Session = (*Conn)(nil)
var _ registry.Conn = (*Conn)(nil)

// New wraps an accepted net.Conn. Call Serve to run its lifecycle.
func New(nc net.Conn, identity *ServerIdentity, disp *dispatch.Registry, reg *registry.Registry, obs observability.Observer, cfg Config) *Conn {
	if obs == nil {
		obs = observability.Noop
	}
	return &Conn{
		id:       uuid.New(),
		nc:       nc,
		decoder:  wire.NewDecoder(bufio.NewReader(nc)),
		cfg:      cfg,
		identity: identity,
		disp:     disp,
		reg:      reg,
		obs:      obs,
		state:    StateNew,
		out:      make(chan []byte, cfg.MaxQueuedOutbound),
		closeCh:  make(chan struct{}),
	}
}

// ID satisfies registry.Conn and dispatch.Session's ConnID.
func (c *Conn) ID() uuid.UUID { return c.id }

// ConnID satisfies dispatch.Session.
func (c *Conn) ConnID() uuid.UUID { return c.id }

// UserID satisfies dispatch.Session; returns uuid.Nil until authenticated.
func (c *Conn) UserID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Authenticated satisfies dispatch.Session.
func (c *Conn) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAuthenticated
}

func (c *Conn) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Enqueue satisfies registry.Conn: builds a packet of the given type and
// plaintext payload, encrypts it under this connection's own session key
// if one is bound (each recipient of a fan-out encrypts independently,
// since session keys are per-connection), and pushes the resulting frame
// onto the writer goroutine's outbound queue without blocking. A full
// queue drops the frame rather than blocking the registry's fan-out walk.
func (c *Conn) Enqueue(messageType uint16, payload []byte) error {
	pkt := wire.Packet{Type: wire.MessageType(messageType), Timestamp: uint64(time.Now().UnixMilli()), Payload: payload}
	frame, err := c.encodeOutbound(pkt)
	if err != nil {
		return err
	}
	return c.enqueueFrame(frame)
}

func (c *Conn) enqueueFrame(frame []byte) error {
	select {
	case c.out <- frame:
		return nil
	default:
		return fserrors.Wrap(fserrors.PathFanout, fserrors.StageHandle, fserrors.CodeInternalError, errOutboundQueueFull)
	}
}

// Serve runs the read loop until the connection closes or ctx is canceled.
// It starts the writer goroutine, transitions NEW -> UNAUTHENTICATED_PLAIN,
// and processes frames until a terminal error.
func (c *Conn) Serve(ctx context.Context) {
	defer c.Close(observability.CloseReasonClientClosed)
	c.setState(StateUnauthenticatedPlain)
	c.obs.ConnectionOpened()

	go c.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close(observability.CloseReasonServerShutdown)
		case <-c.closeCh:
		}
	}()

	for {
		if c.cfg.ReadTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		pkt, err := c.decoder.ReadPacket()
		if err != nil {
			reason := observability.CloseReasonClientClosed
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				reason = observability.CloseReasonReadTimeout
			}
			c.Close(reason)
			return
		}
		if err := c.handleInbound(ctx, pkt); err != nil {
			log.Debug().Err(err).Str("conn", c.id.String()).Msg("connection: inbound frame rejected, closing")
			c.Close(observability.CloseReasonProtocolError)
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			if c.cfg.ReadTimeout > 0 {
				_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.ReadTimeout))
			}
			if _, err := c.nc.Write(frame); err != nil {
				c.Close(observability.CloseReasonClientClosed)
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// handleInbound runs steps 2-5 of the pipeline for a single inbound frame.
func (c *Conn) handleInbound(ctx context.Context, pkt wire.Packet) error {
	plain, err := c.decryptInbound(pkt)
	if err != nil {
		return err
	}
	pkt.Payload = plain
	pkt.Flags = pkt.Flags.Clear(wire.FlagEncrypted)

	switch pkt.Type {
	case wire.MsgAuthHandshakeReq:
		return c.handleHandshake(pkt)
	case wire.MsgAuthKeyExchangeReq:
		return c.handleKeyExchange(pkt)
	}

	resp := c.disp.Dispatch(ctx, c, pkt, time.Now())
	if resp.Type == wire.MsgAuthLoginRes && c.getState() == StateUnauthenticatedEncrypted {
		c.bindSessionIfLoginSucceeded(resp.Payload)
	}
	return c.sendOutbound(resp)
}

// decryptInbound implements pipeline step 2.
func (c *Conn) decryptInbound(pkt wire.Packet) ([]byte, error) {
	encrypted := pkt.Flags.Has(wire.FlagEncrypted)
	c.mu.Lock()
	cipher := c.cipher
	c.mu.Unlock()

	if !encrypted {
		if cipher != nil && !pkt.Type.IsHandshakeExempt() {
			return nil, fserrors.Wrap(fserrors.PathEncryption, fserrors.StageDecrypt, fserrors.CodeUnencryptedPayload, errUnencryptedPayload)
		}
		return pkt.Payload, nil
	}
	if cipher == nil {
		return nil, fserrors.Wrap(fserrors.PathEncryption, fserrors.StageDecrypt, fserrors.CodeNoSessionKey, errNoSessionKey)
	}
	return cipher.Open(pkt.Payload, nil)
}

// sendOutbound implements pipeline steps 4-5 for a direct request/response
// reply, then writes straight to the outbound queue.
func (c *Conn) sendOutbound(pkt wire.Packet) error {
	frame, err := c.encodeOutbound(pkt)
	if err != nil {
		return err
	}
	return c.enqueueFrame(frame)
}

// encodeOutbound implements pipeline steps 4-5: encrypt under this
// connection's session key (unless the message type is handshake-exempt
// or no key is bound yet), then frame-encode.
func (c *Conn) encodeOutbound(pkt wire.Packet) ([]byte, error) {
	c.mu.Lock()
	cipher := c.cipher
	c.mu.Unlock()

	if cipher != nil && !pkt.Type.IsHandshakeExempt() {
		sealed, err := cipher.Seal(pkt.Payload, nil)
		if err != nil {
			return nil, fserrors.Wrap(fserrors.PathEncryption, fserrors.StageEncrypt, fserrors.CodeInvalidKey, err)
		}
		pkt.Payload = sealed
		pkt.Flags = pkt.Flags.Set(wire.FlagEncrypted)
	}
	frame, err := wire.Encode(pkt)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathCodec, fserrors.StageEncode, fserrors.CodeInternalError, err)
	}
	return frame, nil
}

// Close tears the connection down exactly once: closes the socket, stops
// the writer goroutine, unbinds from the fan-out registry, and discards the
// session key.
func (c *Conn) Close(reason observability.CloseReason) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closeCh)
		_ = c.nc.Close()
		c.mu.Lock()
		userID := c.userID
		c.cipher = nil
		c.mu.Unlock()
		if userID != uuid.Nil && c.reg != nil {
			c.reg.Unbind(userID, c.id)
		}
		c.obs.ConnectionClosed(reason)
	})
}
