// Package observability defines the metric event surface the connection
// pipeline, the server's accept loop, and the discovery broadcaster emit
// into; nothing in this module emits the Dispatch, MessageSent, or
// FanoutDelivered events. The Observer interface plus its no-op/atomic variants are adapted
// from the teacher's TunnelObserver/RPCObserver pair: the same "events in,
// swappable delegate" shape, retargeted at chat-domain events.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// HandshakeResult is the outcome of an AUTH_HANDSHAKE_REQ/AUTH_KEY_EXCHANGE_REQ
// exchange.
type HandshakeResult string

const (
	HandshakeResultOK     HandshakeResult = "ok"
	HandshakeResultFailed HandshakeResult = "failed"
)

// AuthResult is the outcome of an AUTH_LOGIN_REQ or AUTH_REGISTER_REQ.
type AuthResult string

const (
	AuthResultOK      AuthResult = "ok"
	AuthResultFailed  AuthResult = "failed"
	AuthResultExpired AuthResult = "expired"
)

// CloseReason is why a connection was torn down.
type CloseReason string

const (
	CloseReasonClientClosed    CloseReason = "client_closed"
	CloseReasonReadTimeout     CloseReason = "read_timeout"
	CloseReasonProtocolError   CloseReason = "protocol_error"
	CloseReasonEncryptionError CloseReason = "encryption_error"
	CloseReasonServerShutdown  CloseReason = "server_shutdown"
)

// DispatchResult is the outcome of routing one request through the
// dispatcher.
type DispatchResult string

const (
	DispatchResultOK    DispatchResult = "ok"
	DispatchResultError DispatchResult = "error"
)

// Observer receives server-wide metric events. The server owns exactly one
// Observer (spec.md §9 "global mutable state"); components are handed the
// interface, never a concrete metrics backend.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed(reason CloseReason)
	ActiveConnections(n int64)
	Handshake(result HandshakeResult)
	Auth(result AuthResult)
	Dispatch(messageType uint16, result DispatchResult, d time.Duration)
	MessageSent()
	FanoutDelivered(n int)
	DiscoveryBroadcast()
}

type noopObserver struct{}

func (noopObserver) ConnectionOpened()                                     {}
func (noopObserver) ConnectionClosed(CloseReason)                          {}
func (noopObserver) ActiveConnections(int64)                               {}
func (noopObserver) Handshake(HandshakeResult)                             {}
func (noopObserver) Auth(AuthResult)                                       {}
func (noopObserver) Dispatch(uint16, DispatchResult, time.Duration)        {}
func (noopObserver) MessageSent()                                          {}
func (noopObserver) FanoutDelivered(int)                                   {}
func (noopObserver) DiscoveryBroadcast()                                   {}

// Noop is a zero-cost observer used when metrics are disabled.
var Noop Observer = noopObserver{}

// Atomic swaps its delegate observer at runtime without locking readers.
type Atomic struct {
	once sync.Once
	v    atomic.Value
}

type observerHolder struct{ obs Observer }

// NewAtomic returns an initialized Atomic defaulting to Noop.
func NewAtomic() *Atomic {
	a := &Atomic{}
	a.once.Do(func() { a.v.Store(&observerHolder{obs: Noop}) })
	return a
}

// Set replaces the delegate, falling back to Noop on nil.
func (a *Atomic) Set(obs Observer) {
	if obs == nil {
		obs = Noop
	}
	a.once.Do(func() { a.v.Store(&observerHolder{obs: Noop}) })
	a.v.Store(&observerHolder{obs: obs})
}

func (a *Atomic) load() Observer {
	a.once.Do(func() { a.v.Store(&observerHolder{obs: Noop}) })
	return a.v.Load().(*observerHolder).obs
}

func (a *Atomic) ConnectionOpened()            { a.load().ConnectionOpened() }
func (a *Atomic) ConnectionClosed(r CloseReason) { a.load().ConnectionClosed(r) }
func (a *Atomic) ActiveConnections(n int64)    { a.load().ActiveConnections(n) }
func (a *Atomic) Handshake(r HandshakeResult)  { a.load().Handshake(r) }
func (a *Atomic) Auth(r AuthResult)            { a.load().Auth(r) }
func (a *Atomic) Dispatch(t uint16, r DispatchResult, d time.Duration) {
	a.load().Dispatch(t, r, d)
}
func (a *Atomic) MessageSent()           { a.load().MessageSent() }
func (a *Atomic) FanoutDelivered(n int)  { a.load().FanoutDelivered(n) }
func (a *Atomic) DiscoveryBroadcast()    { a.load().DiscoveryBroadcast() }
