// Package dispatch maps an inbound (message_type, payload) pair to a
// handler and produces a correlated response packet (spec.md §4.6). The
// generic Register/handle shape is adapted from the teacher's
// rpc/typed.Register[TReq,TResp]: a type parameter pair per handler, with
// JSON marshal/unmarshal done once at the registry boundary instead of in
// every handler body.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/wire"
	"github.com/google/uuid"
)

// Session is what a handler needs to know about the connection issuing the
// request: its identity and authentication state.
type Session interface {
	// UserID returns the authenticated user, or uuid.Nil if unauthenticated.
	UserID() uuid.UUID
	// ConnID returns the connection's own identity, used to exclude it from
	// fan-out delivery of its own MESSAGE_RECEIVE.
	ConnID() uuid.UUID
	Authenticated() bool
}

// HandlerFunc processes a decoded, decrypted request payload and returns a
// raw response payload, or an error that the registry maps onto an
// {error, code} envelope.
type HandlerFunc func(ctx context.Context, sess Session, payload []byte) ([]byte, error)

// handlerEntry pairs a handler with the response type to wrap it in and
// whether authentication is required before the handler may run.
type handlerEntry struct {
	fn           HandlerFunc
	responseType wire.MessageType
	requiresAuth bool
}

// Registry maps wire.MessageType to handlerEntry. It is built once at
// startup and never mutated afterward, so lookups need no locking.
type Registry struct {
	handlers map[wire.MessageType]handlerEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[wire.MessageType]handlerEntry)}
}

// Register binds reqType to fn. respType is the MessageType the handler's
// successful result is wrapped in; requiresAuth gates the handler behind
// spec.md P9 (UNAUTHENTICATED state rejection).
func (r *Registry) Register(reqType, respType wire.MessageType, requiresAuth bool, fn HandlerFunc) {
	r.handlers[reqType] = handlerEntry{fn: fn, responseType: respType, requiresAuth: requiresAuth}
}

// RegisterTyped registers a handler expressed over concrete request/response
// structs, marshaling/unmarshaling JSON at the boundary. This is the
// generic entry point most handlers use, mirroring the teacher's
// rpc/typed.Register[TReq,TResp].
func RegisterTyped[TReq any, TResp any](r *Registry, reqType, respType wire.MessageType, requiresAuth bool, fn func(ctx context.Context, sess Session, req *TReq) (*TResp, error)) {
	r.Register(reqType, respType, requiresAuth, func(ctx context.Context, sess Session, payload []byte) ([]byte, error) {
		var req TReq
		if len(payload) != 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageDecode, fserrors.CodeInvalidRequest, err)
			}
		}
		resp, err := fn(ctx, sess, &req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageEncode, fserrors.CodeInternalError, err)
		}
		return b, nil
	})
}

// errorPayload is the {error, code} envelope for a failed *_RES, per
// spec.md §4.6/§7.
type errorPayload struct {
	Error string        `json:"error"`
	Code  fserrors.Code `json:"code"`
}

// unauthenticatedExempt are message types allowed in any connection state
// (spec.md §4.6: "AUTHENTICATED state required for all messages other than
// AUTH_*_REQ in its pre-auth variants, SERVICE_DISCOVERY_*, and PING/PONG").
func unauthenticatedExempt(t wire.MessageType) bool {
	switch t {
	case wire.MsgAuthHandshakeReq, wire.MsgAuthKeyExchangeReq,
		wire.MsgAuthRegisterReq, wire.MsgAuthLoginReq,
		wire.MsgServiceDiscoveryReq, wire.MsgServiceDiscoveryRes,
		wire.MsgPing, wire.MsgPong:
		return true
	default:
		return false
	}
}

// Dispatch looks up req.Type, runs its handler, and returns the response
// packet. now is injected so callers control the response Timestamp
// deterministically in tests.
func (r *Registry) Dispatch(ctx context.Context, sess Session, req wire.Packet, now time.Time) wire.Packet {
	entry, ok := r.handlers[req.Type]
	if !ok {
		return req.Reply(wire.MsgError, mustMarshalError(fserrors.CodeInvalidRequest, "unknown message type"), nowMillis(now))
	}
	if entry.requiresAuth && !unauthenticatedExempt(req.Type) && !sess.Authenticated() {
		return req.Reply(wire.MsgError, mustMarshalError(fserrors.CodeUnauthenticated, "not authenticated"), nowMillis(now))
	}

	respPayload, err := entry.fn(ctx, sess, req.Payload)
	if err != nil {
		code := fserrors.CodeOf(err)
		return req.Reply(wire.MsgError, mustMarshalError(code, err.Error()), nowMillis(now))
	}
	return req.Reply(entry.responseType, respPayload, nowMillis(now))
}

func nowMillis(t time.Time) uint64 { return uint64(t.UnixMilli()) }

func mustMarshalError(code fserrors.Code, msg string) []byte {
	b, err := json.Marshal(errorPayload{Error: msg, Code: code})
	if err != nil {
		return []byte(`{"error":"internal error","code":"INTERNAL_ERROR"}`)
	}
	return b
}
