// Package attachment is the yamux-multiplexed side channel for payloads too
// large or too binary-heavy to carry as a single control-plane frame:
// avatar uploads, and FILE/IMAGE/VOICE message bodies (spec.md's
// AvatarData/Message.Content fields stay the small/inline path; this
// package is the large-payload path layered on top). Every stream starts
// with the streamhello preface identifying its kind, exactly like the
// teacher's endpoint.Session.OpenStream/AcceptStreamHello/ServeStreams,
// retargeted from arbitrary RPC stream kinds onto the four attachment
// kinds this protocol defines.
package attachment

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/streamhello"
	muxyamux "github.com/chatv2/chatv2-server/mux/yamux"
	hyamux "github.com/hashicorp/yamux"
	"github.com/rs/zerolog/log"
)

// Kind identifies what an attachment stream carries.
type Kind string

const (
	KindAvatar Kind = "avatar"
	KindFile   Kind = "file"
	KindImage  Kind = "image"
	KindVoice  Kind = "voice"
)

// DefaultMaxHelloBytes bounds the streamhello preface frame.
const DefaultMaxHelloBytes = 4 * 1024

// Session is one user's attachment side channel: a yamux session multiplexed
// over its own io.ReadWriteCloser (typically a dedicated TCP connection
// distinct from the control-plane socket, since the control-plane decoder
// already owns that socket's byte stream for framed CHAT packets).
type Session struct {
	userID string // opaque caller-supplied identity, e.g. uuid.UUID.String()
	mux    *hyamux.Session

	closeOnce sync.Once
	closeErr  error
}

// NewServerSession wraps a server-side accepted connection in a yamux
// server session. The connection's bytes are handed entirely to yamux after
// this call; callers must not read/write nc directly afterward.
func NewServerSession(userID string, nc net.Conn) (*Session, error) {
	mux, err := muxyamux.NewServer(nc, hyamux.DefaultConfig())
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentStreamFailed, err)
	}
	return &Session{userID: userID, mux: mux}, nil
}

// NewClientSession wraps a client-dialed connection in a yamux client
// session, for an attachment-channel caller on the dialing side.
func NewClientSession(nc net.Conn) (*Session, error) {
	mux, err := muxyamux.NewClient(nc, hyamux.DefaultConfig())
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentStreamFailed, err)
	}
	return &Session{mux: mux}, nil
}

// UserID returns the identity this session was bound to server-side, or
// "" for a client session.
func (s *Session) UserID() string { return s.userID }

// OpenStream opens a new yamux stream and writes the Kind preface.
func (s *Session) OpenStream(kind Kind) (io.ReadWriteCloser, error) {
	if s == nil || s.mux == nil {
		return nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentNotReady, errNotConnected)
	}
	if kind == "" {
		return nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageStream, fserrors.CodeAttachmentKindMissing, errMissingKind)
	}
	st, err := s.mux.OpenStream()
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentStreamFailed, err)
	}
	if err := streamhello.WriteStreamHello(st, string(kind)); err != nil {
		_ = st.Close()
		return nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageStream, fserrors.CodeAttachmentStreamFailed, err)
	}
	return st, nil
}

// AcceptStreamHello accepts the next inbound stream and reads its Kind
// preface.
func (s *Session) AcceptStreamHello(maxHelloBytes int) (Kind, io.ReadWriteCloser, error) {
	if s == nil || s.mux == nil {
		return "", nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentNotReady, errNotConnected)
	}
	if maxHelloBytes <= 0 {
		maxHelloBytes = DefaultMaxHelloBytes
	}
	stream, err := s.mux.AcceptStream()
	if err != nil {
		return "", nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentStreamFailed, err)
	}
	h, err := streamhello.ReadStreamHello(stream, maxHelloBytes)
	if err != nil {
		_ = stream.Close()
		return "", nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageStream, fserrors.CodeAttachmentStreamFailed, err)
	}
	return Kind(h.Kind), stream, nil
}

// StreamHandler processes one accepted attachment stream, scoped to the
// user the enclosing Session was authenticated as server-side ("" for a
// client session, which never calls ServeStreams in practice). The stream
// is closed by ServeStreams after handler returns.
type StreamHandler func(userID string, kind Kind, stream io.ReadWriteCloser)

// ServeStreams runs an accept loop, dispatching each stream to handler in
// its own goroutine, until ctx is canceled or the session closes.
func (s *Session) ServeStreams(ctx context.Context, handler StreamHandler) error {
	if s == nil || s.mux == nil {
		return fserrors.Wrap(fserrors.PathAttachment, fserrors.StageYamux, fserrors.CodeAttachmentNotReady, errNotConnected)
	}
	if handler == nil {
		return fserrors.Wrap(fserrors.PathAttachment, fserrors.StageStream, fserrors.CodeAttachmentKindMissing, errMissingHandler)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		kind, stream, err := s.AcceptStreamHello(DefaultMaxHelloBytes)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go func(kind Kind, stream io.ReadWriteCloser) {
			defer stream.Close()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("kind", string(kind)).Interface("panic", r).Msg("attachment: stream handler panic")
				}
			}()
			handler(s.userID, kind, stream)
		}(kind, stream)
	}
}

// Close tears down the yamux session. Safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.mux != nil {
			s.closeErr = s.mux.Close()
		}
	})
	return s.closeErr
}
