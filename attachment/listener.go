package attachment

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/chatv2/chatv2-server/framing/jsonframe"
	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AuthPreface is the first length-prefixed JSON frame a client sends on a
// freshly dialed attachment connection, before the socket is handed to
// yamux. It reuses the same session token minted by AUTH_LOGIN_RES on the
// control-plane connection (spec.md §4.5) rather than inventing a second
// credential, so an attachment connection can only be opened by someone who
// already authenticated on the control channel.
type AuthPreface struct {
	Token string `json:"token"`
}

// MaxAuthPrefaceBytes bounds the preface frame.
const MaxAuthPrefaceBytes = 4 * 1024

// AcceptTimeout bounds how long a dialed connection has to send its auth
// preface before the listener gives up on it.
const AcceptTimeout = 10 * time.Second

// Listener accepts attachment connections on their own TCP address,
// authenticates each via AuthPreface against the shared session.Manager,
// and hands authenticated sessions to Handler.
type Listener struct {
	sessions *session.Manager
	handler  StreamHandler

	ln net.Listener
}

// NewListener builds a Listener. handler is invoked once per accepted
// attachment stream, across all connections.
func NewListener(sessions *session.Manager, handler StreamHandler) *Listener {
	return &Listener{sessions: sessions, handler: handler}
}

// Serve listens on addr and runs the accept loop until ctx is canceled or
// Close is called.
func (l *Listener) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.serveConn(ctx, nc)
	}
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func (l *Listener) serveConn(ctx context.Context, nc net.Conn) {
	userID, err := l.authenticate(nc)
	if err != nil {
		log.Debug().Err(err).Msg("attachment: rejecting connection")
		_ = nc.Close()
		return
	}

	sess, err := NewServerSession(userID.String(), nc)
	if err != nil {
		log.Warn().Err(err).Msg("attachment: failed to establish yamux session")
		_ = nc.Close()
		return
	}
	defer sess.Close()

	if err := sess.ServeStreams(ctx, l.handler); err != nil {
		log.Debug().Err(err).Str("user", userID.String()).Msg("attachment: session ended")
	}
}

func (l *Listener) authenticate(nc net.Conn) (uuid.UUID, error) {
	_ = nc.SetReadDeadline(time.Now().Add(AcceptTimeout))
	defer nc.SetReadDeadline(time.Time{})

	b, err := jsonframe.ReadJSONFrame(nc, MaxAuthPrefaceBytes)
	if err != nil {
		return uuid.Nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageStream, fserrors.CodeAttachmentStreamFailed, err)
	}
	var preface AuthPreface
	if err := json.Unmarshal(b, &preface); err != nil {
		return uuid.Nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageStream, fserrors.CodeAttachmentStreamFailed, err)
	}
	sess, err := l.sessions.Validate(context.Background(), preface.Token, time.Now())
	if err != nil {
		return uuid.Nil, fserrors.Wrap(fserrors.PathAttachment, fserrors.StageVerify, fserrors.CodeAuthFailed, err)
	}
	return sess.UserID, nil
}
