package attachment

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/chatv2/chatv2-server/framing/jsonframe"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/session"
	"github.com/google/uuid"
)

func newTestSessionManager(t *testing.T) *session.Manager {
	t.Helper()
	mgr := session.NewManager(repo.NewInMemorySessionRepository(), session.Config{
		Secret:   []byte("attachment-listener-test-secret"),
		TokenTTL: time.Hour,
	})
	return mgr
}

func TestListenerAuthenticatesValidTokenAndDispatchesStream(t *testing.T) {
	mgr := newTestSessionManager(t)
	userID := uuid.New()
	sess, err := mgr.Mint(context.Background(), userID, "test-device", time.Now())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	received := make(chan struct {
		userID string
		kind   Kind
	}, 1)
	ln := NewListener(mgr, func(userID string, kind Kind, stream io.ReadWriteCloser) {
		defer stream.Close()
		io.Copy(io.Discard, stream)
		received <- struct {
			userID string
			kind   Kind
		}{userID, kind}
	})

	tcpLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ln.ln = tcpLn
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			nc, err := tcpLn.Accept()
			if err != nil {
				return
			}
			go ln.serveConn(ctx, nc)
		}
	}()
	defer tcpLn.Close()

	clientConn, err := net.Dial("tcp", tcpLn.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientConn.Close()

	if err := jsonframe.WriteJSONFrame(clientConn, AuthPreface{Token: sess.Token}); err != nil {
		t.Fatalf("WriteJSONFrame: %v", err)
	}

	clientSess, err := NewClientSession(clientConn)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	defer clientSess.Close()

	stream, err := clientSess.OpenStream(KindImage)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	stream.Close()

	select {
	case got := <-received:
		if got.userID != userID.String() {
			t.Fatalf("expected userID %q, got %q", userID, got.userID)
		}
		if got.kind != KindImage {
			t.Fatalf("expected kind %q, got %q", KindImage, got.kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched stream")
	}
}

func TestListenerRejectsInvalidToken(t *testing.T) {
	mgr := newTestSessionManager(t)
	ln := NewListener(mgr, func(string, Kind, io.ReadWriteCloser) {})

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	done := make(chan struct{})
	go func() {
		ln.serveConn(context.Background(), serverSide)
		close(done)
	}()

	_ = jsonframe.WriteJSONFrame(clientSide, AuthPreface{Token: "not-a-real-token"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener to reject invalid token")
	}
}
