package attachment

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestSessionOpenStreamRoundTripsKindAndPayload(t *testing.T) {
	serverConn, clientConn := pipePair(t)

	serverSess, err := NewServerSession("user-1", serverConn)
	if err != nil {
		t.Fatalf("NewServerSession: %v", err)
	}
	defer serverSess.Close()

	clientSess, err := NewClientSession(clientConn)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	defer clientSess.Close()

	received := make(chan struct {
		kind Kind
		body string
	}, 1)
	go func() {
		kind, stream, err := serverSess.AcceptStreamHello(DefaultMaxHelloBytes)
		if err != nil {
			return
		}
		defer stream.Close()
		body, _ := io.ReadAll(stream)
		received <- struct {
			kind Kind
			body string
		}{kind, string(body)}
	}()

	stream, err := clientSess.OpenStream(KindFile)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := stream.Write([]byte("hello attachment")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	stream.Close()

	select {
	case got := <-received:
		if got.kind != KindFile {
			t.Fatalf("expected kind %q, got %q", KindFile, got.kind)
		}
		if got.body != "hello attachment" {
			t.Fatalf("expected body %q, got %q", "hello attachment", got.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted stream")
	}
}

func TestOpenStreamRejectsEmptyKind(t *testing.T) {
	_, clientConn := pipePair(t)
	clientSess, err := NewClientSession(clientConn)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	defer clientSess.Close()

	if _, err := clientSess.OpenStream(""); err == nil {
		t.Fatal("expected error opening stream with empty kind")
	}
}

func TestServeStreamsStopsOnContextCancel(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	serverSess, err := NewServerSession("user-1", serverConn)
	if err != nil {
		t.Fatalf("NewServerSession: %v", err)
	}
	defer serverSess.Close()
	clientSess, err := NewClientSession(clientConn)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	defer clientSess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serverSess.ServeStreams(ctx, func(string, Kind, io.ReadWriteCloser) {})
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected ServeStreams to return a non-nil error after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServeStreams to stop")
	}
}

func TestServeStreamsRecoversFromHandlerPanic(t *testing.T) {
	serverConn, clientConn := pipePair(t)
	serverSess, err := NewServerSession("user-1", serverConn)
	if err != nil {
		t.Fatalf("NewServerSession: %v", err)
	}
	defer serverSess.Close()
	clientSess, err := NewClientSession(clientConn)
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	defer clientSess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan struct{}, 1)
	go func() {
		_ = serverSess.ServeStreams(ctx, func(userID string, kind Kind, stream io.ReadWriteCloser) {
			defer func() { handled <- struct{}{} }()
			panic("boom")
		})
	}()

	stream, err := clientSess.OpenStream(KindAvatar)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	stream.Close()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for panicking handler to run")
	}

	// The session must still be usable after a handler panic.
	stream2, err := clientSess.OpenStream(KindAvatar)
	if err != nil {
		t.Fatalf("session should survive a handler panic, OpenStream failed: %v", err)
	}
	stream2.Close()
}
