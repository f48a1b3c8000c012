package streamhello

import (
	"bytes"
	"testing"

	"github.com/chatv2/chatv2-server/framing/jsonframe"
)

func TestReadStreamHelloRejectsBadInputs(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	if err := jsonframe.WriteJSONFrame(buf, Hello{Kind: "", V: 1}); err != nil {
		t.Fatalf("WriteJSONFrame failed: %v", err)
	}
	if _, err := ReadStreamHello(buf, 8*1024); err == nil {
		t.Fatal("expected error for empty kind")
	}
	buf.Reset()
	if err := jsonframe.WriteJSONFrame(buf, Hello{Kind: "avatar", V: 0}); err != nil {
		t.Fatalf("WriteJSONFrame failed: %v", err)
	}
	if _, err := ReadStreamHello(buf, 8*1024); err == nil {
		t.Fatal("expected error for bad version")
	}
}

func TestWriteReadStreamHelloRoundTrip(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	if err := WriteStreamHello(buf, "file"); err != nil {
		t.Fatalf("WriteStreamHello failed: %v", err)
	}
	h, err := ReadStreamHello(buf, 8*1024)
	if err != nil {
		t.Fatalf("ReadStreamHello failed: %v", err)
	}
	if h.Kind != "file" {
		t.Fatalf("got kind %q, want %q", h.Kind, "file")
	}
}
