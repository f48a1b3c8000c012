package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Packet{
		Type:      MsgMessageSendReq,
		Flags:     FlagReply,
		MessageID: 0xdeadbeefcafebabe,
		Timestamp: 1_700_000_000_000,
		Payload:   []byte(`{"chatId":"x"}`),
	}
	frame, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Type != p.Type || got.Flags != p.Flags || got.MessageID != p.MessageID || got.Timestamp != p.Timestamp {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got, p)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("payload mismatch: got=%q want=%q", got.Payload, p.Payload)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	frame, err := Encode(Packet{Type: MsgPing})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frame) != HeaderLen+TrailerLen {
		t.Fatalf("expected empty-payload frame length %d, got %d", HeaderLen+TrailerLen, len(frame))
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got.Payload))
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Packet{Type: MsgMessageSendReq, Payload: make([]byte, MaxPayloadLen+1)})
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	frame, _ := Encode(Packet{Type: MsgPing})
	frame[0] ^= 0xFF
	if _, err := Decode(frame); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeBadVersion(t *testing.T) {
	frame, _ := Encode(Packet{Type: MsgPing})
	frame[6] = ProtocolVersion + 1
	if _, err := Decode(frame); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestDecodePayloadOverflow(t *testing.T) {
	frame, _ := Encode(Packet{Type: MsgPing})
	// Claim a payload length beyond MaxPayloadLen; the header alone is enough
	// for Decode to reject it without needing the (absent) body.
	frame[16] = 0xFF
	frame[17] = 0xFF
	frame[18] = 0xFF
	frame[19] = 0xFF
	if _, err := Decode(frame); err != ErrPayloadOverflow {
		t.Fatalf("expected ErrPayloadOverflow, got %v", err)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	frame, _ := Encode(Packet{Type: MsgMessageSendReq, Payload: []byte("hello")})
	frame[len(frame)-1] ^= 0xFF
	if _, err := Decode(frame); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestDecodeAnySingleByteFlipTrips(t *testing.T) {
	frame, _ := Encode(Packet{Type: MsgMessageSendReq, MessageID: 42, Payload: []byte("payload-bytes")})
	for i := range frame {
		mutated := append([]byte(nil), frame...)
		mutated[i] ^= 0x01
		_, err := Decode(mutated)
		if err == nil {
			t.Fatalf("byte %d: expected an error after flipping a bit, got none", i)
		}
	}
}

func TestDecoderStreamingPartialReads(t *testing.T) {
	p := Packet{Type: MsgAuthLoginReq, MessageID: 7, Payload: []byte(`{"username":"alice"}`)}
	frame, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	pr, pw := io.Pipe()
	dec := NewDecoder(bufio.NewReader(pr))
	done := make(chan error, 1)
	var got Packet
	go func() {
		var derr error
		got, derr = dec.ReadPacket()
		done <- derr
	}()

	// Trickle bytes one at a time to exercise the "wait for more data" path.
	go func() {
		for _, b := range frame {
			_, _ = pw.Write([]byte{b})
		}
		_ = pw.Close()
	}()

	if err := <-done; err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if got.MessageID != p.MessageID || !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("trickled frame mismatch: got=%+v", got)
	}
}

func TestDecoderRejectsPayloadOverflowWithoutReadingBody(t *testing.T) {
	header := make([]byte, HeaderLen)
	writeHeader(header, Packet{Type: MsgMessageSendReq})
	header[16] = 0xFF
	header[17] = 0xFF
	header[18] = 0xFF
	header[19] = 0xFF

	pr, pw := io.Pipe()
	dec := NewDecoder(bufio.NewReader(pr))
	done := make(chan error, 1)
	go func() {
		_, err := dec.ReadPacket()
		done <- err
	}()
	go func() {
		_, _ = pw.Write(header)
		// Deliberately never write a 10MiB+ body: if the decoder tried to
		// read it, this test would hang until the outer test timeout.
	}()
	if err := <-done; err != ErrPayloadOverflow {
		t.Fatalf("expected ErrPayloadOverflow, got %v", err)
	}
	_ = pw.Close()
}
