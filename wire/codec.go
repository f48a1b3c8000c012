package wire

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"

	"github.com/chatv2/chatv2-server/internal/binutil"
)

var (
	// ErrBadMagic is returned when a frame's first four bytes aren't "CHAT".
	ErrBadMagic = errors.New("wire: bad magic")
	// ErrPayloadOverflow is returned when a frame's declared payload_length
	// exceeds MaxPayloadLen.
	ErrPayloadOverflow = errors.New("wire: payload length overflow")
	// ErrChecksumMismatch is returned when the trailing CRC32 doesn't match
	// the computed checksum of header‖payload.
	ErrChecksumMismatch = errors.New("wire: checksum mismatch")
	// ErrPayloadTooLarge is returned by Encode for oversized payloads.
	ErrPayloadTooLarge = errors.New("wire: payload too large to encode")
	// ErrBadVersion is returned when the header's version byte is unknown.
	ErrBadVersion = errors.New("wire: unsupported version")
)

// Encode serializes p into a frame: header(28) ‖ payload ‖ crc32(4).
func Encode(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderLen+len(p.Payload)+TrailerLen)
	writeHeader(buf[:HeaderLen], p)
	copy(buf[HeaderLen:HeaderLen+len(p.Payload)], p.Payload)
	sum := crc32.ChecksumIEEE(buf[:HeaderLen+len(p.Payload)])
	binutil.PutU32BE(buf[HeaderLen+len(p.Payload):], sum)
	return buf, nil
}

func writeHeader(b []byte, p Packet) {
	binutil.PutU32BE(b[0:4], Magic)
	binutil.PutU16BE(b[4:6], uint16(p.Type))
	b[6] = ProtocolVersion
	b[7] = byte(p.Flags)
	binutil.PutU64BE(b[8:16], p.MessageID)
	binutil.PutU32BE(b[16:20], uint32(len(p.Payload)))
	binutil.PutU64BE(b[20:28], p.Timestamp)
}

// Decode parses a single complete frame (header‖payload‖crc32) out of b. It
// does not handle partial buffering; use Decoder for a streaming byte
// source.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderLen {
		return Packet{}, errShortHeader
	}
	if binutil.U32BE(b[0:4]) != Magic {
		return Packet{}, ErrBadMagic
	}
	if b[6] != ProtocolVersion {
		return Packet{}, ErrBadVersion
	}
	payloadLen := binutil.U32BE(b[16:20])
	if payloadLen > MaxPayloadLen {
		return Packet{}, ErrPayloadOverflow
	}
	want := HeaderLen + int(payloadLen) + TrailerLen
	if len(b) < want {
		return Packet{}, errShortFrame
	}
	computed := crc32.ChecksumIEEE(b[:HeaderLen+int(payloadLen)])
	got := binutil.U32BE(b[HeaderLen+int(payloadLen):])
	if computed != got {
		return Packet{}, ErrChecksumMismatch
	}
	payload := make([]byte, payloadLen)
	copy(payload, b[HeaderLen:HeaderLen+int(payloadLen)])
	return Packet{
		Type:      MessageType(binutil.U16BE(b[4:6])),
		Flags:     Flag(b[7]),
		MessageID: binutil.U64BE(b[8:16]),
		Timestamp: binutil.U64BE(b[20:28]),
		Payload:   payload,
	}, nil
}

var (
	errShortHeader = errors.New("wire: short header")
	errShortFrame  = errors.New("wire: short frame")
)

// Decoder incrementally assembles frames off a streaming byte source (a TCP
// connection). It implements the five-step decode procedure of §4.1: peek
// the header before allocating, reject bad magic/overflowing length before
// reading the body, then validate the CRC once the full frame has arrived.
//
// Decoder is not safe for concurrent use; each connection owns exactly one.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for frame-at-a-time decoding.
func NewDecoder(r *bufio.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadPacket blocks until a full frame is available, validates it, and
// returns the decoded Packet. Protocol violations (bad magic, payload
// overflow, checksum mismatch) are terminal: the caller must close the
// connection without attempting to resynchronize.
func (d *Decoder) ReadPacket() (Packet, error) {
	header, err := d.r.Peek(HeaderLen)
	if err != nil {
		return Packet{}, err
	}
	if binutil.U32BE(header[0:4]) != Magic {
		return Packet{}, ErrBadMagic
	}
	if header[6] != ProtocolVersion {
		return Packet{}, ErrBadVersion
	}
	payloadLen := binutil.U32BE(header[16:20])
	if payloadLen > MaxPayloadLen {
		// Reject before allocating or reading the (possibly huge) body.
		return Packet{}, ErrPayloadOverflow
	}

	frameLen := HeaderLen + int(payloadLen) + TrailerLen
	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(d.r, frame); err != nil {
		return Packet{}, err
	}
	return Decode(frame)
}
