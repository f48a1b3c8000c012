// Package wire implements the CHAT binary frame: a 28-byte big-endian
// header, a bounded payload, and a trailing CRC32 over header‖payload.
//
// This is the 28-byte-header-plus-trailing-CRC variant described in
// spec.md §9 ("Ambiguities observed in the source"); the 40-byte
// checksum-in-header variant is legacy and is not implemented.
package wire

import "fmt"

// Magic is the constant 4-byte frame prefix, the ASCII bytes "CHAT".
const Magic uint32 = 0x43484154

// ProtocolVersion is the only wire version this package emits/accepts.
const ProtocolVersion uint8 = 0x01

// HeaderLen is the fixed header size in bytes.
const HeaderLen = 28

// TrailerLen is the trailing CRC32 size in bytes.
const TrailerLen = 4

// MaxPayloadLen is the largest payload (in bytes) a frame may carry.
const MaxPayloadLen = 10 * 1024 * 1024 // 10 MiB

// Flag is a bitfield of per-frame modifiers.
type Flag uint8

const (
	FlagEncrypted   Flag = 0x80
	FlagCompressed  Flag = 0x40
	FlagUrgent      Flag = 0x20
	FlagAckRequired Flag = 0x10
	FlagReply       Flag = 0x08
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }
func (f Flag) Set(bit Flag) Flag { return f | bit }
func (f Flag) Clear(bit Flag) Flag { return f &^ bit }

// MessageType identifies the semantic meaning of a frame's payload. In most
// req/res pairs bit 0 distinguishes request (even) from response (odd); the
// ServiceDiscovery and AuthPasswordReset pairs are the exceptions (odd
// request, even response).
type MessageType uint16

const (
	// Discovery (UDP only).
	MsgServiceDiscoveryReq MessageType = 0x0001
	MsgServiceDiscoveryRes MessageType = 0x0002

	// Auth handshake.
	MsgAuthHandshakeReq    MessageType = 0x0100
	MsgAuthHandshakeRes    MessageType = 0x0101
	MsgAuthKeyExchangeReq  MessageType = 0x0102
	MsgAuthKeyExchangeRes  MessageType = 0x0103

	// Auth.
	MsgAuthRegisterReq      MessageType = 0x0120
	MsgAuthRegisterRes      MessageType = 0x0121
	MsgAuthLoginReq         MessageType = 0x0122
	MsgAuthLoginRes         MessageType = 0x0123
	MsgAuthLogoutReq        MessageType = 0x0124
	MsgAuthLogoutRes        MessageType = 0x0125
	MsgAuthTokenRefreshReq  MessageType = 0x0126
	MsgAuthTokenRefreshRes  MessageType = 0x0127
	MsgAuthPasswordResetReq MessageType = 0x0129
	MsgAuthPasswordResetRes MessageType = 0x012A

	// Session.
	MsgSessionValidateReq  MessageType = 0x0200
	MsgSessionValidateRes  MessageType = 0x0201
	MsgSessionInfoReq      MessageType = 0x0202
	MsgSessionInfoRes      MessageType = 0x0203
	MsgSessionTerminate    MessageType = 0x0204

	// User.
	MsgUserGetProfileReq    MessageType = 0x0300
	MsgUserGetProfileRes    MessageType = 0x0301
	MsgUserUpdateProfileReq MessageType = 0x0302
	MsgUserUpdateProfileRes MessageType = 0x0303
	MsgUserSearchReq        MessageType = 0x0304
	MsgUserSearchRes        MessageType = 0x0305
	MsgUserStatusUpdateReq  MessageType = 0x0306
	MsgUserStatusUpdateRes  MessageType = 0x0307
	MsgUserOnlineListReq    MessageType = 0x0308
	MsgUserOnlineListRes    MessageType = 0x0309

	// Chat.
	MsgChatCreateReq          MessageType = 0x0400
	MsgChatCreateRes          MessageType = 0x0401
	MsgChatListReq            MessageType = 0x0402
	MsgChatListRes            MessageType = 0x0403
	MsgChatAddParticipantReq  MessageType = 0x0404
	MsgChatAddParticipantRes  MessageType = 0x0405
	MsgChatRemoveParticipantReq MessageType = 0x0406
	MsgChatRemoveParticipantRes MessageType = 0x0407

	// Messaging.
	MsgMessageSendReq    MessageType = 0x0500
	MsgMessageSendRes    MessageType = 0x0501
	MsgMessageReceive    MessageType = 0x0502
	MsgMessageHistoryReq MessageType = 0x0504
	MsgMessageHistoryRes MessageType = 0x0505
	MsgMessageEditReq    MessageType = 0x0506
	MsgMessageEditRes    MessageType = 0x0507
	MsgMessageDeleteReq  MessageType = 0x0508
	MsgMessageDeleteRes  MessageType = 0x0509
	MsgMessageReadReceipt MessageType = 0x050A
	MsgMessageTyping      MessageType = 0x050C

	// System.
	MsgPing            MessageType = 0xF000
	MsgPong            MessageType = 0xF001
	MsgError           MessageType = 0xF002
	MsgServerShutdown  MessageType = 0xF003
	MsgBroadcast       MessageType = 0xF004
)

// IsResponse reports whether bit 0 of t is set, which marks the response
// half of every req/res pair except the two exceptions noted on MessageType.
func (t MessageType) IsResponse() bool { return t&1 == 1 }

// IsHandshakeExempt reports whether t is exempt from the encryption handler
// per §4.3 (handshake and key-exchange frames travel in the clear).
func (t MessageType) IsHandshakeExempt() bool {
	switch t {
	case MsgAuthHandshakeReq, MsgAuthHandshakeRes, MsgAuthKeyExchangeReq, MsgAuthKeyExchangeRes:
		return true
	default:
		return false
	}
}

// Packet is the decoded in-memory representation of a frame (§3).
type Packet struct {
	Type      MessageType
	Flags     Flag
	MessageID uint64 // low 64 bits of the client's correlation id
	Timestamp uint64 // unix milliseconds
	Payload   []byte
}

// Reply builds a response packet correlated to p by MessageID, per §4.6.
func (p Packet) Reply(respType MessageType, payload []byte, nowUnixMillis uint64) Packet {
	return Packet{
		Type:      respType,
		Flags:     FlagReply,
		MessageID: p.MessageID,
		Timestamp: nowUnixMillis,
		Payload:   payload,
	}
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet{type=0x%04x flags=0x%02x id=%d len=%d}", uint16(p.Type), uint8(p.Flags), p.MessageID, len(p.Payload))
}
