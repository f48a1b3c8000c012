// Package fserrors is the structured error type shared by the connection
// pipeline and the dispatcher. Adapted from the teacher's package of the
// same name: a Path/Stage/Code/Err tuple with Unwrap support, retargeted at
// the taxonomy in spec.md §7 instead of tunnel-handshake stages.
package fserrors

import "fmt"

// Path identifies which part of the connection lifecycle produced the error.
type Path string

const (
	PathCodec      Path = "codec"
	PathEncryption Path = "encryption"
	PathHandshake  Path = "handshake"
	PathAuth       Path = "auth"
	PathDispatch   Path = "dispatch"
	PathFanout     Path = "fanout"
	PathDiscovery  Path = "discovery"
	PathAttachment Path = "attachment"
)

// Stage identifies which step within Path failed.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageEncode    Stage = "encode"
	StageDecrypt   Stage = "decrypt"
	StageEncrypt   Stage = "encrypt"
	StageKeyWrap   Stage = "key_wrap"
	StageKeyUnwrap Stage = "key_unwrap"
	StageMint      Stage = "mint"
	StageVerify    Stage = "verify"
	StageHandle    Stage = "handle"
	StageRepo      Stage = "repo"
	StageYamux     Stage = "yamux"
	StageStream    Stage = "stream"
)

// Code is the stable, wire-visible error identifier. These map 1:1 onto the
// `code` field of a `*_RES` error payload (spec.md §4.6/§7).
type Code string

const (
	// Protocol errors: connection-terminating, never surfaced on the wire.
	CodeBadMagic           Code = "BAD_MAGIC"
	CodeChecksumMismatch   Code = "CHECKSUM_MISMATCH"
	CodePayloadOverflow    Code = "PAYLOAD_OVERFLOW"
	CodeNoSessionKey       Code = "NO_SESSION_KEY"
	CodeUnencryptedPayload Code = "UNENCRYPTED_PAYLOAD"

	// Encryption errors.
	CodeHandshakeFailed Code = "HANDSHAKE_FAILED"
	CodeInvalidKey      Code = "INVALID_KEY"
	CodeAuthFailedAEAD  Code = "AEAD_AUTH_FAILED"

	// Authentication errors: connection stays open.
	CodeAuthFailed      Code = "AUTH_FAILED"
	CodeSessionExpired  Code = "SESSION_EXPIRED"
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// Authorization.
	CodeForbidden Code = "FORBIDDEN"

	// Validation.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Not found.
	CodeUserNotFound    Code = "USER_NOT_FOUND"
	CodeChatNotFound    Code = "CHAT_NOT_FOUND"
	CodeMessageNotFound Code = "MESSAGE_NOT_FOUND"

	// Internal.
	CodeInternalError Code = "INTERNAL_ERROR"

	// Attachment side-channel.
	CodeAttachmentNotReady    Code = "ATTACHMENT_NOT_READY"
	CodeAttachmentKindMissing Code = "ATTACHMENT_KIND_MISSING"
	CodeAttachmentStreamFailed Code = "ATTACHMENT_STREAM_FAILED"
	CodeAttachmentTooLarge    Code = "ATTACHMENT_TOO_LARGE"
)

// Terminal reports whether Code always requires closing the connection, per
// spec.md §7 ("Protocol errors ... close the connection immediately").
func (c Code) Terminal() bool {
	switch c {
	case CodeBadMagic, CodeChecksumMismatch, CodePayloadOverflow, CodeNoSessionKey, CodeUnencryptedPayload:
		return true
	default:
		return false
	}
}

// Error is a structured, programmatically identifiable error.
type Error struct {
	Path  Path
	Stage Stage
	Code  Code
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s (%s): %v", e.Path, e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s (%s)", e.Path, e.Stage, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap constructs a structured Error.
func Wrap(path Path, stage Stage, code Code, err error) error {
	return &Error{Path: path, Stage: stage, Code: code, Err: err}
}

// CodeOf extracts the Code from err if it (or something it wraps) is a
// *Error, defaulting to CodeInternalError otherwise.
func CodeOf(err error) Code {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			return fe.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeInternalError
}
