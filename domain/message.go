package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the content kind of a chat message (distinct from the wire
// MessageType enum in package wire).
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageImage  MessageType = "IMAGE"
	MessageFile   MessageType = "FILE"
	MessageVoice  MessageType = "VOICE"
	MessageSystem MessageType = "SYSTEM"
)

// DeletedContentSentinel replaces Content when a message has been
// tombstoned by MESSAGE_DELETE_REQ.
const DeletedContentSentinel = "[deleted]"

// Message is a single chat message. ReplyTo, EditedAt, and DeletedAt are
// nil/zero unless applicable.
type Message struct {
	MessageID   uuid.UUID       `json:"messageId"`
	ChatID      uuid.UUID       `json:"chatId"`
	SenderID    uuid.UUID       `json:"senderId"`
	Content     string          `json:"content"`
	MessageType MessageType     `json:"messageType"`
	ReplyTo     *uuid.UUID      `json:"replyTo,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	EditedAt    *time.Time      `json:"editedAt,omitempty"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
	ReadBy      map[uuid.UUID]struct{} `json:"-"`
}

// MarkRead adds userID to ReadBy. Idempotent: marking the same user twice
// leaves ReadBy unchanged after the first call (spec.md P7).
func (m *Message) MarkRead(userID uuid.UUID) {
	if m.ReadBy == nil {
		m.ReadBy = make(map[uuid.UUID]struct{})
	}
	m.ReadBy[userID] = struct{}{}
}

// IsReadBy reports whether userID has read the message.
func (m *Message) IsReadBy(userID uuid.UUID) bool {
	_, ok := m.ReadBy[userID]
	return ok
}

// ReadByList returns the user IDs in ReadBy as a slice, in map iteration
// (unspecified) order. ReadBy itself is excluded from JSON encoding.
func (m *Message) ReadByList() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m.ReadBy))
	for id := range m.ReadBy {
		out = append(out, id)
	}
	return out
}

// Tombstone replaces Content with DeletedContentSentinel and stamps
// DeletedAt.
func (m *Message) Tombstone(now time.Time) {
	m.Content = DeletedContentSentinel
	m.DeletedAt = &now
}
