package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatType distinguishes a two-party chat from a multi-party group.
type ChatType string

const (
	ChatPrivate ChatType = "PRIVATE"
	ChatGroup   ChatType = "GROUP"
)

// ParticipantRole is a member's privilege level within a chat.
type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "OWNER"
	RoleMember ParticipantRole = "MEMBER"
)

// Chat is a conversation, either a 1:1 PRIVATE chat or a multi-member GROUP.
type Chat struct {
	ChatID           uuid.UUID `json:"chatId"`
	ChatType         ChatType  `json:"chatType"`
	Name             string    `json:"name,omitempty"`
	Description      string    `json:"description,omitempty"`
	OwnerID          uuid.UUID `json:"ownerId"`
	AvatarData       string    `json:"avatarData,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	ParticipantCount int       `json:"participantCount"`
}

// Participant is the (chat_id, user_id, role) membership edge, unique on
// (ChatID, UserID).
type Participant struct {
	ChatID uuid.UUID       `json:"chatId"`
	UserID uuid.UUID       `json:"userId"`
	Role   ParticipantRole `json:"role"`
}
