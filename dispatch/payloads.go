package dispatch

import (
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

// Request/response DTOs for the handler table in spec.md §4.6. These are
// distinct from domain.* types because wire payloads expose a narrower,
// client-facing shape (drafts, partial updates, redacted fields).

type authRegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Bio      string `json:"bio,omitempty"`
}

type authLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authLoginResponse struct {
	SessionID      uuid.UUID `json:"sessionId"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
	UserID         uuid.UUID `json:"userId"`
}

type authLogoutRequest struct {
	Token string `json:"token"`
}

type authTokenRefreshRequest struct {
	Token string `json:"token"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type userIDRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type userUpdateProfileRequest struct {
	UserID   uuid.UUID `json:"userId"`
	FullName *string   `json:"fullName,omitempty"`
	Bio      *string   `json:"bio,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
}

type userSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type userSearchResponse struct {
	Users []domain.PublicUserProfile `json:"users"`
}

type chatCreateRequest struct {
	ChatType    domain.ChatType `json:"chatType"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	OwnerID     uuid.UUID       `json:"ownerId"`
	MemberIDs   []uuid.UUID     `json:"memberIds"`
}

type chatListRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type chatListResponse struct {
	Chats []domain.Chat `json:"chats"`
}

type chatAddParticipantRequest struct {
	ChatID uuid.UUID              `json:"chatId"`
	UserID uuid.UUID              `json:"userId"`
	Role   domain.ParticipantRole `json:"role"`
}

type chatRemoveParticipantRequest struct {
	ChatID uuid.UUID `json:"chatId"`
	UserID uuid.UUID `json:"userId"`
}

type messageSendRequest struct {
	ChatID      uuid.UUID          `json:"chatId"`
	SenderID    uuid.UUID          `json:"senderId"`
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"messageType"`
	ReplyTo     *uuid.UUID         `json:"replyTo,omitempty"`
}

type messageHistoryRequest struct {
	ChatID          uuid.UUID  `json:"chatId"`
	Limit           int        `json:"limit"`
	Offset          int        `json:"offset,omitempty"`
	BeforeMessageID *uuid.UUID `json:"beforeMessageId,omitempty"`
}

type messageHistoryResponse struct {
	Messages []domain.Message `json:"messages"`
}

type messageEditRequest struct {
	MessageID  uuid.UUID `json:"messageId"`
	NewContent string    `json:"newContent"`
}

type messageDeleteRequest struct {
	MessageID uuid.UUID `json:"messageId"`
}

// requestingUser carries the caller's identity into a handler for
// ownership checks; handlers read it off the Session they're given rather
// than trusting a client-supplied field.
type requestingUser struct {
	UserID uuid.UUID
}
