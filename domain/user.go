// Package domain holds the entity types exchanged as JSON payloads over the
// wire (spec.md §3): user profiles, sessions, chats, participants, and
// messages. All identifiers are google/uuid.UUID values, serialized as
// canonical 36-char strings per spec.md §6.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the user's presence state.
type UserStatus string

const (
	StatusOnline    UserStatus = "ONLINE"
	StatusOffline   UserStatus = "OFFLINE"
	StatusAway      UserStatus = "AWAY"
	StatusBusy      UserStatus = "BUSY"
	StatusInvisible UserStatus = "INVISIBLE"
)

// UserProfile is the durable user record. PasswordHash and Salt are never
// serialized back to a client; handlers construct a redacted view (see
// PublicView) before writing a *_RES payload.
type UserProfile struct {
	UserID       uuid.UUID  `json:"userId"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Salt         string     `json:"-"`
	FullName     string     `json:"fullName"`
	AvatarData   string     `json:"avatarData,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PublicUserProfile is the sensitive-field-redacted view returned on the
// wire (spec.md §4.6: "UserProfile (public, sensitive fields redacted)").
type PublicUserProfile struct {
	UserID     uuid.UUID  `json:"userId"`
	Username   string     `json:"username"`
	FullName   string     `json:"fullName"`
	AvatarData string     `json:"avatarData,omitempty"`
	Bio        string     `json:"bio,omitempty"`
	Status     UserStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PublicView strips PasswordHash and Salt for wire transmission.
func (u UserProfile) PublicView() PublicUserProfile {
	return PublicUserProfile{
		UserID:     u.UserID,
		Username:   u.Username,
		FullName:   u.FullName,
		AvatarData: u.AvatarData,
		Bio:        u.Bio,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
