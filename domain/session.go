package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is the durable session record backing a minted JWT (spec.md §3,
// §4.5). A Session is valid iff now < ExpiresAt.
type Session struct {
	SessionID      uuid.UUID `json:"sessionId"`
	UserID         uuid.UUID `json:"userId"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	DeviceInfo     string    `json:"deviceInfo,omitempty"`
}

// Valid reports whether the session has not yet expired as of now.
func (s Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
