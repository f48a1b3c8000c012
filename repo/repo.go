// Package repo defines the persistence contracts the core consumes (spec.md
// §4.8). Implementations live outside the specified core; this package also
// ships in-memory reference implementations plus a pebble-backed session
// store, exercised by tests and suitable for single-node deployments.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned by any lookup method when no matching record
// exists.
var ErrNotFound = errors.New("repo: not found")

// UserRepository persists UserProfile records.
type UserRepository interface {
	Save(ctx context.Context, u domain.UserProfile) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.UserProfile, error)
	FindByUsername(ctx context.Context, username string) (domain.UserProfile, error)
	SearchByUsername(ctx context.Context, query string, limit int) ([]domain.UserProfile, error)
	FindByStatus(ctx context.Context, status domain.UserStatus) ([]domain.UserProfile, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// SessionRepository persists Session records.
type SessionRepository interface {
	Save(ctx context.Context, s domain.Session) error
	FindByToken(ctx context.Context, token string) (domain.Session, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
	FindExpired(ctx context.Context, before time.Time) ([]domain.Session, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// ChatRepository persists Chat records and their participant edges.
type ChatRepository interface {
	Save(ctx context.Context, c domain.Chat) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Chat, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Chat, error)
	FindPrivateChat(ctx context.Context, u1, u2 uuid.UUID) (domain.Chat, error)
	AddParticipant(ctx context.Context, p domain.Participant) error
	RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) error
	FindParticipants(ctx context.Context, chatID uuid.UUID) ([]domain.Participant, error)
	ParticipantCount(ctx context.Context, chatID uuid.UUID) (int, error)
}

// MessageRepository persists Message records.
type MessageRepository interface {
	Save(ctx context.Context, m domain.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Message, error)
	FindMessagesByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]domain.Message, error)
	FindMessagesBefore(ctx context.Context, chatID, beforeMessageID uuid.UUID, limit int) ([]domain.Message, error)
	AddReadReceipt(ctx context.Context, messageID, userID uuid.UUID) error
	FindUnread(ctx context.Context, chatID, userID uuid.UUID) ([]domain.Message, error)
}
