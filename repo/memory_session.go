package repo

import (
	"context"
	"sync"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

// InMemorySessionRepository is a mutex-guarded reference SessionRepository.
type InMemorySessionRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]domain.Session
	byToken map[string]uuid.UUID
}

// NewInMemorySessionRepository constructs an empty repository.
func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		byID:    make(map[uuid.UUID]domain.Session),
		byToken: make(map[string]uuid.UUID),
	}
}

func (r *InMemorySessionRepository) Save(ctx context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[s.SessionID]; ok && old.Token != s.Token {
		delete(r.byToken, old.Token)
	}
	r.byID[s.SessionID] = s
	r.byToken[s.Token] = s.SessionID
	return nil
}

func (r *InMemorySessionRepository) FindByToken(ctx context.Context, token string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *InMemorySessionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *InMemorySessionRepository) FindExpired(ctx context.Context, before time.Time) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, s := range r.byID {
		if s.ExpiresAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *InMemorySessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, sessionID)
	delete(r.byToken, s.Token)
	return nil
}
