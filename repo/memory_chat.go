package repo

import (
	"context"
	"sync"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

// InMemoryChatRepository is a mutex-guarded reference ChatRepository.
type InMemoryChatRepository struct {
	mu           sync.RWMutex
	chats        map[uuid.UUID]domain.Chat
	participants map[uuid.UUID]map[uuid.UUID]domain.Participant // chatID -> userID -> edge
}

// NewInMemoryChatRepository constructs an empty repository.
func NewInMemoryChatRepository() *InMemoryChatRepository {
	return &InMemoryChatRepository{
		chats:        make(map[uuid.UUID]domain.Chat),
		participants: make(map[uuid.UUID]map[uuid.UUID]domain.Participant),
	}
}

func (r *InMemoryChatRepository) Save(ctx context.Context, c domain.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[c.ChatID] = c
	if _, ok := r.participants[c.ChatID]; !ok {
		r.participants[c.ChatID] = make(map[uuid.UUID]domain.Participant)
	}
	return nil
}

func (r *InMemoryChatRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chats[id]
	if !ok {
		return domain.Chat{}, ErrNotFound
	}
	return c, nil
}

func (r *InMemoryChatRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Chat
	for chatID, members := range r.participants {
		if _, ok := members[userID]; ok {
			out = append(out, r.chats[chatID])
		}
	}
	return out, nil
}

func (r *InMemoryChatRepository) FindPrivateChat(ctx context.Context, u1, u2 uuid.UUID) (domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for chatID, members := range r.participants {
		c := r.chats[chatID]
		if c.ChatType != domain.ChatPrivate {
			continue
		}
		_, hasU1 := members[u1]
		_, hasU2 := members[u2]
		if hasU1 && hasU2 && len(members) == 2 {
			return c, nil
		}
	}
	return domain.Chat{}, ErrNotFound
}

func (r *InMemoryChatRepository) AddParticipant(ctx context.Context, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.participants[p.ChatID]
	if !ok {
		members = make(map[uuid.UUID]domain.Participant)
		r.participants[p.ChatID] = members
	}
	members[p.UserID] = p
	if c, ok := r.chats[p.ChatID]; ok {
		c.ParticipantCount = len(members)
		r.chats[p.ChatID] = c
	}
	return nil
}

func (r *InMemoryChatRepository) RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.participants[chatID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := members[userID]; !ok {
		return ErrNotFound
	}
	delete(members, userID)
	if c, ok := r.chats[chatID]; ok {
		c.ParticipantCount = len(members)
		r.chats[chatID] = c
	}
	return nil
}

func (r *InMemoryChatRepository) FindParticipants(ctx context.Context, chatID uuid.UUID) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.participants[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]domain.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	return out, nil
}

func (r *InMemoryChatRepository) ParticipantCount(ctx context.Context, chatID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants[chatID]), nil
}
