package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

// InMemoryMessageRepository is a mutex-guarded reference MessageRepository.
type InMemoryMessageRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]domain.Message
	byChat   map[uuid.UUID][]uuid.UUID // chatID -> message ids, oldest first
}

// NewInMemoryMessageRepository constructs an empty repository.
func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{
		byID:   make(map[uuid.UUID]domain.Message),
		byChat: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *InMemoryMessageRepository) Save(ctx context.Context, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[m.MessageID]; !exists {
		r.byChat[m.ChatID] = append(r.byChat[m.ChatID], m.MessageID)
	}
	r.byID[m.MessageID] = m
	return nil
}

func (r *InMemoryMessageRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	return m, nil
}

// FindMessagesByChat returns messages newest-first, per spec.md §4.6.
func (r *InMemoryMessageRepository) FindMessagesByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byChat[chatID]
	out := make([]domain.Message, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.byID[ids[i]])
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindMessagesBefore returns up to limit messages in chatID strictly older
// than beforeMessageID, newest-first.
func (r *InMemoryMessageRepository) FindMessagesBefore(ctx context.Context, chatID, beforeMessageID uuid.UUID, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byChat[chatID]
	cutoff, ok := r.byID[beforeMessageID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []domain.Message
	for i := len(ids) - 1; i >= 0; i-- {
		m := r.byID[ids[i]]
		if m.CreatedAt.Before(cutoff.CreatedAt) {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryMessageRepository) AddReadReceipt(ctx context.Context, messageID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[messageID]
	if !ok {
		return ErrNotFound
	}
	m.MarkRead(userID)
	r.byID[messageID] = m
	return nil
}

func (r *InMemoryMessageRepository) FindUnread(ctx context.Context, chatID, userID uuid.UUID) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for _, id := range r.byChat[chatID] {
		m := r.byID[id]
		if !m.IsReadBy(userID) {
			out = append(out, m)
		}
	}
	return out, nil
}
