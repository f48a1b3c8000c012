package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

// InMemoryUserRepository is a mutex-guarded reference UserRepository,
// suitable for tests and small single-node deployments.
type InMemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]domain.UserProfile
	byUsername map[string]uuid.UUID
}

// NewInMemoryUserRepository constructs an empty repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		byID:       make(map[uuid.UUID]domain.UserProfile),
		byUsername: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Save(ctx context.Context, u domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.UserID] = u
	r.byUsername[strings.ToLower(u.Username)] = u.UserID
	return nil
}

func (r *InMemoryUserRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.UserProfile{}, ErrNotFound
	}
	return u, nil
}

func (r *InMemoryUserRepository) FindByUsername(ctx context.Context, username string) (domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return domain.UserProfile{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *InMemoryUserRepository) SearchByUsername(ctx context.Context, query string, limit int) ([]domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := strings.ToLower(query)
	var out []domain.UserProfile
	for _, u := range r.byID {
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryUserRepository) FindByStatus(ctx context.Context, status domain.UserStatus) ([]domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.UserProfile
	for _, u := range r.byID {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *InMemoryUserRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byUsername, strings.ToLower(u.Username))
	return nil
}
