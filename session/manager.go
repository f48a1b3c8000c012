package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/chatv2/chatv2-server/internal/defaults"
	"github.com/chatv2/chatv2-server/internal/timeutil"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/google/uuid"
)

// Manager mints, validates, refreshes, and terminates sessions. It keeps an
// in-memory token->Session cache consistent with a backing
// repo.SessionRepository, and runs a periodic sweep that deletes sessions
// expired past a grace window (spec.md §4.5).
type Manager struct {
	secret       []byte
	repo         repo.SessionRepository
	tokenTTL     time.Duration
	cleanupEvery time.Duration
	grace        time.Duration
	clockSkew    time.Duration

	mu    sync.RWMutex
	cache map[string]domain.Session // token -> session

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config configures a Manager. Zero values fall back to internal/defaults.
type Config struct {
	Secret          []byte
	TokenTTL        time.Duration
	CleanupInterval time.Duration
	CleanupGrace    time.Duration

	// ClockSkew tolerates a token's expiry having just passed, so a client
	// whose clock (or a multi-node deployment's clock) drifts slightly ahead
	// of this node isn't rejected for a session that is, from its own point
	// of view, still live. Rounded up to whole seconds.
	ClockSkew time.Duration
}

// NewManager constructs a Manager backed by sessionRepo. It does not start
// the cleanup loop; call Run for that.
func NewManager(sessionRepo repo.SessionRepository, cfg Config) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.SessionCleanupInterval
	}
	if cfg.CleanupGrace <= 0 {
		cfg.CleanupGrace = defaults.SessionCleanupGrace
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaults.SessionClockSkew
	}
	return &Manager{
		secret:       cfg.Secret,
		repo:         sessionRepo,
		tokenTTL:     cfg.TokenTTL,
		cleanupEvery: cfg.CleanupInterval,
		grace:        cfg.CleanupGrace,
		clockSkew:    timeutil.NormalizeSkew(cfg.ClockSkew),
		cache:        make(map[string]domain.Session),
		stopCh:       make(chan struct{}),
	}
}

func newJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Mint creates and persists a new Session for userID, caches it by token,
// and returns it.
func (m *Manager) Mint(ctx context.Context, userID uuid.UUID, deviceInfo string, now time.Time) (domain.Session, error) {
	jti := newJTI()
	token, err := MintToken(m.secret, userID, jti, now, m.tokenTTL)
	if err != nil {
		return domain.Session{}, err
	}
	s := domain.Session{
		SessionID:      uuid.New(),
		UserID:         userID,
		Token:          token,
		ExpiresAt:      now.Add(m.tokenTTL),
		CreatedAt:      now,
		LastAccessedAt: now,
		DeviceInfo:     deviceInfo,
	}
	if err := m.repo.Save(ctx, s); err != nil {
		return domain.Session{}, err
	}
	m.mu.Lock()
	m.cache[s.Token] = s
	m.mu.Unlock()
	return s, nil
}

// Validate verifies the JWT and returns the backing Session, refreshing
// LastAccessedAt. Returns ErrExpired if the token (or the cached/stored
// session) has expired as of now.
func (m *Manager) Validate(ctx context.Context, token string, now time.Time) (domain.Session, error) {
	if _, err := ParseToken(m.secret, token); err != nil {
		return domain.Session{}, err
	}

	m.mu.RLock()
	s, cached := m.cache[token]
	m.mu.RUnlock()

	if !cached {
		loaded, err := m.repo.FindByToken(ctx, token)
		if err != nil {
			return domain.Session{}, err
		}
		s = loaded
	}
	if !s.Valid(now.Add(-m.clockSkew)) {
		return domain.Session{}, ErrExpired
	}
	s.LastAccessedAt = now
	m.mu.Lock()
	m.cache[token] = s
	m.mu.Unlock()
	if err := m.repo.Save(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// Refresh mints a new token for the same SessionID, replacing the old
// token's cache entry and store record.
func (m *Manager) Refresh(ctx context.Context, oldToken string, now time.Time) (domain.Session, error) {
	old, err := m.Validate(ctx, oldToken, now)
	if err != nil {
		return domain.Session{}, err
	}
	newToken, err := MintToken(m.secret, old.UserID, newJTI(), now, m.tokenTTL)
	if err != nil {
		return domain.Session{}, err
	}
	next := old
	next.Token = newToken
	next.ExpiresAt = now.Add(m.tokenTTL)
	next.LastAccessedAt = now
	if err := m.repo.Save(ctx, next); err != nil {
		return domain.Session{}, err
	}
	m.mu.Lock()
	delete(m.cache, oldToken)
	m.cache[next.Token] = next
	m.mu.Unlock()
	return next, nil
}

// Terminate expires a single session immediately and evicts it from cache.
func (m *Manager) Terminate(ctx context.Context, token string, now time.Time) error {
	m.mu.Lock()
	s, ok := m.cache[token]
	delete(m.cache, token)
	m.mu.Unlock()
	if !ok {
		loaded, err := m.repo.FindByToken(ctx, token)
		if err != nil {
			return err
		}
		s = loaded
	}
	s.ExpiresAt = now.Add(-time.Second)
	return m.repo.Save(ctx, s)
}

// TerminateAllForUser expires every session belonging to userID.
func (m *Manager) TerminateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) error {
	sessions, err := m.repo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, s := range sessions {
		s.ExpiresAt = now.Add(-time.Second)
		delete(m.cache, s.Token)
		_ = m.repo.Save(ctx, s)
	}
	m.mu.Unlock()
	return nil
}

// Run starts the periodic expired-session sweep; it blocks until Close is
// called or ctx is done.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-t.C:
			m.cleanupOnce(time.Now())
		}
	}
}

func (m *Manager) cleanupOnce(now time.Time) {
	expired, err := m.repo.FindExpired(context.Background(), now.Add(-m.grace))
	if err != nil {
		return
	}
	m.mu.Lock()
	for _, s := range expired {
		delete(m.cache, s.Token)
	}
	m.mu.Unlock()
	for _, s := range expired {
		_ = m.repo.Delete(context.Background(), s.SessionID)
	}
}

// Close stops the cleanup loop.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
