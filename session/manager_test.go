package session

import (
	"context"
	"testing"
	"time"

	"github.com/chatv2/chatv2-server/repo"
	"github.com/google/uuid"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(repo.NewInMemorySessionRepository(), Config{
		Secret:   []byte("test-secret"),
		TokenTTL: time.Second,
	})
}

func TestMintThenValidate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	userID := uuid.New()

	minted, err := m.Mint(ctx, userID, "", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if minted.Token == "" {
		t.Fatalf("expected non-empty token")
	}
	if !minted.ExpiresAt.After(now) {
		t.Fatalf("expected expiry after mint time")
	}

	got, err := m.Validate(ctx, minted.Token, now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != userID {
		t.Fatalf("UserID mismatch: got=%v want=%v", got.UserID, userID)
	}
}

func TestValidateFailsAfterExpiry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	minted, err := m.Mint(ctx, uuid.New(), "", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	later := now.Add(2 * time.Second)
	if _, err := m.Validate(ctx, minted.Token, later); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestRefreshReplacesToken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	minted, err := m.Mint(ctx, uuid.New(), "", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	refreshed, err := m.Refresh(ctx, minted.Token, now)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Token == minted.Token {
		t.Fatalf("expected a new token")
	}
	if refreshed.SessionID != minted.SessionID {
		t.Fatalf("expected same session id across refresh")
	}
	if _, err := m.Validate(ctx, minted.Token, now); err == nil {
		t.Fatalf("expected old token to no longer validate")
	}
}

func TestTerminateEvictsSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	minted, err := m.Mint(ctx, uuid.New(), "", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := m.Terminate(ctx, minted.Token, now); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if _, err := m.Validate(ctx, minted.Token, now); err != ErrExpired {
		t.Fatalf("expected ErrExpired after terminate, got %v", err)
	}
}
