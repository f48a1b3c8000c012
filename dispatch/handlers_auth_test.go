package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHandleAuthTokenRefreshMintsNewToken(t *testing.T) {
	d := newTestDeps()
	userID := uuid.New()
	old, err := d.Sessions.Mint(context.Background(), userID, "test-device", time.Now())
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	got, err := d.handleAuthTokenRefresh(context.Background(), authedSession(userID), &authTokenRefreshRequest{Token: old.Token})
	if err != nil {
		t.Fatalf("handleAuthTokenRefresh: %v", err)
	}
	if got.Token == old.Token {
		t.Fatalf("expected a new token, got the same one back")
	}
	if got.SessionID != old.SessionID {
		t.Fatalf("expected the same SessionID across refresh, got old=%v new=%v", old.SessionID, got.SessionID)
	}
	if got.UserID != userID {
		t.Fatalf("expected UserID %v, got %v", userID, got.UserID)
	}

	if _, err := d.Sessions.Validate(context.Background(), old.Token, time.Now()); err == nil {
		t.Fatalf("expected the old token to no longer validate after refresh")
	}
	if _, err := d.Sessions.Validate(context.Background(), got.Token, time.Now()); err != nil {
		t.Fatalf("expected the refreshed token to validate, got %v", err)
	}
}

func TestHandleAuthTokenRefreshRejectsUnknownToken(t *testing.T) {
	d := newTestDeps()
	_, err := d.handleAuthTokenRefresh(context.Background(), authedSession(uuid.New()), &authTokenRefreshRequest{Token: "not-a-real-token"})
	if err == nil {
		t.Fatalf("expected an error refreshing an unknown token")
	}
}
