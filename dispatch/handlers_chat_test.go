package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

func seedChat(t *testing.T, d *Deps, owner uuid.UUID, chatType domain.ChatType) domain.Chat {
	t.Helper()
	now := time.Now()
	chat := domain.Chat{
		ChatID:    uuid.New(),
		ChatType:  chatType,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.Chats.Save(context.Background(), chat); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := d.Chats.AddParticipant(context.Background(), domain.Participant{ChatID: chat.ChatID, UserID: owner, Role: domain.RoleOwner}); err != nil {
		t.Fatalf("AddParticipant(owner): %v", err)
	}
	return chat
}

func TestHandleChatAddParticipantReturnsUpdatedChat(t *testing.T) {
	d := newTestDeps()
	owner := uuid.New()
	newMember := uuid.New()
	chat := seedChat(t, d, owner, domain.ChatGroup)

	got, err := d.handleChatAddParticipant(context.Background(), authedSession(owner), &chatAddParticipantRequest{
		ChatID: chat.ChatID,
		UserID: newMember,
		Role:   domain.RoleMember,
	})
	if err != nil {
		t.Fatalf("handleChatAddParticipant: %v", err)
	}
	if got.ChatID != chat.ChatID {
		t.Fatalf("expected chat %v, got %v", chat.ChatID, got.ChatID)
	}
	if got.ParticipantCount != 2 {
		t.Fatalf("expected ParticipantCount=2 after add, got %d", got.ParticipantCount)
	}
}

func TestHandleChatRemoveParticipantReturnsUpdatedChat(t *testing.T) {
	d := newTestDeps()
	owner := uuid.New()
	member := uuid.New()
	chat := seedChat(t, d, owner, domain.ChatGroup)
	if err := d.Chats.AddParticipant(context.Background(), domain.Participant{ChatID: chat.ChatID, UserID: member, Role: domain.RoleMember}); err != nil {
		t.Fatalf("AddParticipant(member): %v", err)
	}

	got, err := d.handleChatRemoveParticipant(context.Background(), authedSession(owner), &chatRemoveParticipantRequest{
		ChatID: chat.ChatID,
		UserID: member,
	})
	if err != nil {
		t.Fatalf("handleChatRemoveParticipant: %v", err)
	}
	if got.ParticipantCount != 1 {
		t.Fatalf("expected ParticipantCount=1 after remove, got %d", got.ParticipantCount)
	}
}

func TestHandleChatRemoveParticipantSelfLeaveReturnsUpdatedChat(t *testing.T) {
	d := newTestDeps()
	owner := uuid.New()
	member := uuid.New()
	chat := seedChat(t, d, owner, domain.ChatGroup)
	if err := d.Chats.AddParticipant(context.Background(), domain.Participant{ChatID: chat.ChatID, UserID: member, Role: domain.RoleMember}); err != nil {
		t.Fatalf("AddParticipant(member): %v", err)
	}

	got, err := d.handleChatRemoveParticipant(context.Background(), authedSession(member), &chatRemoveParticipantRequest{
		ChatID: chat.ChatID,
		UserID: member,
	})
	if err != nil {
		t.Fatalf("handleChatRemoveParticipant (self leave): %v", err)
	}
	if got.ParticipantCount != 1 {
		t.Fatalf("expected ParticipantCount=1 after self-leave, got %d", got.ParticipantCount)
	}
}
