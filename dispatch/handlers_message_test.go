package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/google/uuid"
)

func TestHandleMessageDeleteReturnsTombstonedMessage(t *testing.T) {
	d := newTestDeps()
	sender := uuid.New()
	now := time.Now()
	msg := domain.Message{
		MessageID:   uuid.New(),
		ChatID:      uuid.New(),
		SenderID:    sender,
		Content:     "hello",
		MessageType: domain.MessageText,
		CreatedAt:   now,
	}
	if err := d.Messages.Save(context.Background(), msg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := d.handleMessageDelete(context.Background(), authedSession(sender), &messageDeleteRequest{MessageID: msg.MessageID})
	if err != nil {
		t.Fatalf("handleMessageDelete: %v", err)
	}
	if got.MessageID != msg.MessageID {
		t.Fatalf("expected message %v, got %v", msg.MessageID, got.MessageID)
	}
	if got.DeletedAt == nil {
		t.Fatalf("expected DeletedAt to be set on the returned message")
	}
	if got.Content != domain.DeletedContentSentinel {
		t.Fatalf("expected tombstoned content sentinel, got %q", got.Content)
	}
}
