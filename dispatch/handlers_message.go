package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/wire"
	"github.com/google/uuid"
)

func registerMessageHandlers(r *Registry, d *Deps) {
	RegisterTyped(r, wire.MsgMessageSendReq, wire.MsgMessageSendRes, true, d.handleMessageSend)
	RegisterTyped(r, wire.MsgMessageHistoryReq, wire.MsgMessageHistoryRes, true, d.handleMessageHistory)
	RegisterTyped(r, wire.MsgMessageEditReq, wire.MsgMessageEditRes, true, d.handleMessageEdit)
	RegisterTyped(r, wire.MsgMessageDeleteReq, wire.MsgMessageDeleteRes, true, d.handleMessageDelete)
}

func (d *Deps) handleMessageSend(ctx context.Context, sess Session, req *messageSendRequest) (*domain.Message, error) {
	if req.SenderID != sess.UserID() {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("senderId must match the authenticated user"))
	}
	if req.Content == "" {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInvalidRequest, errors.New("content is required"))
	}
	participants, err := d.Chats.FindParticipants(ctx, req.ChatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeChatNotFound, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	isMember := false
	for _, p := range participants {
		if p.UserID == req.SenderID {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("sender is not a participant of this chat"))
	}

	msgType := req.MessageType
	if msgType == "" {
		msgType = domain.MessageText
	}
	msg := domain.Message{
		MessageID:   uuid.New(),
		ChatID:      req.ChatID,
		SenderID:    req.SenderID,
		Content:     req.Content,
		MessageType: msgType,
		ReplyTo:     req.ReplyTo,
		CreatedAt:   time.Now(),
	}
	if err := d.Messages.Save(ctx, msg); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}

	// Fan out MESSAGE_RECEIVE to every connection of every participant
	// except the sending connection. Best
	// effort: a delivery failure here never rolls back the persisted
	// message (spec.md §13 decision — the sender's own write already
	// succeeded and is the source of truth).
	if d.Fanout != nil {
		if payload, err := json.Marshal(msg); err == nil {
			recipients := make([]uuid.UUID, 0, len(participants))
			for _, p := range participants {
				recipients = append(recipients, p.UserID)
			}
			d.Fanout.FanOut(recipients, sess.ConnID(), uint16(wire.MsgMessageReceive), payload)
		}
	}

	return &msg, nil
}

func (d *Deps) handleMessageHistory(ctx context.Context, sess Session, req *messageHistoryRequest) (*messageHistoryResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	var (
		messages []domain.Message
		err      error
	)
	if req.BeforeMessageID != nil {
		messages, err = d.Messages.FindMessagesBefore(ctx, req.ChatID, *req.BeforeMessageID, limit)
	} else {
		messages, err = d.Messages.FindMessagesByChat(ctx, req.ChatID, limit, req.Offset)
	}
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return &messageHistoryResponse{Messages: messages}, nil
}

func (d *Deps) handleMessageEdit(ctx context.Context, sess Session, req *messageEditRequest) (*domain.Message, error) {
	msg, err := d.Messages.FindByID(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeMessageNotFound, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	if msg.SenderID != sess.UserID() {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("only the sender may edit this message"))
	}
	if msg.DeletedAt != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInvalidRequest, errors.New("cannot edit a deleted message"))
	}
	now := time.Now()
	msg.Content = req.NewContent
	msg.EditedAt = &now
	if err := d.Messages.Save(ctx, msg); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return &msg, nil
}

func (d *Deps) handleMessageDelete(ctx context.Context, sess Session, req *messageDeleteRequest) (*domain.Message, error) {
	msg, err := d.Messages.FindByID(ctx, req.MessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeMessageNotFound, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	if msg.SenderID != sess.UserID() {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("only the sender may delete this message"))
	}
	msg.Tombstone(time.Now())
	if err := d.Messages.Save(ctx, msg); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return &msg, nil
}
