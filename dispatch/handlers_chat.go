package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/wire"
	"github.com/google/uuid"
)

func registerChatHandlers(r *Registry, d *Deps) {
	RegisterTyped(r, wire.MsgChatCreateReq, wire.MsgChatCreateRes, true, d.handleChatCreate)
	RegisterTyped(r, wire.MsgChatListReq, wire.MsgChatListRes, true, d.handleChatList)
	RegisterTyped(r, wire.MsgChatAddParticipantReq, wire.MsgChatAddParticipantRes, true, d.handleChatAddParticipant)
	RegisterTyped(r, wire.MsgChatRemoveParticipantReq, wire.MsgChatRemoveParticipantRes, true, d.handleChatRemoveParticipant)
}

func (d *Deps) handleChatCreate(ctx context.Context, sess Session, req *chatCreateRequest) (*domain.Chat, error) {
	if req.OwnerID != sess.UserID() {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("ownerId must match the authenticated user"))
	}

	if req.ChatType == domain.ChatPrivate {
		if len(req.MemberIDs) != 1 {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInvalidRequest, errors.New("private chats require exactly one other member"))
		}
		other := req.MemberIDs[0]
		if existing, err := d.Chats.FindPrivateChat(ctx, req.OwnerID, other); err == nil {
			return &existing, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
		}
	}

	now := time.Now()
	chat := domain.Chat{
		ChatID:      uuid.New(),
		ChatType:    req.ChatType,
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.Chats.Save(ctx, chat); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	if err := d.Chats.AddParticipant(ctx, domain.Participant{ChatID: chat.ChatID, UserID: req.OwnerID, Role: domain.RoleOwner}); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	for _, memberID := range req.MemberIDs {
		if memberID == req.OwnerID {
			continue
		}
		if err := d.Chats.AddParticipant(ctx, domain.Participant{ChatID: chat.ChatID, UserID: memberID, Role: domain.RoleMember}); err != nil {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
		}
	}
	count, err := d.Chats.ParticipantCount(ctx, chat.ChatID)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	chat.ParticipantCount = count
	return &chat, nil
}

func (d *Deps) handleChatList(ctx context.Context, sess Session, req *chatListRequest) (*chatListResponse, error) {
	if req.UserID != sess.UserID() {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("cannot list another user's chats"))
	}
	chats, err := d.Chats.FindByUser(ctx, req.UserID)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return &chatListResponse{Chats: chats}, nil
}

func (d *Deps) requireOwner(ctx context.Context, chatID, userID uuid.UUID) error {
	participants, err := d.Chats.FindParticipants(ctx, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeChatNotFound, err)
		}
		return fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	for _, p := range participants {
		if p.UserID == userID && p.Role == domain.RoleOwner {
			return nil
		}
	}
	return fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("only the chat owner may perform this action"))
}

func (d *Deps) handleChatAddParticipant(ctx context.Context, sess Session, req *chatAddParticipantRequest) (*domain.Chat, error) {
	if err := d.requireOwner(ctx, req.ChatID, sess.UserID()); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RoleMember
	}
	if err := d.Chats.AddParticipant(ctx, domain.Participant{ChatID: req.ChatID, UserID: req.UserID, Role: role}); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return d.refreshedChat(ctx, req.ChatID)
}

func (d *Deps) handleChatRemoveParticipant(ctx context.Context, sess Session, req *chatRemoveParticipantRequest) (*domain.Chat, error) {
	// Owner may remove anyone; a member may remove themself.
	if req.UserID != sess.UserID() {
		if err := d.requireOwner(ctx, req.ChatID, sess.UserID()); err != nil {
			return nil, err
		}
	}
	if err := d.Chats.RemoveParticipant(ctx, req.ChatID, req.UserID); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return d.refreshedChat(ctx, req.ChatID)
}

// refreshedChat reloads a chat with its current participant count after a
// membership mutation, for handlers whose *_RES payload is the updated Chat.
func (d *Deps) refreshedChat(ctx context.Context, chatID uuid.UUID) (*domain.Chat, error) {
	chat, err := d.Chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	count, err := d.Chats.ParticipantCount(ctx, chatID)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	chat.ParticipantCount = count
	return &chat, nil
}
