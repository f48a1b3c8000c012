package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/wire"
)

func registerUserHandlers(r *Registry, d *Deps) {
	RegisterTyped(r, wire.MsgUserGetProfileReq, wire.MsgUserGetProfileRes, true, d.handleUserGetProfile)
	RegisterTyped(r, wire.MsgUserUpdateProfileReq, wire.MsgUserUpdateProfileRes, true, d.handleUserUpdateProfile)
	RegisterTyped(r, wire.MsgUserSearchReq, wire.MsgUserSearchRes, true, d.handleUserSearch)
}

func (d *Deps) handleUserGetProfile(ctx context.Context, sess Session, req *userIDRequest) (*domain.PublicUserProfile, error) {
	user, err := d.Users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeUserNotFound, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	view := user.PublicView()
	return &view, nil
}

func (d *Deps) handleUserUpdateProfile(ctx context.Context, sess Session, req *userUpdateProfileRequest) (*domain.PublicUserProfile, error) {
	if req.UserID != sess.UserID() {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeForbidden, errors.New("cannot update another user's profile"))
	}
	user, err := d.Users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeUserNotFound, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.Avatar != nil {
		user.AvatarData = *req.Avatar
	}
	user.UpdatedAt = time.Now()
	if err := d.Users.Save(ctx, user); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	view := user.PublicView()
	return &view, nil
}

func (d *Deps) handleUserSearch(ctx context.Context, sess Session, req *userSearchRequest) (*userSearchResponse, error) {
	if req.Query == "" {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInvalidRequest, errors.New("query is required"))
	}
	users, err := d.Users.SearchByUsername(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	out := make([]domain.PublicUserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, u.PublicView())
	}
	return &userSearchResponse{Users: out}, nil
}
