package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/chatv2/chatv2-server/fserrors"
	"github.com/chatv2/chatv2-server/internal/passwordhash"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/session"
	"github.com/chatv2/chatv2-server/wire"
	"github.com/google/uuid"
)

func registerAuthHandlers(r *Registry, d *Deps) {
	RegisterTyped(r, wire.MsgAuthRegisterReq, wire.MsgAuthRegisterRes, false, d.handleAuthRegister)
	RegisterTyped(r, wire.MsgAuthLoginReq, wire.MsgAuthLoginRes, false, d.handleAuthLogin)
	RegisterTyped(r, wire.MsgAuthLogoutReq, wire.MsgAuthLogoutRes, true, d.handleAuthLogout)
	RegisterTyped(r, wire.MsgAuthTokenRefreshReq, wire.MsgAuthTokenRefreshRes, true, d.handleAuthTokenRefresh)
}

func (d *Deps) handleAuthRegister(ctx context.Context, sess Session, req *authRegisterRequest) (*domain.PublicUserProfile, error) {
	if req.Username == "" || req.Password == "" || req.FullName == "" {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInvalidRequest, errors.New("username, password, and fullName are required"))
	}
	if _, err := d.Users.FindByUsername(ctx, req.Username); err == nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInvalidRequest, errors.New("username already taken"))
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}

	hash, err := passwordhash.Hash(req.Password)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageHandle, fserrors.CodeInternalError, err)
	}
	now := time.Now()
	user := domain.UserProfile{
		UserID:       uuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Bio:          req.Bio,
		Status:       domain.StatusOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Users.Save(ctx, user); err != nil {
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	view := user.PublicView()
	return &view, nil
}

func (d *Deps) handleAuthLogin(ctx context.Context, sess Session, req *authLoginRequest) (*authLoginResponse, error) {
	user, err := d.Users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathAuth, fserrors.StageVerify, fserrors.CodeAuthFailed, errors.New("invalid credentials"))
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	if !passwordhash.Verify(user.PasswordHash, req.Password) {
		return nil, fserrors.Wrap(fserrors.PathAuth, fserrors.StageVerify, fserrors.CodeAuthFailed, errors.New("invalid credentials"))
	}

	s, err := d.Sessions.Mint(ctx, user.UserID, "", time.Now())
	if err != nil {
		return nil, fserrors.Wrap(fserrors.PathAuth, fserrors.StageMint, fserrors.CodeInternalError, err)
	}
	return &authLoginResponse{
		SessionID: s.SessionID,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		UserID:    s.UserID,
	}, nil
}

func (d *Deps) handleAuthTokenRefresh(ctx context.Context, sess Session, req *authTokenRefreshRequest) (*authLoginResponse, error) {
	s, err := d.Sessions.Refresh(ctx, req.Token, time.Now())
	if err != nil {
		if errors.Is(err, session.ErrExpired) || errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathAuth, fserrors.StageVerify, fserrors.CodeSessionExpired, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return &authLoginResponse{
		SessionID: s.SessionID,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		UserID:    s.UserID,
	}, nil
}

func (d *Deps) handleAuthLogout(ctx context.Context, sess Session, req *authLogoutRequest) (*okResponse, error) {
	if err := d.Sessions.Terminate(ctx, req.Token, time.Now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fserrors.Wrap(fserrors.PathAuth, fserrors.StageVerify, fserrors.CodeSessionExpired, err)
		}
		return nil, fserrors.Wrap(fserrors.PathDispatch, fserrors.StageRepo, fserrors.CodeInternalError, err)
	}
	return &okResponse{OK: true}, nil
}
