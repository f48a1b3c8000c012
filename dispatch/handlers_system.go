package dispatch

import (
	"context"

	"github.com/chatv2/chatv2-server/wire"
)

type pingRequest struct{}

type pongResponse struct{}

func registerSystemHandlers(r *Registry, d *Deps) {
	RegisterTyped(r, wire.MsgPing, wire.MsgPong, false, d.handlePing)
}

func (d *Deps) handlePing(ctx context.Context, sess Session, req *pingRequest) (*pongResponse, error) {
	return &pongResponse{}, nil
}
