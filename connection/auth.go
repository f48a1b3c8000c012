package connection

import (
	"encoding/json"

	"github.com/chatv2/chatv2-server/observability"
	"github.com/google/uuid"
)

// loginResponsePayload mirrors the wire-level shape of a successful
// AUTH_LOGIN_RES payload (package dispatch's authLoginResponse). Duplicated
// here rather than imported since dispatch's DTOs are unexported; this
// package only ever needs the one field.
type loginResponsePayload struct {
	UserID uuid.UUID `json:"userId"`
}

// bindSessionIfLoginSucceeded inspects a successful AUTH_LOGIN_RES payload,
// transitions UNAUTHENTICATED_ENCRYPTED -> AUTHENTICATED, and binds this
// connection into the fan-out registry under the logged-in user's id
// (spec.md §4.3).
func (c *Conn) bindSessionIfLoginSucceeded(payload []byte) {
	var body loginResponsePayload
	if err := json.Unmarshal(payload, &body); err != nil || body.UserID == uuid.Nil {
		return
	}
	c.mu.Lock()
	c.userID = body.UserID
	c.state = StateAuthenticated
	c.mu.Unlock()
	c.obs.Auth(observability.AuthResultOK)
	if c.reg != nil {
		c.reg.Bind(body.UserID, c)
	}
}
