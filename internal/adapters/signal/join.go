package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

func (ctl *Controller) handleJoin(ctx context.Context, c *core.Conn, data []byte) {
	type joinPayload struct {
		Type      string           `json:"type"`
		ChannelID domain.ChannelID `json:"channelId"`
		Token     string           `json:"token"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChannelID == "" || p.Token == "" {
		log.Warn().Str("module", "signal").Str("sid", string(c.SID)).Msg("bad join payload")
		ctl.sendError(c, "malformed join")
		ctl.closeFailedJoin(c, "malformed join")
		return
	}

	if err := ctl.Hub.Join(ctx, c, p.ChannelID, p.Token); err != nil {
		ctl.joinFailed(c, err)
		return
	}

	// Presence snapshot for the joiner; user-joined went to the rest.
	ctl.sendJSON(c, struct {
		Type      string           `json:"type"`
		ChannelID domain.ChannelID `json:"channelId"`
		Users     []domain.User    `json:"users"`
	}{"channel-users", p.ChannelID, ctl.Hub.Registry.Members(p.ChannelID)})

	// Recent history, then anything buffered while the user was away.
	msgs := ctl.Hub.History(ctx, c, p.ChannelID, 0)
	ctl.sendJSON(c, struct {
		Type      string               `json:"type"`
		ChannelID domain.ChannelID     `json:"channelId"`
		Messages  []domain.ChatMessage `json:"messages"`
	}{"channel-history", p.ChannelID, msgs})

	ctl.Hub.Relay.FlushTo(c)
}

// joinFailed surfaces the reason, then closes unless the error leaves
// room for another attempt on the same connection.
func (ctl *Controller) joinFailed(c *core.Conn, err error) {
	if errors.Is(err, core.ErrConnClosed) {
		return
	}
	ctl.fail(c, err)

	switch e := err.(type) {
	case *core.ProtocolError:
		// "already joined" and friends: connection stays open.
		return
	case *core.AccessDenied:
		c.Sig.CloseWithReason(websocket.ClosePolicyViolation, e.Reason)
	case *core.ChannelUnavailable:
		c.Sig.CloseWithReason(websocket.ClosePolicyViolation, "channel no longer available")
	default:
		// AuthError and unexpected failures: the connection never
		// reached member state, close with a generic failure code.
		ctl.closeFailedJoin(c, "join failed")
	}
	ctl.Hub.Teardown(c)
}

func (ctl *Controller) closeFailedJoin(c *core.Conn, reason string) {
	if c.State() == core.StateMember {
		return
	}
	c.Sig.CloseWithReason(websocket.CloseInternalServerErr, reason)
	ctl.Hub.Teardown(c)
}

func (ctl *Controller) handleLeave(c *core.Conn) {
	ctl.Hub.Leave(c)
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{"left"})
}

func (ctl *Controller) handleWhoAmI(c *core.Conn) {
	resp := struct {
		Type      string           `json:"type"`
		UserID    domain.UserID    `json:"userId,omitempty"`
		Username  string           `json:"username,omitempty"`
		ChannelID domain.ChannelID `json:"channelId,omitempty"`
		Role      domain.Role      `json:"role,omitempty"`
	}{
		Type:      "whoami",
		UserID:    c.UserID(),
		Username:  c.Username(),
		ChannelID: c.ChannelID(),
		Role:      c.Role(),
	}
	ctl.sendJSON(c, resp)
}
