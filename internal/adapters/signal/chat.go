package signal

import (
	"context"
	"encoding/json"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

func (ctl *Controller) handleChat(ctx context.Context, c *core.Conn, data []byte) {
	type chatPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad chat payload")
		return
	}
	if err := ctl.Hub.Chat(ctx, c, p.Text); err != nil {
		ctl.fail(c, err)
	}
}

func (ctl *Controller) handleHistory(ctx context.Context, c *core.Conn, data []byte) {
	type historyPayload struct {
		Type      string           `json:"type"`
		ChannelID domain.ChannelID `json:"channelId"`
		BeforeTs  int64            `json:"beforeTs,omitempty"`
	}
	var p historyPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ChannelID == "" {
		ctl.sendError(c, "bad history payload")
		return
	}
	// History is served only for the channel the connection is in.
	if p.ChannelID != c.ChannelID() {
		ctl.sendError(c, "cross-channel history forbidden")
		return
	}
	msgs := ctl.Hub.History(ctx, c, p.ChannelID, p.BeforeTs)
	ctl.sendJSON(c, struct {
		Type      string               `json:"type"`
		ChannelID domain.ChannelID     `json:"channelId"`
		Messages  []domain.ChatMessage `json:"messages"`
	}{"channel-history", p.ChannelID, msgs})
}
