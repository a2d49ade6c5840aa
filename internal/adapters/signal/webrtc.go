package signal

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/nchirkov/relay/internal/app"
	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// signalPayload is the inbound shape shared by media-negotiation and
// call-control messages. SDP and candidate ride along for media only.
type signalPayload struct {
	Type      string                   `json:"type"`
	ChannelID domain.ChannelID         `json:"channelId,omitempty"`
	TargetID  domain.UserID            `json:"targetUserId"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func parseSignal(typ string, data []byte) (app.SignalMessage, error) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return app.SignalMessage{}, &core.ProtocolError{Text: "bad signal payload"}
	}
	return app.SignalMessage{
		Type:      typ,
		ChannelID: p.ChannelID,
		TargetID:  p.TargetID,
		SDP:       p.SDP,
		Candidate: p.Candidate,
	}, nil
}

func (ctl *Controller) handleMediaSignal(c *core.Conn, typ string, data []byte) {
	msg, err := parseSignal(typ, data)
	if err != nil {
		ctl.fail(c, err)
		return
	}
	if err := ctl.Hub.Relay.RelayMedia(c, msg); err != nil {
		ctl.fail(c, err)
	}
}

func (ctl *Controller) handleControlSignal(c *core.Conn, typ string, data []byte) {
	msg, err := parseSignal(typ, data)
	if err != nil {
		ctl.fail(c, err)
		return
	}
	if err := ctl.Hub.Relay.RelayControl(c, msg); err != nil {
		if errors.Is(err, core.ErrTargetUnreachable) {
			ctl.sendError(c, "target unreachable")
			return
		}
		ctl.fail(c, err)
	}
}
