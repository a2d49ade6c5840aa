package app

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// Signal message families. Media negotiation carries SDP/ICE metadata;
// call control carries no body beyond the target.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"

	SignalCancelled = "cancelled"
	SignalRejected  = "rejected"
	SignalEnded     = "ended"
)

// SignalMessage is the parsed inbound shape shared by both families.
type SignalMessage struct {
	Type      string
	ChannelID domain.ChannelID // optional explicit channel
	TargetID  domain.UserID
	SDP       string
	Candidate *webrtc.ICECandidateInit
}

// Relay routes point-to-point signals between members of one channel,
// buffering for targets that are members but momentarily unreachable.
type Relay struct {
	Registry *Registry
	Buffer   *SignalBuffer
}

// RelayMedia forwards offer/answer/ice-candidate. The sender must hold
// a channel role; observers may answer but not initiate. An absent
// target is buffered silently: during a reconnect race a delayed
// delivery beats a false failure.
func (r *Relay) RelayMedia(sender *core.Conn, msg SignalMessage) error {
	ch, err := r.effectiveChannel(sender, msg)
	if err != nil {
		return err
	}
	role := sender.Role()
	if role == "" {
		return &core.ProtocolError{Text: "no channel role assigned"}
	}
	if role == domain.RoleObserver && msg.Type == SignalOffer {
		return &core.ProtocolError{Text: "observers cannot initiate calls"}
	}
	payload := r.forwardPayload(sender, ch, msg)
	if target := r.Registry.FindReachable(ch, msg.TargetID); target != nil {
		if err := target.Sig.TrySend(payload); err == nil {
			return nil
		}
	}
	r.Buffer.Enqueue(ch, msg.TargetID, payload)
	return nil
}

// RelayControl forwards cancelled/rejected/ended. Only an authenticated
// user id is required. An absent target is still buffered, but the
// sender is told the target is unreachable.
func (r *Relay) RelayControl(sender *core.Conn, msg SignalMessage) error {
	ch, err := r.effectiveChannel(sender, msg)
	if err != nil {
		return err
	}
	if sender.UserID() == "" {
		return &core.ProtocolError{Text: "not authenticated"}
	}
	payload := r.forwardPayload(sender, ch, msg)
	if target := r.Registry.FindReachable(ch, msg.TargetID); target != nil {
		if err := target.Sig.TrySend(payload); err == nil {
			return nil
		}
	}
	r.Buffer.Enqueue(ch, msg.TargetID, payload)
	return core.ErrTargetUnreachable
}

// FlushTo delivers every buffered, non-expired signal addressed to the
// freshly joined connection, in original enqueue order.
func (r *Relay) FlushTo(c *core.Conn) {
	ch, uid := c.ChannelID(), c.UserID()
	if ch == "" || uid == "" {
		return
	}
	r.Buffer.Flush(ch, uid, func(payload core.Frame) bool {
		if !c.Sig.IsOpen() {
			return false
		}
		return c.Sig.TrySend(payload) == nil
	})
}

func (r *Relay) effectiveChannel(sender *core.Conn, msg SignalMessage) (domain.ChannelID, error) {
	ch := msg.ChannelID
	own := sender.ChannelID()
	if ch == "" {
		ch = own
	}
	if ch == "" {
		return "", &core.ProtocolError{Text: "no channel for signal"}
	}
	if own != "" && own != ch {
		return "", &core.ProtocolError{Text: "cross-channel signaling forbidden"}
	}
	if msg.TargetID == "" {
		return "", &core.ProtocolError{Text: "missing target user id"}
	}
	return ch, nil
}

func (r *Relay) forwardPayload(sender *core.Conn, ch domain.ChannelID, msg SignalMessage) core.Frame {
	fw := struct {
		Type      string                   `json:"type"`
		ChannelID domain.ChannelID         `json:"channelId"`
		From      domain.UserID            `json:"from"`
		SenderID  domain.UserID            `json:"senderId"`
		TargetID  domain.UserID            `json:"targetUserId"`
		Username  string                   `json:"username"`
		SDP       string                   `json:"sdp,omitempty"`
		Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	}{
		Type:      msg.Type,
		ChannelID: ch,
		// from and senderId carry the same value for client compatibility.
		From:      sender.UserID(),
		SenderID:  sender.UserID(),
		TargetID:  msg.TargetID,
		Username:  sender.Username(),
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	}
	return marshalFrame(fw)
}

// marshalFrame encodes an outbound payload; a marshal failure here is a
// programming error and yields an empty frame plus an error log.
func marshalFrame(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app").Msg("marshal outbound frame")
		return nil
	}
	return b
}
