package signal

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/nchirkov/relay/internal/core"
)

// Message type discriminators accepted on the wire.
const (
	typeJoin    = "join"
	typeLeave   = "leave"
	typeChat    = "chat"
	typeHistory = "fetch-history"
	typePing    = "ping"
	typeWhoAmI  = "whoami"
)

// dispatch demultiplexes one inbound message by its declared type.
// Unknown types are logged and ignored for forward compatibility;
// unparseable bodies get a protocol error; handler panics are converted
// into a generic error so they never take the connection down.
func (ctl *Controller) dispatch(ctx context.Context, c *core.Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("module", "signal").Str("sid", string(c.SID)).Msg("handler panic")
			ctl.sendError(c, "unexpected server error")
		}
	}()

	if !gjson.ValidBytes(data) {
		ctl.sendError(c, "malformed message")
		return
	}
	typ := gjson.GetBytes(data, "type").String()
	if typ == "" {
		ctl.sendError(c, "missing message type")
		return
	}

	switch typ {
	case typePing:
		// Keep-alive is accepted in any state.
		ctl.handlePing(c, data)
	case typeWhoAmI:
		ctl.handleWhoAmI(c)
	case typeJoin:
		ctl.handleJoin(ctx, c, data)
	case typeChat, typeHistory, typeLeave,
		"offer", "answer", "ice-candidate",
		"cancelled", "rejected", "ended":
		if c.State() != core.StateMember {
			ctl.sendError(c, "join a channel first")
			return
		}
		ctl.dispatchMember(ctx, c, typ, data)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown message type")
	}
}

func (ctl *Controller) dispatchMember(ctx context.Context, c *core.Conn, typ string, data []byte) {
	switch typ {
	case typeChat:
		ctl.handleChat(ctx, c, data)
	case typeHistory:
		ctl.handleHistory(ctx, c, data)
	case typeLeave:
		ctl.handleLeave(c)
	case "offer", "answer", "ice-candidate":
		ctl.handleMediaSignal(c, typ, data)
	case "cancelled", "rejected", "ended":
		ctl.handleControlSignal(c, typ, data)
	}
}

// fail maps an app error onto the wire: an explicit error payload
// always goes out first; only the taxonomy decides whether the
// connection then closes (the caller owns that).
func (ctl *Controller) fail(c *core.Conn, err error) {
	var text string
	switch e := err.(type) {
	case *core.ProtocolError:
		text = e.Text
	case *core.AccessDenied:
		text = e.Reason
	case *core.AuthError:
		text = "invalid credential"
	case *core.ChannelUnavailable:
		text = e.Error()
	default:
		text = "unexpected server error"
	}
	ctl.sendError(c, text)
}
