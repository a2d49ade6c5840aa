package signal

import (
	"encoding/json"
	"time"

	"github.com/nchirkov/relay/internal/core"
)

// handlePing echoes the client timestamp plus a server one. No state
// requirements and no side effects.
func (ctl *Controller) handlePing(c *core.Conn, data []byte) {
	type pingPayload struct {
		Type     string `json:"type"`
		ClientTs int64  `json:"clientTs"`
	}
	var p pingPayload
	_ = json.Unmarshal(data, &p)

	ctl.sendJSON(c, struct {
		Type     string `json:"type"`
		ClientTs int64  `json:"clientTs"`
		ServerTs int64  `json:"serverTs"`
	}{"pong", p.ClientTs, time.Now().UnixMilli()})
}
