// Package signal is the websocket adapter: it owns the transport
// resources and the inbound message dispatcher, and translates between
// wire payloads and the app core.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/app"
	"github.com/nchirkov/relay/internal/config"
	"github.com/nchirkov/relay/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const closeGrace = time.Second

// Controller serves websocket signaling sessions on top of the hub.
type Controller struct {
	Hub *app.Hub
	Cfg *config.Config
}

func NewController(hub *app.Hub, cfg *config.Config) *Controller {
	return &Controller{Hub: hub, Cfg: cfg}
}

// wsConn adapts one gorilla connection to core.SignalConnection.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CloseWithReason pushes a close frame carrying the code and reason,
// then tears the transport down. WriteControl is safe to call
// concurrently with the write pump.
func (c *wsConn) CloseWithReason(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	c.Close()
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the connection until the
// transport drops. The connection starts unauthenticated; everything
// else happens through the dispatcher.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	wsc := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	conn := core.NewConn(sid, wsc)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, wsc)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn, wsc)
		ctl.Hub.Teardown(conn)
		wsc.Close()
	}()
}

func (ctl *Controller) sendJSON(c *core.Conn, v any) {
	payload := marshal(v)
	if payload == nil {
		return
	}
	if err := c.Sig.TrySend(payload); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(c.SID)).Msg("send dropped")
	}
}

func (ctl *Controller) sendError(c *core.Conn, text string) {
	_ = c.Sig.TrySend(app.ErrorFrame(text))
}
