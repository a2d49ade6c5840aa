// Package http wires the gin router: the websocket endpoint, the
// channel-list API and, in debug mode, operator endpoints for policies
// and tokens.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/adapters/auth"
	"github.com/nchirkov/relay/internal/adapters/signal"
	"github.com/nchirkov/relay/internal/adapters/store"
	"github.com/nchirkov/relay/internal/app"
	"github.com/nchirkov/relay/internal/config"
	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// ClientTokenMiddleware tags every visitor with a stable session id
// used for logging and connection identity; it is not a credential.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Hub      *app.Hub
	Verifier *auth.JWTVerifier
	Policies *store.PolicyStore
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewController(deps.Hub, cfg)

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleWS(ctx, c)
	})
	api.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": deps.Hub.Registry.Channels()})
	})

	if cfg.Mode == "debug" {
		registerDebugRoutes(api, deps)
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

// registerDebugRoutes exposes the collaborator stores for local
// development: minting tokens and editing channel policies without a
// real identity provider or policy service.
func registerDebugRoutes(api *gin.RouterGroup, deps Deps) {
	api.POST("/token", func(c *gin.Context) {
		var req struct {
			UserID   string `json:"userId" binding:"required"`
			Username string `json:"username"`
			Admin    bool   `json:"admin"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
			return
		}
		token, err := deps.Verifier.Sign(core.Identity{
			UserID:      domain.UserID(req.UserID),
			Username:    req.Username,
			GlobalAdmin: req.Admin,
		}, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})

	api.PUT("/channels/:id/policy", func(c *gin.Context) {
		var pol domain.ChannelPolicy
		if err := c.ShouldBindJSON(&pol); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad policy"})
			return
		}
		pol.ID = domain.ChannelID(c.Param("id"))
		deps.Policies.Put(&pol)
		c.JSON(http.StatusOK, gin.H{"channelId": pol.ID})
	})

	api.DELETE("/channels/:id/policy", func(c *gin.Context) {
		deps.Policies.Delete(domain.ChannelID(c.Param("id")))
		c.Status(http.StatusNoContent)
	})
}
