package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/adapters/control"
	"github.com/okhramov/glimpse/internal/app"
	"github.com/okhramov/glimpse/internal/config"
	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the helper's local surface: the control websocket, the
// transport-port lookup and the pending-session endpoint.
func SetupRouter(ctx context.Context, cfg *config.Config, reg *app.Registry, ctl *control.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GlimpseSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// GET /api/port — the signaling transport port, the control flow's
	// GetPort request/response.
	api.GET("/port", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"port": cfg.SignalingPort})
	})

	// POST /api/sessions/pending — get or create the session awaiting its
	// first connection. Optional body: {"roomID": "..."}.
	api.POST("/sessions/pending", func(c *gin.Context) {
		var req struct {
			RoomID string `json:"roomID"`
		}
		// Body is optional; a missing one means "allocate a room id".
		_ = c.ShouldBindJSON(&req)

		waitCtx, cancel := context.WithTimeout(c.Request.Context(), cfg.CreateWait)
		defer cancel()

		sess, err := reg.GetOrCreatePendingSession(waitCtx, domain.RoomID(req.RoomID))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, core.ErrSlotUnavailable) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     sess.ID(),
			"roomID": sess.RoomID(),
			"status": sess.Status().String(),
		})
	})

	// GET /api/sessions/:id — session status for the host UI.
	api.GET("/sessions/:id", func(c *gin.Context) {
		sess, ok := reg.GetSession(domain.SessionID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		resp := gin.H{
			"id":     sess.ID(),
			"roomID": sess.RoomID(),
			"status": sess.Status().String(),
		}
		if d := sess.Device(); d != nil {
			resp["device"] = d
		}
		c.JSON(http.StatusOK, resp)
	})

	r.GET("/ws/control", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("control endpoint hit")
		ctl.HandleControl(ctx, c)
	})

	return r
}
