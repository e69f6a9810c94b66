package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/akorh/huddle/internal/auth"
	"github.com/akorh/huddle/internal/config"
	"github.com/akorh/huddle/internal/domain"
	"github.com/akorh/huddle/internal/signal"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, verifier auth.Verifier, issuer auth.Issuer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Dev-only token mint so a local client can get through the gate
	// without the main app's login flow.
	if cfg.Mode == "debug" {
		api.POST("/token", func(c *gin.Context) {
			var req struct {
				Username string `json:"username" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
				return
			}
			id, err := domain.NewIdentity(uuid.NewString(), req.Username)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			token, err := issuer.Issue(id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token, "userId": id.UserID})
		})
	}

	authed := api.Group("", auth.Middleware(verifier))

	authed.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Coord.Channels())
	})

	authed.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
