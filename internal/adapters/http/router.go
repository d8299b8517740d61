package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/config"
	"github.com/dkeye/Dial/internal/domain"
)

const sessionName = "DialSessions"

type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type PresenceSource interface {
	Presence(ctx context.Context, ids ...domain.UserID) (map[domain.UserID]bool, error)
}

type Deps struct {
	Verifier TokenVerifier
	Presence PresenceSource
	Socket   gin.HandlerFunc
	Gatherer prometheus.Gatherer
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/api", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &handlers{verifier: deps.Verifier, presence: deps.Presence}

	api := r.Group("/api")
	api.POST("/ws/session", h.storeSession)
	api.DELETE("/ws/session", h.clearSession)

	authed := api.Group("", AuthMiddleware(deps.Verifier))
	authed.GET("/ws", deps.Socket)
	authed.GET("/presence", h.getPresence)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
