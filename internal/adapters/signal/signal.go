package signal

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Dial/internal/adapters/ws"
	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/dkeye/Dial/internal/metrics"
)

// Context keys filled by the auth middleware.
const (
	IdentityKey    = "identity"
	ClientTokenKey = "client_token"
)

// Gateway is the part of app.Gateway the upgrade handler needs.
type Gateway interface {
	Attach(ctx context.Context, a app.Attachment) error
	CheckRoomAccess(ctx context.Context, room domain.RoomID, user domain.UserID) error
}

type SignalWSController struct {
	ctx     context.Context
	gateway Gateway
	poster  core.Poster
	limiter *UpgradeRateLimiter
	opts    ws.Options

	upgrader websocket.Upgrader
	wg       conc.WaitGroup
}

// NewSignalWSController builds the upgrade handler. Connections live until
// ctx is cancelled or they close on their own.
func NewSignalWSController(ctx context.Context, gateway Gateway, poster core.Poster, limiter *UpgradeRateLimiter, opts ws.Options) *SignalWSController {
	return &SignalWSController{
		ctx:     ctx,
		gateway: gateway,
		poster:  poster,
		limiter: limiter,
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (ctl *SignalWSController) HandleSocket(c *gin.Context) {
	identity, ok := c.Get(IdentityKey)
	ident, _ := identity.(domain.Identity)
	if !ok || ident.ID == "" {
		reject(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	token := c.GetString(ClientTokenKey)
	room := domain.RoomID(c.Query("room"))

	if !ctl.limiter.Allow(ident.ID) {
		log.Warn().Str("module", "signal").Str("user", string(ident.ID)).Msg("upgrade rate limited")
		reject(c, http.StatusTooManyRequests, "rate_limited")
		return
	}

	if room != "" {
		if err := ctl.gateway.CheckRoomAccess(c.Request.Context(), room, ident.ID); err != nil {
			switch {
			case errors.Is(err, app.ErrRoomNotFound):
				reject(c, http.StatusNotFound, "room_not_found")
			case errors.Is(err, app.ErrRoomForbidden):
				reject(c, http.StatusForbidden, "room_forbidden")
			default:
				log.Error().Err(err).Str("module", "signal").Msg("room lookup")
				reject(c, http.StatusServiceUnavailable, "unavailable")
			}
			return
		}
	}

	raw, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.UpgradesRejected.WithLabelValues("upgrade_failed").Inc()
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := ws.NewConn(raw, ctl.poster, ctl.opts)
	err = ctl.gateway.Attach(c.Request.Context(), app.Attachment{
		Identity:  ident,
		Token:     token,
		Room:      room,
		Transport: conn,
		URL:       c.Request.URL.String(),
	})
	if err != nil {
		code := core.CloseInternalError
		if errors.IsAny(err, app.ErrRoomNotFound, app.ErrRoomForbidden, app.ErrClientNotFound, core.ErrClientOffline) {
			code = core.ClosePolicyViolation
		}
		metrics.UpgradesRejected.WithLabelValues("attach_failed").Inc()
		log.Warn().Err(err).Str("module", "signal").Str("user", string(ident.ID)).Str("room", string(room)).Msg("attach failed")
		conn.Close(code, "attach failed")
	}

	ctl.wg.Go(func() {
		conn.Start(ctl.ctx)
		conn.Wait()
	})
}

// Wait blocks until every connection handed out by HandleSocket is gone.
func (ctl *SignalWSController) Wait() {
	ctl.wg.Wait()
}

func reject(c *gin.Context, status int, reason string) {
	metrics.UpgradesRejected.WithLabelValues(reason).Inc()
	c.AbortWithStatusJSON(status, gin.H{"error": reason})
}
