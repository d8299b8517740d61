package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/domain"
)

const maxPresenceIDs = 100

type SessionRequest struct {
	Token string `json:"token" binding:"required"`
}

type PresenceResponse struct {
	Presence map[domain.UserID]string `json:"presence"`
}

type handlers struct {
	verifier TokenVerifier
	presence PresenceSource
}

func (h *handlers) storeSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid token"})
		return
	}
	ident, err := h.verifier.Verify(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionTokenKey, req.Token)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": ident.ID, "expireAt": ident.ExpireAt})
}

func (h *handlers) clearSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Delete(sessionTokenKey)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("clear session")
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) getPresence(c *gin.Context) {
	raw := c.QueryArray("id")
	if len(raw) == 0 || len(raw) > maxPresenceIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected 1 to 100 ids"})
		return
	}
	ids := make([]domain.UserID, 0, len(raw))
	for _, s := range raw {
		id := domain.UserID(s)
		if err := id.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ids = append(ids, id)
	}

	online, err := h.presence.Presence(c.Request.Context(), ids...)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("presence")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}
	resp := PresenceResponse{Presence: make(map[domain.UserID]string, len(ids))}
	for _, id := range ids {
		if online[id] {
			resp.Presence[id] = "online"
		} else {
			resp.Presence[id] = "offline"
		}
	}
	c.JSON(http.StatusOK, resp)
}
