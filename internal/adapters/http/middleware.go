package http

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/adapters/signal"
)

const sessionTokenKey = "token"

// AuthMiddleware resolves the credential from the token query parameter,
// the bearer header or the cookie session, in that order.
func AuthMiddleware(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credential(c)
		ident, err := v.Verify(token)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(signal.IdentityKey, ident)
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

func credential(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if token, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return token
	}
	return ""
}
