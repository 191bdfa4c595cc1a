package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// InternalAuth guards the internal API with a shared bearer token. An empty
// token leaves the API open, which is only meant for local runs.
type InternalAuth struct {
	log   *logger.Logger
	token string
}

func NewInternalAuth(log *logger.Logger, token string) *InternalAuth {
	am := &InternalAuth{log: log.With("middleware", "InternalAuth"), token: strings.TrimSpace(token)}
	if am.token == "" {
		am.log.Warn("INTERNAL_API_TOKEN not set; internal API is unauthenticated")
	}
	return am
}

func (am *InternalAuth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.token == "" {
			c.Next()
			return
		}
		got := extractBearer(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(am.token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
