package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
)

// Metrics counts requests per route, event and status. Unmatched paths share
// one label.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		m.ObserveAPI(c.Request.Method, routeOf(c), EventName(c), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
