package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/ctxutil"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

const runTagKey = "sc.workflow_run"

// RunTag is what an ingress handler records about the run it touched.
type RunTag struct {
	ID           uuid.UUID
	WorkflowType string
	Status       string
	Created      bool
}

// TagRun attaches the enqueued or fetched run to the request log line.
func TagRun(c *gin.Context, tag RunTag) {
	c.Set(runTagKey, tag)
}

// EventName returns the ingress route's event name when it is a known event.
// Unknown names are dropped to keep label cardinality bounded.
func EventName(c *gin.Context) string {
	if name := c.Param("name"); events.Known(name) {
		return name
	}
	return ""
}

// quietRoutes log at debug level.
var quietRoutes = map[string]bool{"/healthz": true, "/metrics": true}

// RequestLogger writes one line per request with trace ids, the event name and
// the workflow run the handler tagged.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		kv := []any{"method", c.Request.Method, "route", route, "status", status, "latency_ms", time.Since(start).Milliseconds()}
		if ev := EventName(c); ev != "" {
			kv = append(kv, "event", ev)
		}
		if v, ok := c.Get(runTagKey); ok {
			if tag, ok := v.(RunTag); ok {
				kv = append(kv, "run_id", tag.ID, "workflow_type", tag.WorkflowType, "run_status", tag.Status, "run_created", tag.Created)
			}
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}
		kv = append(kv, ctxutil.GetTraceData(c.Request.Context()).LogFields()...)

		switch {
		case quietRoutes[route]:
			log.Debug("Ingress request", kv...)
		case status >= 500:
			log.Error("Ingress request", kv...)
		case status >= 400:
			log.Warn("Ingress request", kv...)
		default:
			log.Info("Ingress request", kv...)
		}
	}
}

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
