package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/andychuong/ai-study-companion-sub000/internal/http/handlers"
	httpMW "github.com/andychuong/ai-study-companion-sub000/internal/http/middleware"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type RouterConfig struct {
	Log           *logger.Logger
	ServiceName   string
	Metrics       *observability.Metrics
	Auth          *httpMW.InternalAuth
	EventHandler  *httpH.EventHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	internal := r.Group("/internal")
	if cfg.Auth != nil {
		internal.Use(cfg.Auth.Require())
	}
	if cfg.EventHandler != nil {
		internal.POST("/events/:name", cfg.EventHandler.Ingest)
		internal.GET("/runs/:id", cfg.EventHandler.GetRun)
		internal.POST("/sweeps/engagement", cfg.EventHandler.TriggerSweep)
	}

	return r
}
