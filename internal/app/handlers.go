package app

import (
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/http"
	httpH "github.com/andychuong/ai-study-companion-sub000/internal/http/handlers"
	httpMW "github.com/andychuong/ai-study-companion-sub000/internal/http/middleware"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Event  *httpH.EventHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Event:  httpH.NewEventHandler(svc.Events, svc.Sweeps),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:           log,
		ServiceName:   cfg.ServiceName,
		Metrics:       metrics,
		Auth:          httpMW.NewInternalAuth(log, cfg.InternalToken),
		EventHandler:  handlers.Event,
		HealthHandler: handlers.Health,
	})
}
