package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/engagement_sweep"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/goal_completed"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/goal_created"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/practice_requested"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/transcript_uploaded"
	jobrt "github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/worker"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/services"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx/temporalworker"
)

type Services struct {
	Events    services.EventService
	Registry  *jobrt.Registry
	JobWorker *worker.Worker
	Sweeps    *services.SweepScheduler
	// Temporal is nil unless TEMPORAL_ADDRESS is set; the poll worker is
	// then left stopped.
	Temporal *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, set repos.Set, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	var dispatcher services.Dispatcher
	if clients.Temporal != nil {
		d, err := temporalx.NewDispatcher(log, clients.Temporal, cfg.Temporal)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal dispatcher: %w", err)
		}
		dispatcher = d
	}
	events := services.NewEventService(db, log, set.Runs, set.Steps, dispatcher)

	engine := orchestrator.NewEngine(log)
	defs := orchestrator.Load(log, cfg.PipelinesYAML)
	registry := jobrt.NewRegistry()
	handlers := []jobrt.Handler{
		transcript_uploaded.New(db, log, set, clients.LLM, clients.Vector, clients.Transcripts, clients.Graph, engine, defs, cfg.ChunkWords),
		practice_requested.New(log, set, clients.LLM, clients.Vector, engine, defs),
		goal_created.New(log, set, clients.LLM, engine, defs),
		goal_completed.New(log, set, clients.LLM, engine, defs),
		engagement_sweep.New(log, set, clients.LLM, engine, defs, cfg.SweepInterval),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register %s: %w", h.Type(), err)
		}
	}

	jobWorker := worker.NewWorker(db, log, set.Runs, set.Steps, registry, events, cfg.Worker)

	out := Services{
		Events:    events,
		Registry:  registry,
		JobWorker: jobWorker,
		Sweeps:    services.NewSweepScheduler(log, events, clients.Lease, cfg.SweepInterval),
	}
	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, clients.Temporal, cfg.Temporal, set.Runs, jobWorker)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.Temporal = runner
	}
	return out, nil
}
