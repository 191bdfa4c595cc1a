package engagement_sweep

import (
	"time"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

const (
	stepScan     = "scan-students"
	stepGenerate = "generate-nudges"
	stepPersist  = "persist-notifications"
)

type Pipeline struct {
	log           *logger.Logger
	students      repos.StudentRepo
	sessions      repos.SessionRepo
	notifications repos.NotificationRepo
	ai            llm.Generator
	engine        *orchestrator.Engine
	defs          *orchestrator.Definitions
	// grace matches the sweep interval so a window that closes between two
	// sweeps is still seen by exactly one of them.
	grace time.Duration
}

func New(
	baseLog *logger.Logger,
	set repos.Set,
	ai llm.Generator,
	engine *orchestrator.Engine,
	defs *orchestrator.Definitions,
	sweepInterval time.Duration,
) *Pipeline {
	return &Pipeline{
		log:           baseLog.With("job", events.PipelineEngagementSweep),
		students:      set.Students,
		sessions:      set.Sessions,
		notifications: set.Notifications,
		ai:            ai,
		engine:        engine,
		defs:          defs,
		grace:         sweepInterval,
	}
}

func (p *Pipeline) Type() string { return events.PipelineEngagementSweep }
