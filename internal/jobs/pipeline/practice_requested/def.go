package practice_requested

import (
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

const (
	stepLoadSession = "load-session"
	stepLoadStudent = "load-student"
	stepLoadMastery = "load-mastery"
	stepCalibrate   = "calibrate-difficulty"
	stepGenerate    = "generate-questions"
	stepPersist     = "persist-questions"
	defaultSubject  = "general"
	priorTopK       = 4
)

type Pipeline struct {
	log       *logger.Logger
	sessions  repos.SessionRepo
	students  repos.StudentRepo
	concepts  repos.ConceptRepo
	mastery   repos.MasteryRepo
	practices repos.PracticeRepo
	ai        llm.Gateway
	vec       vectorstore.Store
	engine    *orchestrator.Engine
	defs      *orchestrator.Definitions
}

func New(
	baseLog *logger.Logger,
	set repos.Set,
	ai llm.Gateway,
	vec vectorstore.Store,
	engine *orchestrator.Engine,
	defs *orchestrator.Definitions,
) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", events.PipelinePracticeRequested),
		sessions:  set.Sessions,
		students:  set.Students,
		concepts:  set.Concepts,
		mastery:   set.Mastery,
		practices: set.Practices,
		ai:        ai,
		vec:       vec,
		engine:    engine,
		defs:      defs,
	}
}

func (p *Pipeline) Type() string { return events.PipelinePracticeRequested }
