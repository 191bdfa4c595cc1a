package goal_created

import (
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

const (
	stepLoadGoal     = "load-goal"
	stepLoadStudent  = "load-student"
	stepLoadSiblings = "load-sibling-goals"
	stepGenerate     = "generate-study-suggestions"
	stepPersist      = "persist-suggestions"
)

type Pipeline struct {
	log         *logger.Logger
	goals       repos.GoalRepo
	students    repos.StudentRepo
	suggestions repos.SuggestionRepo
	ai          llm.Generator
	engine      *orchestrator.Engine
	defs        *orchestrator.Definitions
}

func New(
	baseLog *logger.Logger,
	set repos.Set,
	ai llm.Generator,
	engine *orchestrator.Engine,
	defs *orchestrator.Definitions,
) *Pipeline {
	return &Pipeline{
		log:         baseLog.With("job", events.PipelineGoalCreated),
		goals:       set.Goals,
		students:    set.Students,
		suggestions: set.Suggestions,
		ai:          ai,
		engine:      engine,
		defs:        defs,
	}
}

func (p *Pipeline) Type() string { return events.PipelineGoalCreated }
