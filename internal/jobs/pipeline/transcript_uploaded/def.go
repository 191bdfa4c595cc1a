package transcript_uploaded

import (
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/neo4jdb"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/objectstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
)

const (
	stepExtractInsights = "extract-insights"
	stepChunkAndEmbed   = "chunk-and-embed"
	stepStoreVectors    = "store-vectors"
	stepPersistAnalysis = "persist-session-analysis"
	stepReconcile       = "reconcile-mastery"
	stepEnqueuePractice = "enqueue-practice"
	stepCompleteSession = "complete-session"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	sessions   repos.SessionRepo
	concepts   repos.ConceptRepo
	mastery    repos.MasteryRepo
	practices  repos.PracticeRepo
	ai         llm.Gateway
	vec        vectorstore.Store
	loader     *objectstore.Loader
	graph      neo4jdb.MasteryMirror
	engine     *orchestrator.Engine
	defs       *orchestrator.Definitions
	chunkWords int
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	set repos.Set,
	ai llm.Gateway,
	vec vectorstore.Store,
	loader *objectstore.Loader,
	graph neo4jdb.MasteryMirror,
	engine *orchestrator.Engine,
	defs *orchestrator.Definitions,
	chunkWords int,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", events.PipelineTranscriptUploaded),
		sessions:   set.Sessions,
		concepts:   set.Concepts,
		mastery:    set.Mastery,
		practices:  set.Practices,
		ai:         ai,
		vec:        vec,
		loader:     loader,
		graph:      graph,
		engine:     engine,
		defs:       defs,
		chunkWords: chunkWords,
	}
}

func (p *Pipeline) Type() string { return events.PipelineTranscriptUploaded }
