package engagement_sweep

import (
	"time"

	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	jobrt "github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/steps"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	// Evaluate every attempt against the moment the sweep was enqueued.
	now := jc.Run.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	pl, err := p.defs.Bind(p.Type(), map[string]orchestrator.StepFunc{
		stepScan: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return steps.ScanEngagement(jc.Ctx, steps.ScanEngagementDeps{
				Students: p.students,
				Sessions: p.sessions,
				Log:      jc.Log,
			}, steps.ScanEngagementInput{Now: now, Grace: p.grace})
		},
		stepGenerate: func(jc *jobrt.Context, st *orchestrator.State) (any, error) {
			var scan steps.ScanEngagementOutput
			if err := st.Decode(stepScan, &scan); err != nil {
				return nil, err
			}
			return steps.GenerateNudges(jc.Ctx, steps.GenerateNudgesDeps{LLM: p.ai, Log: jc.Log}, steps.GenerateNudgesInput{
				Candidates: scan.Candidates,
				Now:        now,
			})
		},
		stepPersist: p.persist,
	})
	if err != nil {
		jc.Fail("validate", orchestrator.Permanent(err))
		return nil
	}
	pl.Result = func(st *orchestrator.State) any {
		var scan steps.ScanEngagementOutput
		var gen steps.GenerateNudgesOutput
		var out steps.PersistNudgesOutput
		_ = st.Decode(stepScan, &scan)
		_ = st.Decode(stepGenerate, &gen)
		_ = st.Decode(stepPersist, &out)
		return map[string]any{
			"scanned":    scan.Scanned,
			"candidates": len(scan.Candidates),
			"nudges":     out.Inserted,
			"skipped":    gen.Failed,
		}
	}
	return p.engine.Run(jc, pl)
}

func (p *Pipeline) persist(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var gen steps.GenerateNudgesOutput
	if err := st.Decode(stepGenerate, &gen); err != nil {
		return nil, err
	}
	out, err := steps.PersistNudges(jc.Ctx, steps.PersistNudgesDeps{Notifications: p.notifications}, steps.PersistNudgesInput{
		RunID:  jc.Run.ID,
		Nudges: gen.Nudges,
	})
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < out.Inserted; i++ {
		observability.Current().IncNudgeCreated()
	}
	if out.Inserted > 0 {
		jc.Log.Info("Engagement nudges created", "count", out.Inserted)
	}
	return out, nil
}
