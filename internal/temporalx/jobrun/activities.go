package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// Executor runs one claimed workflow run against the handler registry.
type Executor interface {
	Execute(ctx context.Context, run *types.WorkflowRun)
	StaleAfter() time.Duration
}

type Activities struct {
	Log      *logger.Logger
	Runs     repos.WorkflowRunRepo
	Executor Executor
	// HeartbeatEvery defaults to 10s.
	HeartbeatEvery time.Duration
}

// Tick claims the run when it is due and executes it once. A run that is not
// due, or is held by another executor, is reported as is.
func (a *Activities) Tick(ctx context.Context, runID string) (TickResult, error) {
	res := TickResult{RunID: strings.TrimSpace(runID)}
	if a == nil || a.Runs == nil || a.Executor == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.RunID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid run id %q", runID)
	}

	run, claimed, err := a.Runs.ClaimByID(dbctx.Context{Ctx: ctx}, id, a.Executor.StaleAfter())
	if err != nil {
		return res, err
	}
	if run == nil {
		return res, fmt.Errorf("jobrun: run %s not found", id)
	}
	res.Claimed = claimed
	if !claimed {
		return fill(res, run), nil
	}

	stop := a.startHeartbeat(ctx, run)
	a.Executor.Execute(ctx, run)
	stop()

	updated, err := a.Runs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: run %s not found after tick", id)
	}
	if a.Log != nil {
		a.Log.Debug("Workflow run ticked", "run_id", id, "status", updated.Status, "stage", updated.Stage)
	}
	return fill(res, updated), nil
}

func fill(res TickResult, run *types.WorkflowRun) TickResult {
	res.Status = run.Status
	res.Stage = run.Stage
	res.NextRunAt = run.NextRunAt
	return res
}

// startHeartbeat reports the run's current stage until the returned stop is
// called, so a dead worker's tick is retried elsewhere.
func (a *Activities) startHeartbeat(ctx context.Context, run *types.WorkflowRun) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, run.ID.String())
			}
		}
	}()
	return func() { close(done) }
}
