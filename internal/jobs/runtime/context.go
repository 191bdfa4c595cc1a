package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// Enqueuer creates workflow runs for events. Implementations must be
// idempotent on the event's dedupe key.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev events.Event) (*types.WorkflowRun, bool, error)
}

// Context is the handle a pipeline gets for one claimed run. Pipelines never
// write workflow_run directly; every status change goes through here.
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Run    *types.WorkflowRun
	Repo   repos.WorkflowRunRepo
	Steps  repos.WorkflowStepRepo
	Events Enqueuer
	Log    *logger.Logger
}

func NewContext(ctx context.Context, db *gorm.DB, run *types.WorkflowRun, repo repos.WorkflowRunRepo, steps repos.WorkflowStepRepo, enq Enqueuer, log *logger.Logger) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = logger.Nop()
	}
	if run != nil {
		log = log.With("run_id", run.ID.String(), "pipeline", run.WorkflowType)
	}
	return &Context{Ctx: ctx, DB: db, Run: run, Repo: repo, Steps: steps, Events: enq, Log: log}
}

var (
	guardTerminal  = []string{jobs.RunSucceeded, jobs.RunFailed}
	guardSucceeded = []string{jobs.RunSucceeded}
	guardFailed    = []string{jobs.RunFailed}
)

// transition writes fields unless the stored run is in one of the guarded
// statuses, then mirrors the change onto c.Run through apply. It reports
// false when the guard blocked the write.
func (c *Context) transition(guard []string, fields map[string]interface{}, apply func(run *types.WorkflowRun, now time.Time)) bool {
	if c == nil {
		return false
	}
	now := time.Now()
	if c.Repo != nil && c.Run != nil && c.Run.ID != uuid.Nil {
		fields["updated_at"] = now
		ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Run.ID, guard, fields)
		if err != nil {
			c.Log.Warn("Run transition not persisted", "fields", len(fields), "error", err)
			return false
		}
		if !ok {
			return false
		}
	}
	if c.Run != nil {
		apply(c.Run, now)
		c.Run.UpdatedAt = now
	}
	return true
}

// Progress records a non-terminal stage and refreshes the heartbeat.
func (c *Context) Progress(stage string, pct int, msg string) {
	c.transition(guardTerminal, map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": time.Now(),
	}, func(r *types.WorkflowRun, now time.Time) {
		r.Stage, r.Progress, r.Message = stage, pct, msg
		r.HeartbeatAt = &now
	})
}

// Yield requeues the run until wait has passed. The journal is kept, so the
// next claim resumes at the first step that has not succeeded.
func (c *Context) Yield(stage string, wait time.Duration) {
	next := time.Now().Add(wait)
	c.transition(guardTerminal, map[string]interface{}{
		"status":       jobs.RunQueued,
		"stage":        stage,
		"next_run_at":  next,
		"locked_at":    nil,
		"heartbeat_at": time.Now(),
	}, func(r *types.WorkflowRun, now time.Time) {
		r.Status, r.Stage = jobs.RunQueued, stage
		r.NextRunAt = &next
		r.LockedAt = nil
		r.HeartbeatAt = &now
	})
}

// Fail ends the run as failed at stage. A succeeded run is left untouched.
func (c *Context) Fail(stage string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	ok := c.transition(guardSucceeded, map[string]interface{}{
		"status":        jobs.RunFailed,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": time.Now(),
		"locked_at":     nil,
		"next_run_at":   nil,
	}, func(r *types.WorkflowRun, now time.Time) {
		r.Status, r.Stage, r.Message, r.Error = jobs.RunFailed, stage, "", msg
		r.LastErrorAt = &now
		r.LockedAt, r.NextRunAt = nil, nil
	})
	if ok && c.Run != nil {
		observability.Current().IncRunFinished(c.Run.WorkflowType, jobs.RunFailed)
	}
}

// Succeed ends the run with result stored as JSON. A failed run stays failed.
func (c *Context) Succeed(finalStage string, result any) {
	res := datatypes.JSON("{}")
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		} else if c != nil {
			c.Log.Warn("Run result not serializable; storing {}", "error", err)
		}
	}
	ok := c.transition(guardFailed, map[string]interface{}{
		"status":       jobs.RunSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"next_run_at":  nil,
		"heartbeat_at": time.Now(),
	}, func(r *types.WorkflowRun, now time.Time) {
		r.Status, r.Stage, r.Progress = jobs.RunSucceeded, finalStage, 100
		r.Message, r.Error, r.Result = "", "", res
		r.LockedAt, r.NextRunAt = nil, nil
		r.HeartbeatAt = &now
	})
	if ok && c.Run != nil {
		observability.Current().IncRunFinished(c.Run.WorkflowType, jobs.RunSucceeded)
	}
}

// Enqueue emits a follow-on event owned by step. Its dedupe key is derived
// from (run, step, event name), so a retried step gets the existing run back.
func (c *Context) Enqueue(step, name string, data any) (*types.WorkflowRun, error) {
	if c == nil || c.Events == nil {
		return nil, errors.New("no event enqueuer configured")
	}
	ev, err := events.New(name, data)
	if err != nil {
		return nil, err
	}
	if c.Run != nil {
		parent := c.Run.ID
		ev.DedupeKey = events.FollowOnKey(parent, step, name)
		ev.ParentRunID = &parent
		ev.ParentStep = step
	}
	run, created, err := c.Events.Enqueue(c.Ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	if !created {
		c.Log.Debug("Follow-on event already enqueued", "event", name, "step", step, "child_run_id", run.ID.String())
	}
	return run, nil
}
