package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/ctxutil"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// Dispatcher hands a freshly created run to an external executor. Dispatch
// must be idempotent on run.ID.
type Dispatcher interface {
	Dispatch(ctx context.Context, run *types.WorkflowRun) error
}

// RunView is a run together with its step journal.
type RunView struct {
	Run   *types.WorkflowRun    `json:"run"`
	Steps []*types.WorkflowStep `json:"steps"`
}

type EventService interface {
	Enqueue(ctx context.Context, ev events.Event) (*types.WorkflowRun, bool, error)
	GetRun(ctx context.Context, id uuid.UUID) (*RunView, error)
}

var ErrRunNotFound = errors.New("workflow run not found")

// stageDispatch marks a queued run whose dispatch failed.
const stageDispatch = "dispatch"

type eventService struct {
	db         *gorm.DB
	log        *logger.Logger
	runs       repos.WorkflowRunRepo
	steps      repos.WorkflowStepRepo
	dispatcher Dispatcher
}

// NewEventService returns the event ingress service. dispatcher may be nil,
// in which case runs are picked up by the poll worker.
func NewEventService(db *gorm.DB, baseLog *logger.Logger, runs repos.WorkflowRunRepo, steps repos.WorkflowStepRepo, dispatcher Dispatcher) EventService {
	return &eventService{
		db:         db,
		log:        baseLog.With("service", "EventService"),
		runs:       runs,
		steps:      steps,
		dispatcher: dispatcher,
	}
}

/*
Enqueue validates ev and creates the workflow run for it.
  - The dedupe key comes from events.Key, so redelivering the same event
    returns the existing run with created=false.
  - New runs are dispatched. A redelivery dispatches again only when the
    earlier dispatch failed.
  - A dispatch failure leaves the run queued with the error recorded, so the
    producer's redelivery dispatches it again.
*/
func (s *eventService) Enqueue(ctx context.Context, ev events.Event) (*types.WorkflowRun, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pipeline, ok := events.PipelineFor(ev.Name)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", events.ErrUnknownEvent, ev.Name)
	}
	subject, err := events.Validate(ev)
	if err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	run := &types.WorkflowRun{
		ID:           uuid.New(),
		WorkflowType: pipeline,
		DedupeKey:    events.Key(ev),
		EventName:    strings.TrimSpace(ev.Name),
		EntityType:   subject.EntityType,
		EntityID:     subject.EntityID,
		StudentID:    subject.StudentID,
		Status:       jobs.RunQueued,
		Stage:        jobs.RunQueued,
		Message:      "Queued",
		Payload:      datatypes.JSON(ev.Data),
		Result:       datatypes.JSON([]byte(`{}`)),
		ParentRunID:  ev.ParentRunID,
		ParentStep:   ev.ParentStep,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	got, created, err := s.runs.CreateOrGet(dbctx.Context{Ctx: ctx, Tx: s.db}, run)
	if err != nil {
		return nil, false, fmt.Errorf("create workflow run: %w", err)
	}
	observability.Current().IncEventEnqueued(run.EventName, created)

	fields := []interface{}{"event", run.EventName, "run_id", got.ID, "dedupe_key", got.DedupeKey, "created", created}
	fields = append(fields, ctxutil.GetTraceData(ctx).LogFields()...)
	s.log.Info("Event enqueued", fields...)

	if s.dispatcher == nil || !(created || awaitingDispatch(got)) {
		return got, created, nil
	}
	if err := s.dispatcher.Dispatch(ctx, got); err != nil {
		s.log.Error("Workflow run dispatch failed", "run_id", got.ID, "workflow_type", got.WorkflowType, "created", created, "error", err)
		failedAt := time.Now().UTC()
		if uerr := s.runs.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, got.ID, map[string]interface{}{
			"stage":         stageDispatch,
			"message":       "Dispatch failed; waiting for redelivery",
			"error":         err.Error(),
			"last_error_at": failedAt,
		}); uerr != nil {
			s.log.Warn("Dispatch failure not recorded", "run_id", got.ID, "error", uerr)
		}
		return got, created, fmt.Errorf("dispatch workflow run: %w", err)
	}
	if !created {
		s.log.Info("Workflow run re-dispatched", "run_id", got.ID)
		if _, uerr := s.runs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx, Tx: s.db}, got.ID, []string{jobs.RunRunning, jobs.RunSucceeded, jobs.RunFailed}, map[string]interface{}{
			"stage":   jobs.RunQueued,
			"message": "Queued",
		}); uerr != nil {
			s.log.Warn("Dispatch recovery not recorded", "run_id", got.ID, "error", uerr)
		}
	}
	return got, created, nil
}

// awaitingDispatch reports a queued run whose last dispatch attempt failed.
func awaitingDispatch(run *types.WorkflowRun) bool {
	return run.Status == jobs.RunQueued && run.Stage == stageDispatch
}

func (s *eventService) GetRun(ctx context.Context, id uuid.UUID) (*RunView, error) {
	dbc := dbctx.Context{Ctx: ctx, Tx: s.db}
	run, err := s.runs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	steps, err := s.steps.ListByRun(dbc, id)
	if err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []*types.WorkflowStep{}
	}
	return &RunView{Run: run, Steps: steps}, nil
}
