package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

type recordingDispatcher struct {
	calls []uuid.UUID
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, run *types.WorkflowRun) error {
	d.calls = append(d.calls, run.ID)
	return d.err
}

func newEventService(t *testing.T, d Dispatcher) (EventService, repos.Set) {
	t.Helper()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	return NewEventService(db, testutil.Logger(t), set.Runs, set.Steps, d), set
}

func transcriptEvent(t *testing.T, id string) events.Event {
	t.Helper()
	ev, err := events.New(events.TranscriptUploaded, events.TranscriptUploadedData{
		SessionID:  uuid.MustParse("0b8c4b1e-6a55-4a0e-9d55-1f0b6c1f3a01"),
		StudentID:  uuid.MustParse("6f2d0d53-27c4-4a35-9a73-5b9f1f7e2b02"),
		Transcript: "We covered fractions.",
	})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	ev.ID = id
	return ev
}

func TestEnqueueIsIdempotentOnDedupeKey(t *testing.T) {
	d := &recordingDispatcher{}
	svc, _ := newEventService(t, d)
	ctx := context.Background()

	first, created, err := svc.Enqueue(ctx, transcriptEvent(t, "delivery-1"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Fatalf("first enqueue should create a run")
	}
	if first.WorkflowType != events.PipelineTranscriptUploaded || first.EntityType != "session" {
		t.Fatalf("run fields: got type=%q entity=%q", first.WorkflowType, first.EntityType)
	}
	if first.StudentID == nil || first.StudentID.String() != "6f2d0d53-27c4-4a35-9a73-5b9f1f7e2b02" {
		t.Fatalf("student id not recorded: %v", first.StudentID)
	}

	again, created, err := svc.Enqueue(ctx, transcriptEvent(t, "delivery-1"))
	if err != nil {
		t.Fatalf("Enqueue replay: %v", err)
	}
	if created || again.ID != first.ID {
		t.Fatalf("replay should return the existing run: created=%v id=%s want=%s", created, again.ID, first.ID)
	}
	if len(d.calls) != 1 {
		t.Fatalf("dispatch calls: want=1 got=%d", len(d.calls))
	}

	// Without a producer id the payload digest is the key.
	a, _, err := svc.Enqueue(ctx, transcriptEvent(t, ""))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b, created, err := svc.Enqueue(ctx, transcriptEvent(t, ""))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if created || a.ID != b.ID {
		t.Fatalf("same payload should map to the same run")
	}
}

func TestEnqueueRejectsUnknownAndInvalidEvents(t *testing.T) {
	svc, _ := newEventService(t, nil)
	ctx := context.Background()

	if _, _, err := svc.Enqueue(ctx, events.Event{Name: "session.deleted", Data: []byte(`{}`)}); !errors.Is(err, events.ErrUnknownEvent) {
		t.Fatalf("unknown event: got %v", err)
	}
	if _, _, err := svc.Enqueue(ctx, events.Event{Name: events.GoalCreated, Data: []byte(`{"goalId":""}`)}); !errors.Is(err, events.ErrInvalidPayload) {
		t.Fatalf("invalid payload: got %v", err)
	}
}

func TestRedeliveryRetriesFailedDispatch(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("temporal unavailable")}
	svc, set := newEventService(t, d)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	run, created, err := svc.Enqueue(ctx, transcriptEvent(t, "delivery-2"))
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	if !created || run == nil {
		t.Fatalf("the run is still recorded")
	}
	got, err := set.Runs.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != jobs.RunQueued || got.Stage != stageDispatch || got.Error == "" {
		t.Fatalf("run state: status=%q stage=%q error=%q", got.Status, got.Stage, got.Error)
	}

	d.err = nil
	again, created, err := svc.Enqueue(ctx, transcriptEvent(t, "delivery-2"))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if created || again.ID != run.ID {
		t.Fatalf("redelivery should reuse the run: created=%v", created)
	}
	if len(d.calls) != 2 {
		t.Fatalf("dispatch calls: want=2 got=%d", len(d.calls))
	}
	got, err = set.Runs.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != jobs.RunQueued || got.Stage != jobs.RunQueued {
		t.Fatalf("run state after recovery: status=%q stage=%q", got.Status, got.Stage)
	}

	// Once dispatched, further redeliveries are no-ops.
	if _, _, err := svc.Enqueue(ctx, transcriptEvent(t, "delivery-2")); err != nil {
		t.Fatalf("third delivery: %v", err)
	}
	if len(d.calls) != 2 {
		t.Fatalf("dispatch calls: want=2 got=%d", len(d.calls))
	}
}

func TestGetRunIncludesStepJournal(t *testing.T) {
	svc, set := newEventService(t, nil)
	ctx := context.Background()

	if _, err := svc.GetRun(ctx, uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("missing run: got %v", err)
	}

	run, _, err := svc.Enqueue(ctx, transcriptEvent(t, "delivery-3"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := set.Steps.Begin(dbctx.Context{Ctx: ctx}, run.ID, "extract-insights"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	view, err := svc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(view.Steps) != 1 || view.Steps[0].StepName != "extract-insights" {
		t.Fatalf("steps: %+v", view.Steps)
	}
}
