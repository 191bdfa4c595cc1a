package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
)

type countingEnqueuer struct {
	mu   sync.Mutex
	runs map[string]*types.WorkflowRun
	hits int
}

func (e *countingEnqueuer) Enqueue(_ context.Context, ev events.Event) (*types.WorkflowRun, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hits++
	if e.runs == nil {
		e.runs = map[string]*types.WorkflowRun{}
	}
	key := events.Key(ev)
	if r, ok := e.runs[key]; ok {
		return r, false, nil
	}
	r := &types.WorkflowRun{DedupeKey: key, WorkflowType: events.PipelineEngagementSweep}
	e.runs[key] = r
	return r, true, nil
}

func (e *countingEnqueuer) distinct() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

type deniedLease struct{}

func (deniedLease) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, false, nil
}

func TestSweepSlots(t *testing.T) {
	s := NewSweepScheduler(testutil.Logger(t), &countingEnqueuer{}, nil, 0)
	at := time.Date(2026, 10, 19, 17, 30, 0, 0, time.UTC)
	if got := s.Slot(at); got != "2026-10-19" {
		t.Fatalf("daily slot: got %q", got)
	}
	hourly := NewSweepScheduler(testutil.Logger(t), &countingEnqueuer{}, nil, time.Hour)
	if got := hourly.Slot(at); got != "2026-10-19T17:00:00Z" {
		t.Fatalf("hourly slot: got %q", got)
	}
}

func TestTriggerDedupesPerSlotAndRespectsLease(t *testing.T) {
	enq := &countingEnqueuer{}
	s := NewSweepScheduler(testutil.Logger(t), enq, nil, 24*time.Hour)
	now := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, ok, err := s.Trigger(context.Background()); err != nil || !ok {
			t.Fatalf("Trigger: ok=%v err=%v", ok, err)
		}
	}
	if enq.distinct() != 1 {
		t.Fatalf("one run per slot: got %d", enq.distinct())
	}
	now = now.Add(24 * time.Hour)
	if _, _, err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if enq.distinct() != 2 {
		t.Fatalf("next slot gets a new run: got %d", enq.distinct())
	}

	if _, err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if enq.distinct() != 3 {
		t.Fatalf("manual sweep has its own slot: got %d", enq.distinct())
	}

	blocked := NewSweepScheduler(testutil.Logger(t), enq, deniedLease{}, 24*time.Hour)
	run, ok, err := blocked.Trigger(context.Background())
	if err != nil || ok || run != nil {
		t.Fatalf("held lease: run=%v ok=%v err=%v", run, ok, err)
	}
}

func TestSchedulerStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
	enq := &countingEnqueuer{}
	s := NewSweepScheduler(testutil.Logger(t), enq, nil, 40*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Wait()
	enq.mu.Lock()
	hits := enq.hits
	enq.mu.Unlock()
	if hits < 2 {
		t.Fatalf("scheduler should tick repeatedly, got %d", hits)
	}
}
