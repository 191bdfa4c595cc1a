package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/redisx"
)

const sweepLeaseKey = "engagement-sweep"

// SweepScheduler emits one engagement.sweep event per interval slot. The slot
// is the dedupe key, so replicas racing on the same slot share one run; the
// lease only keeps them from all hitting the database at once.
type SweepScheduler struct {
	log      *logger.Logger
	enq      runtime.Enqueuer
	lease    redisx.Lease
	interval time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewSweepScheduler(baseLog *logger.Logger, enq runtime.Enqueuer, lease redisx.Lease, interval time.Duration) *SweepScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if lease == nil {
		lease = redisx.LocalLease{}
	}
	return &SweepScheduler{
		log:      baseLog.With("service", "SweepScheduler"),
		enq:      enq,
		lease:    lease,
		interval: interval,
		now:      time.Now,
	}
}

func (s *SweepScheduler) Interval() time.Duration { return s.interval }

// Slot names the interval window containing t. Whole-day intervals use the
// date, anything else the window start.
func (s *SweepScheduler) Slot(t time.Time) string {
	start := t.UTC().Truncate(s.interval)
	if s.interval%(24*time.Hour) == 0 {
		return start.Format("2006-01-02")
	}
	return start.Format(time.RFC3339)
}

// Trigger enqueues the sweep for the current slot. ok=false means another
// replica holds the lease for it.
func (s *SweepScheduler) Trigger(ctx context.Context) (*types.WorkflowRun, bool, error) {
	slot := s.Slot(s.now())
	release, ok, err := s.lease.Acquire(ctx, sweepLeaseKey+":"+slot, s.leaseTTL())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.log.Debug("Sweep lease held elsewhere", "slot", slot)
		return nil, false, nil
	}
	defer release()
	run, err := s.enqueue(ctx, slot)
	if err != nil {
		return nil, false, err
	}
	return run, true, nil
}

// TriggerNow enqueues an out-of-schedule sweep with its own slot.
func (s *SweepScheduler) TriggerNow(ctx context.Context) (*types.WorkflowRun, error) {
	return s.enqueue(ctx, "manual-"+s.now().UTC().Format(time.RFC3339Nano))
}

func (s *SweepScheduler) enqueue(ctx context.Context, slot string) (*types.WorkflowRun, error) {
	ev, err := events.New(events.EngagementSweep, events.EngagementSweepData{Slot: slot})
	if err != nil {
		return nil, err
	}
	run, created, err := s.enq.Enqueue(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("enqueue engagement sweep %s: %w", slot, err)
	}
	if created {
		s.log.Info("Engagement sweep enqueued", "slot", slot, "run_id", run.ID)
	}
	return run, nil
}

func (s *SweepScheduler) leaseTTL() time.Duration {
	ttl := s.interval / 2
	if ttl > 10*time.Minute {
		ttl = 10 * time.Minute
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Start triggers once immediately and then on every tick until ctx is done.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(ctx)
		ticker := time.NewTicker(s.tickEvery())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *SweepScheduler) Wait() { s.wg.Wait() }

func (s *SweepScheduler) tick(ctx context.Context) {
	if _, _, err := s.Trigger(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("Engagement sweep trigger failed", "error", err)
	}
}

// tickEvery polls more often than the interval so a restarted replica still
// catches the current slot.
func (s *SweepScheduler) tickEvery() time.Duration {
	every := s.interval / 4
	if every > 15*time.Minute {
		every = 15 * time.Minute
	}
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	return every
}
