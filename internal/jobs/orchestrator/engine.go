package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	jobrt "github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// StepFunc runs one step. Its return value is journaled as JSON and is what
// later steps read through State, on this attempt and on every replay.
type StepFunc func(ctx *jobrt.Context, st *State) (any, error)

type Step struct {
	Name    string
	Timeout time.Duration
	Retry   RetryPolicy
	Run     StepFunc
}

type Pipeline struct {
	Name  string
	Steps []Step
	// OnFailure runs once when a step fails permanently, before the run is
	// marked failed. It moves the owning entity to its failed state.
	OnFailure func(ctx *jobrt.Context, step string, err error)
	// Result builds the run result from the journal. Defaults to the step list.
	Result func(st *State) any
}

// State exposes journaled step outputs to later steps.
type State struct {
	outputs map[string]json.RawMessage
}

func newState() *State { return &State{outputs: map[string]json.RawMessage{}} }

func (s *State) Has(step string) bool {
	_, ok := s.outputs[step]
	return ok
}

// Decode unmarshals the recorded output of step into out.
func (s *State) Decode(step string, out any) error {
	raw, ok := s.outputs[step]
	if !ok {
		return fmt.Errorf("no recorded output for step %q", step)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode output of step %q: %w", step, err)
	}
	return nil
}

func (s *State) set(step string, raw []byte) {
	if len(raw) == 0 {
		raw = []byte("null")
	}
	s.outputs[step] = json.RawMessage(raw)
}

type Engine struct {
	log *logger.Logger
	// JournalRetry is how long a run waits when the step journal is unreadable.
	JournalRetry time.Duration
}

func NewEngine(baseLog *logger.Logger) *Engine {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Engine{log: baseLog.With("component", "Orchestrator"), JournalRetry: 5 * time.Second}
}

/*
Run executes p for the claimed run in jc.
  - Steps run strictly in order. A step whose journal row succeeded is skipped
    and its recorded output is loaded instead.
  - A new attempt is journaled before the step runs, and its output is
    journaled before the next step starts.
  - A retryable failure below max attempts schedules the step and yields the
    run back to the queue with next_run_at set.
  - Exhaustion or a permanent error fails the step, runs OnFailure and fails
    the run. Nothing after the failed step runs.
*/
func (e *Engine) Run(jc *jobrt.Context, p Pipeline) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	if err := validateSteps(p.Steps); err != nil {
		jc.Fail("validate", Permanent(err))
		return nil
	}
	log := e.log.With("run_id", jc.Run.ID.String(), "pipeline", p.Name)
	dbc := dbctx.Context{Ctx: jc.Ctx}

	rows, err := jc.Steps.ListByRun(dbc, jc.Run.ID)
	if err != nil {
		log.Warn("Step journal unavailable; yielding", "error", err)
		jc.Yield("journal_unavailable", e.JournalRetry)
		return nil
	}
	journal := make(map[string]*stepRow, len(rows))
	for _, r := range rows {
		journal[r.StepName] = &stepRow{status: r.Status, output: r.Output, lastErr: r.LastError, nextRunAt: r.NextRunAt}
	}

	st := newState()
	total := len(p.Steps)
	for i, step := range p.Steps {
		if row := journal[step.Name]; row != nil {
			switch row.status {
			case jobs.StepSucceeded:
				st.set(step.Name, row.output)
				observability.Current().ObserveStep(p.Name, step.Name, "skipped", 0)
				continue
			case jobs.StepFailed:
				e.failRun(jc, log, p, step.Name, errors.New(orDefault(row.lastErr, "step failed")))
				return nil
			case jobs.StepRetrying:
				if row.nextRunAt != nil {
					if wait := time.Until(*row.nextRunAt); wait > 0 {
						jc.Yield("retry_"+step.Name, wait)
						return nil
					}
				}
			}
		}

		jc.Progress(step.Name, i*100/total, "Running "+step.Name)
		begun, err := jc.Steps.Begin(dbc, jc.Run.ID, step.Name)
		if err != nil {
			log.Warn("Step journal write failed; yielding", "step", step.Name, "error", err)
			jc.Yield("journal_unavailable", e.JournalRetry)
			return nil
		}

		start := time.Now()
		out, runErr := e.runStep(jc, p.Name, step, st)
		if runErr == nil {
			raw, mErr := json.Marshal(out)
			if mErr != nil {
				runErr = Permanent(fmt.Errorf("step %q output not serializable: %w", step.Name, mErr))
			} else if err := jc.Steps.Succeed(dbc, jc.Run.ID, step.Name, raw); err != nil {
				runErr = fmt.Errorf("journal step %q: %w", step.Name, err)
			} else {
				st.set(step.Name, raw)
				observability.Current().ObserveStep(p.Name, step.Name, "succeeded", time.Since(start))
				continue
			}
		}

		if jc.Ctx != nil && jc.Ctx.Err() != nil {
			// Shutdown. The run stays claimed until it is reclaimed as stale.
			log.Info("Run interrupted by shutdown", "step", step.Name)
			return nil
		}

		attempts := 1
		if begun != nil {
			attempts = begun.Attempts
		}
		if shouldRetry(step.Retry, attempts, runErr) {
			delay := computeBackoff(step.Retry, attempts)
			log.Warn("Step failed; retry scheduled",
				"step", step.Name,
				"attempt", attempts,
				"max_attempts", step.Retry.MaxAttempts,
				"retry_in", delay.String(),
				"error", runErr,
			)
			if err := jc.Steps.ScheduleRetry(dbc, jc.Run.ID, step.Name, time.Now().Add(delay), runErr.Error()); err != nil {
				log.Warn("Step retry not journaled", "step", step.Name, "error", err)
			}
			observability.Current().ObserveStep(p.Name, step.Name, "retry", time.Since(start))
			jc.Yield("retry_"+step.Name, delay)
			return nil
		}

		if err := jc.Steps.Fail(dbc, jc.Run.ID, step.Name, runErr.Error()); err != nil {
			log.Warn("Step failure not journaled", "step", step.Name, "error", err)
		}
		observability.Current().ObserveStep(p.Name, step.Name, "failed", time.Since(start))
		e.failRun(jc, log, p, step.Name, runErr)
		return nil
	}

	var result any = map[string]any{"steps": stepNames(p.Steps)}
	if p.Result != nil {
		result = p.Result(st)
	}
	jc.Succeed("done", result)
	log.Info("Run succeeded", "steps", total)
	return nil
}

type stepRow struct {
	status    string
	output    []byte
	lastErr   string
	nextRunAt *time.Time
}

func (e *Engine) failRun(jc *jobrt.Context, log *logger.Logger, p Pipeline, step string, err error) {
	log.Error("Run failed permanently",
		"step", step,
		"entity_type", jc.Run.EntityType,
		"entity_id", uuidString(jc.Run.EntityID),
		"student_id", uuidString(jc.Run.StudentID),
		"attempts", jc.Run.Attempts,
		"error", err,
	)
	if p.OnFailure != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("OnFailure hook panic", "step", step, "panic", r)
				}
			}()
			p.OnFailure(jc, step, err)
		}()
	}
	jc.Fail(step, err)
}

func (e *Engine) runStep(jc *jobrt.Context, pipeline string, step Step, st *State) (out any, err error) {
	if step.Run == nil {
		return nil, Permanent(fmt.Errorf("step %q: Run is nil", step.Name))
	}
	parent := jc.Ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, step.Timeout)
		defer cancel()
	}
	ctx, span := observability.StartSpan(ctx, "step."+step.Name,
		attribute.String("pipeline", pipeline),
		attribute.String("run_id", jc.Run.ID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	tmp := *jc
	tmp.Ctx = ctx
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("step %q panic: %v", step.Name, r)
		}
	}()
	out, err = step.Run(&tmp, st)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		err = fmt.Errorf("step %q timed out after %s: %w", step.Name, step.Timeout, err)
	}
	return out, err
}

func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return errors.New("pipeline has no steps")
	}
	seen := map[string]bool{}
	for _, s := range steps {
		if strings.TrimSpace(s.Name) == "" {
			return errors.New("step missing Name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func stepNames(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
