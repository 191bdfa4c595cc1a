package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
)

const (
	defaultPollInterval  = 2 * time.Second
	maxSleep             = 15 * time.Minute
	continueTickLimit    = 2000
	continueHistoryLimit = 15000
)

// Tick failures are infrastructure errors (database, claim). Step failures
// never surface here; the engine journals them and yields the run.
var tickOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 24 * time.Hour,
	HeartbeatTimeout:    30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    10,
	},
}

// Workflow drives one workflow run. Its id is the run id; each tick executes
// the run until it yields, then sleeps until the run is due again.
func Workflow(ctx workflow.Context) error {
	runID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if runID == "" {
		return fmt.Errorf("jobrun: missing run id")
	}

	ctx = workflow.WithActivityOptions(ctx, tickOptions)

	for ticks := 1; ; ticks++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, runID).Get(ctx, &out); err != nil {
			return err
		}

		switch out.Status {
		case jobs.RunSucceeded:
			return nil
		case jobs.RunFailed:
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("workflow run %s failed at %s", runID, out.Stage), "RunFailed", nil)
		}

		if d := nextWait(ctx, out.NextRunAt, defaultPollInterval); d > 0 {
			if err := workflow.Sleep(ctx, d); err != nil {
				return err
			}
		}
		if shouldContinueAsNew(ctx, ticks) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func nextWait(ctx workflow.Context, next *time.Time, def time.Duration) time.Duration {
	if next == nil || next.IsZero() {
		return def
	}
	d := next.Sub(workflow.Now(ctx))
	if d <= 0 {
		return def
	}
	if d > maxSleep {
		return maxSleep
	}
	return d
}

func shouldContinueAsNew(ctx workflow.Context, ticks int) bool {
	if ticks >= continueTickLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && info.GetCurrentHistoryLength() >= continueHistoryLimit
}
