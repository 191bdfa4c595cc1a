package temporalx

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx/jobrun"
)

// Dispatcher starts one workflow per run. The workflow id is the run id, so a
// second start for the same run is a no-op.
type Dispatcher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewDispatcher(log *logger.Logger, tc temporalsdkclient.Client, cfg Config) (*Dispatcher, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	cfg = cfg.WithDefaults()
	return &Dispatcher{log: log.With("component", "TemporalDispatcher"), tc: tc, taskQueue: cfg.TaskQueue}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, run *types.WorkflowRun) error {
	if run == nil {
		return nil
	}
	_, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    run.ID.String(),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, jobrun.WorkflowName)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		d.log.Debug("Workflow already started", "run_id", run.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start workflow for run %s: %w", run.ID, err)
	}
	d.log.Debug("Workflow started", "run_id", run.ID, "workflow_type", run.WorkflowType)
	return nil
}
