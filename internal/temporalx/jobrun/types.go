package jobrun

import "time"

const (
	WorkflowName = "workflow_run"
	ActivityTick = "workflow_run_tick"
)

// TickResult is the run state after one activity tick.
type TickResult struct {
	RunID     string     `json:"run_id"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	Claimed   bool       `json:"claimed"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
