package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StepRunning   = "running"
	StepRetrying  = "retry_wait"
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
)

// WorkflowStep is the journal entry for one named step of one run.
// A succeeded row's Output is reused instead of re-running the step.
type WorkflowStep struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID      uuid.UUID      `gorm:"type:uuid;column:run_id;not null;uniqueIndex:idx_workflow_step_run_name" json:"run_id"`
	StepName   string         `gorm:"column:step_name;not null;uniqueIndex:idx_workflow_step_run_name" json:"step_name"`
	Status     string         `gorm:"column:status;not null;index" json:"status"`
	Attempts   int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Output     datatypes.JSON `gorm:"column:output" json:"output,omitempty"`
	LastError  string         `gorm:"column:last_error" json:"last_error,omitempty"`
	NextRunAt  *time.Time     `gorm:"column:next_run_at" json:"next_run_at,omitempty"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (WorkflowStep) TableName() string { return "workflow_step" }

func (s *WorkflowStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
