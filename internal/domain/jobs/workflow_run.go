package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// WorkflowRun is one execution of a named pipeline for one triggering event.
type WorkflowRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowType string         `gorm:"column:workflow_type;not null;index" json:"workflow_type"`
	DedupeKey    string         `gorm:"column:dedupe_key;not null;uniqueIndex" json:"dedupe_key"`
	EventName    string         `gorm:"column:event_name;index" json:"event_name,omitempty"`
	EntityType   string         `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID     *uuid.UUID     `gorm:"type:uuid;column:entity_id;index" json:"entity_id,omitempty"`
	StudentID    *uuid.UUID     `gorm:"type:uuid;column:student_id;index" json:"student_id,omitempty"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Stage        string         `gorm:"column:stage;not null" json:"stage"`
	Progress     int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Message      string         `gorm:"column:message" json:"message,omitempty"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	NextRunAt    *time.Time     `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`
	LockedAt     *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt  *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt  *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	ParentRunID  *uuid.UUID     `gorm:"type:uuid;column:parent_run_id;index" json:"parent_run_id,omitempty"`
	ParentStep   string         `gorm:"column:parent_step" json:"parent_step,omitempty"`
	Payload      datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result       datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (WorkflowRun) TableName() string { return "workflow_run" }

func (r *WorkflowRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RunQueued
	}
	if r.Stage == "" {
		r.Stage = RunQueued
	}
	if len(r.Payload) == 0 {
		r.Payload = datatypes.JSON([]byte("{}"))
	}
	if len(r.Result) == 0 {
		r.Result = datatypes.JSON([]byte("{}"))
	}
	return nil
}

func (r *WorkflowRun) IsTerminal() bool {
	return r != nil && (r.Status == RunSucceeded || r.Status == RunFailed)
}
