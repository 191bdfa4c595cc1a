package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// WorkflowStepRepo is the step log consulted before every step execution.
type WorkflowStepRepo interface {
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.WorkflowStep, error)
	Get(dbc dbctx.Context, runID uuid.UUID, step string) (*types.WorkflowStep, error)
	Begin(dbc dbctx.Context, runID uuid.UUID, step string) (*types.WorkflowStep, error)
	Succeed(dbc dbctx.Context, runID uuid.UUID, step string, output []byte) error
	ScheduleRetry(dbc dbctx.Context, runID uuid.UUID, step string, nextRunAt time.Time, lastErr string) error
	Fail(dbc dbctx.Context, runID uuid.UUID, step string, lastErr string) error
}

type workflowStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowStepRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowStepRepo {
	return &workflowStepRepo{
		db:  db,
		log: baseLog.With("repo", "WorkflowStepRepo"),
	}
}

func (r *workflowStepRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.WorkflowStep, error) {
	var out []*types.WorkflowStep
	if runID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("run_id = ?", runID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workflowStepRepo) Get(dbc dbctx.Context, runID uuid.UUID, step string) (*types.WorkflowStep, error) {
	var row types.WorkflowStep
	if err := dbc.Resolve(r.db).
		Where("run_id = ? AND step_name = ?", runID, step).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// Begin records a new attempt for step, creating the journal row on first use.
func (r *workflowStepRepo) Begin(dbc dbctx.Context, runID uuid.UUID, step string) (*types.WorkflowStep, error) {
	now := time.Now().UTC()
	row := &types.WorkflowStep{
		RunID:     runID,
		StepName:  step,
		Status:    jobs.StepRunning,
		Attempts:  1,
		StartedAt: &now,
		Output:    datatypes.JSON([]byte("null")),
	}
	err := dbc.Resolve(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}, {Name: "step_name"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "status"}, Value: jobs.StepRunning},
			{Column: clause.Column{Name: "attempts"}, Value: gorm.Expr("workflow_step.attempts + 1")},
			{Column: clause.Column{Name: "started_at"}, Value: now},
			{Column: clause.Column{Name: "next_run_at"}, Value: nil},
			{Column: clause.Column{Name: "updated_at"}, Value: now},
		},
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(dbc, runID, step)
}

func (r *workflowStepRepo) Succeed(dbc dbctx.Context, runID uuid.UUID, step string, output []byte) error {
	now := time.Now().UTC()
	if len(output) == 0 {
		output = []byte("null")
	}
	return dbc.Resolve(r.db).Model(&types.WorkflowStep{}).
		Where("run_id = ? AND step_name = ?", runID, step).
		Updates(map[string]interface{}{
			"status":      jobs.StepSucceeded,
			"output":      datatypes.JSON(output),
			"last_error":  "",
			"next_run_at": nil,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

func (r *workflowStepRepo) ScheduleRetry(dbc dbctx.Context, runID uuid.UUID, step string, nextRunAt time.Time, lastErr string) error {
	return dbc.Resolve(r.db).Model(&types.WorkflowStep{}).
		Where("run_id = ? AND step_name = ?", runID, step).
		Updates(map[string]interface{}{
			"status":      jobs.StepRetrying,
			"last_error":  lastErr,
			"next_run_at": nextRunAt.UTC(),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *workflowStepRepo) Fail(dbc dbctx.Context, runID uuid.UUID, step string, lastErr string) error {
	now := time.Now().UTC()
	return dbc.Resolve(r.db).Model(&types.WorkflowStep{}).
		Where("run_id = ? AND step_name = ?", runID, step).
		Updates(map[string]interface{}{
			"status":      jobs.StepFailed,
			"last_error":  lastErr,
			"next_run_at": nil,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}
