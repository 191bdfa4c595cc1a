package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/dberr"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type WorkflowRunRepo interface {
	CreateOrGet(dbc dbctx.Context, run *types.WorkflowRun) (*types.WorkflowRun, bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WorkflowRun, error)
	GetByDedupeKey(dbc dbctx.Context, key string) (*types.WorkflowRun, error)
	ListRecent(dbc dbctx.Context, status string, limit int) ([]*types.WorkflowRun, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.WorkflowRun, error)
	ClaimByID(dbc dbctx.Context, id uuid.UUID, staleRunning time.Duration) (*types.WorkflowRun, bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]any) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type workflowRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowRunRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowRunRepo {
	return &workflowRunRepo{
		db:  db,
		log: baseLog.With("repo", "WorkflowRunRepo"),
	}
}

// CreateOrGet inserts run unless a run with the same dedupe key exists, in which
// case the existing row is returned with created=false.
func (r *workflowRunRepo) CreateOrGet(dbc dbctx.Context, run *types.WorkflowRun) (*types.WorkflowRun, bool, error) {
	if run == nil || run.DedupeKey == "" {
		return nil, false, errors.New("workflow run: dedupe key required")
	}
	if existing, err := r.GetByDedupeKey(dbc, run.DedupeKey); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}
	err := dbc.Resolve(r.db).Create(run).Error
	if err == nil {
		return run, true, nil
	}
	if !dberr.IsUniqueViolation(err) {
		return nil, false, err
	}
	existing, getErr := r.GetByDedupeKey(dbc, run.DedupeKey)
	if getErr != nil {
		return nil, false, getErr
	}
	if existing == nil {
		return nil, false, err
	}
	r.log.Debug("Workflow run already enqueued", "dedupe_key", run.DedupeKey, "run_id", existing.ID)
	return existing, false, nil
}

func (r *workflowRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WorkflowRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.findOne(dbc, "id = ?", id)
}

func (r *workflowRunRepo) GetByDedupeKey(dbc dbctx.Context, key string) (*types.WorkflowRun, error) {
	if key == "" {
		return nil, nil
	}
	return r.findOne(dbc, "dedupe_key = ?", key)
}

// findOne returns nil, nil when no row matches.
func (r *workflowRunRepo) findOne(dbc dbctx.Context, cond string, arg any) (*types.WorkflowRun, error) {
	var run types.WorkflowRun
	if err := dbc.Resolve(r.db).Where(cond, arg).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *workflowRunRepo) ListRecent(dbc dbctx.Context, status string, limit int) ([]*types.WorkflowRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := dbc.Resolve(r.db).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*types.WorkflowRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// runnable matches due queued runs and running runs whose heartbeat went stale.
const runnable = `((status = ? AND (next_run_at IS NULL OR next_run_at <= ?))
  OR (status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?))`

func runnableArgs(now time.Time, staleRunning time.Duration) []any {
	return []any{jobs.RunQueued, now, jobs.RunRunning, now.Add(-staleRunning)}
}

func claimUpdates(now time.Time) map[string]any {
	return map[string]any{
		"status":       jobs.RunRunning,
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
		"updated_at":   now,
	}
}

// ClaimNextRunnable marks the oldest runnable row running. Postgres skips rows
// locked by other workers; sqlite serializes writers on its own.
func (r *workflowRunRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.WorkflowRun, error) {
	now := time.Now().UTC()
	var claimed *types.WorkflowRun
	err := dbc.Resolve(r.db).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var run types.WorkflowRun
		err := q.Where(runnable, runnableArgs(now, staleRunning)...).Order("created_at ASC").First(&run).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil
		case err != nil:
			return err
		}
		if err := tx.Model(&types.WorkflowRun{}).Where("id = ?", run.ID).Updates(claimUpdates(now)).Error; err != nil {
			return err
		}
		run.Status = jobs.RunRunning
		run.Attempts++
		run.LockedAt, run.HeartbeatAt = &now, &now
		run.UpdatedAt = now
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimByID claims one specific run. Temporal dispatch uses it in place of the
// poll loop; claimed is false when the run was not runnable.
func (r *workflowRunRepo) ClaimByID(dbc dbctx.Context, id uuid.UUID, staleRunning time.Duration) (*types.WorkflowRun, bool, error) {
	now := time.Now().UTC()
	args := append([]any{id}, runnableArgs(now, staleRunning)...)
	res := dbc.Resolve(r.db).Model(&types.WorkflowRun{}).
		Where("id = ? AND "+runnable, args...).
		Updates(claimUpdates(now))
	if res.Error != nil {
		return nil, false, res.Error
	}
	run, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, false, err
	}
	return run, res.RowsAffected > 0, nil
}

func (r *workflowRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	_, err := r.update(dbc, id, nil, updates)
	return err
}

func (r *workflowRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]any) (bool, error) {
	return r.update(dbc, id, disallowedStatuses, updates)
}

func (r *workflowRunRepo) update(dbc dbctx.Context, id uuid.UUID, notIn []string, updates map[string]any) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := dbc.Resolve(r.db).Model(&types.WorkflowRun{}).Where("id = ?", id)
	if len(notIn) > 0 {
		q = q.Where("status NOT IN ?", notIn)
	}
	res := q.Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *workflowRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return dbc.Resolve(r.db).Model(&types.WorkflowRun{}).
		Where("id = ? AND status = ?", id, jobs.RunRunning).
		Updates(map[string]any{"heartbeat_at": now, "updated_at": now}).Error
}
