package goals

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type GoalRepo interface {
	Create(dbc dbctx.Context, g *types.Goal) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Goal, error)
	ListByStudent(dbc dbctx.Context, studentID uuid.UUID, status string, excludeID uuid.UUID) ([]*types.Goal, error)
}

type goalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGoalRepo(db *gorm.DB, baseLog *logger.Logger) GoalRepo {
	return &goalRepo{db: db, log: baseLog.With("repo", "GoalRepo")}
}

func (r *goalRepo) Create(dbc dbctx.Context, g *types.Goal) error {
	return dbc.Resolve(r.db).Create(g).Error
}

func (r *goalRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Goal, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Goal
	if err := dbc.Resolve(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// ListByStudent filters by status when non-empty and drops excludeID.
func (r *goalRepo) ListByStudent(dbc dbctx.Context, studentID uuid.UUID, status string, excludeID uuid.UUID) ([]*types.Goal, error) {
	out := []*types.Goal{}
	if studentID == uuid.Nil {
		return out, nil
	}
	q := dbc.Resolve(r.db).Where("student_id = ?", studentID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Order("created_at DESC").Limit(50).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type SuggestionRepo interface {
	CreateIgnoreExisting(dbc dbctx.Context, rows []*types.Suggestion) (int64, error)
	ListByGoal(dbc dbctx.Context, goalID uuid.UUID) ([]*types.Suggestion, error)
}

type suggestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSuggestionRepo(db *gorm.DB, baseLog *logger.Logger) SuggestionRepo {
	return &suggestionRepo{db: db, log: baseLog.With("repo", "SuggestionRepo")}
}

// CreateIgnoreExisting inserts rows, skipping ids that already exist. Callers
// derive ids deterministically so a retried write is a no-op.
func (r *suggestionRepo) CreateIgnoreExisting(dbc dbctx.Context, rows []*types.Suggestion) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *suggestionRepo) ListByGoal(dbc dbctx.Context, goalID uuid.UUID) ([]*types.Suggestion, error) {
	out := []*types.Suggestion{}
	if err := dbc.Resolve(r.db).Where("goal_id = ?", goalID).Order("relevance_score DESC, created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
