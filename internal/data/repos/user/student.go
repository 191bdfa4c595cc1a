package user

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type StudentRepo interface {
	Create(dbc dbctx.Context, s *types.Student) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Student, error)
	ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Student, error)
}

type studentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return &studentRepo{db: db, log: baseLog.With("repo", "StudentRepo")}
}

func (r *studentRepo) Create(dbc dbctx.Context, s *types.Student) error {
	return dbc.Resolve(r.db).Create(s).Error
}

func (r *studentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Student, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Student
	if err := dbc.Resolve(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// ListPage walks students in id order; pass the last id of the previous page as after.
func (r *studentRepo) ListPage(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Student, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	out := []*types.Student{}
	q := dbc.Resolve(r.db).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
