package tutoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type PracticeRepo interface {
	Create(dbc dbctx.Context, p *types.Practice) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Practice, error)
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error)
}

type practiceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPracticeRepo(db *gorm.DB, baseLog *logger.Logger) PracticeRepo {
	return &practiceRepo{db: db, log: baseLog.With("repo", "PracticeRepo")}
}

func (r *practiceRepo) Create(dbc dbctx.Context, p *types.Practice) error {
	return dbc.Resolve(r.db).Create(p).Error
}

func (r *practiceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Practice, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Practice
	if err := dbc.Resolve(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *practiceRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := dbc.Resolve(r.db).Model(&types.Practice{}).Where("id = ?", id)
	if len(disallowed) > 0 {
		q = q.Where("status NOT IN ?", disallowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
