package notify

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type NotificationRepo interface {
	CreateIgnoreExisting(dbc dbctx.Context, rows []*types.Notification) (int64, error)
	ListByStudent(dbc dbctx.Context, studentID uuid.UUID, limit int) ([]*types.Notification, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	return &notificationRepo{db: db, log: baseLog.With("repo", "NotificationRepo")}
}

func (r *notificationRepo) CreateIgnoreExisting(dbc dbctx.Context, rows []*types.Notification) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *notificationRepo) ListByStudent(dbc dbctx.Context, studentID uuid.UUID, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []*types.Notification{}
	if err := dbc.Resolve(r.db).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
