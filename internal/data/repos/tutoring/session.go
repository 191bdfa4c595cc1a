package tutoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, s *types.Session) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error)
	FirstByStudent(dbc dbctx.Context, studentID uuid.UUID) (*types.Session, error)
	CountBetween(dbc dbctx.Context, studentID uuid.UUID, from, to time.Time) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *types.Session) error {
	return dbc.Resolve(r.db).Create(s).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Session
	if err := dbc.Resolve(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	_, err := r.UpdateFieldsUnlessStatus(dbc, id, nil, updates)
	return err
}

// UpdateFieldsUnlessStatus skips the write when analysis_status is one of disallowed.
func (r *sessionRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := dbc.Resolve(r.db).Model(&types.Session{}).Where("id = ?", id)
	if len(disallowed) > 0 {
		q = q.Where("analysis_status NOT IN ?", disallowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) FirstByStudent(dbc dbctx.Context, studentID uuid.UUID) (*types.Session, error) {
	var row types.Session
	if err := dbc.Resolve(r.db).
		Where("student_id = ?", studentID).
		Order("started_at ASC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// CountBetween counts sessions with from <= started_at < to.
func (r *sessionRepo) CountBetween(dbc dbctx.Context, studentID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	err := dbc.Resolve(r.db).Model(&types.Session{}).
		Where("student_id = ? AND started_at >= ? AND started_at < ?", studentID, from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}
