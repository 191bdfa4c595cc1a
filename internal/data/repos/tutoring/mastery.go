package tutoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type MasteryRepo interface {
	MergeMax(dbc dbctx.Context, studentID, conceptID uuid.UUID, observed int, at time.Time) error
	Get(dbc dbctx.Context, studentID, conceptID uuid.UUID) (*types.StudentConceptMastery, error)
	ListByStudent(dbc dbctx.Context, studentID uuid.UUID) ([]*types.StudentConceptMastery, error)
	ListByStudentConcepts(dbc dbctx.Context, studentID uuid.UUID, conceptIDs []uuid.UUID) ([]*types.StudentConceptMastery, error)
}

type masteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMasteryRepo(db *gorm.DB, baseLog *logger.Logger) MasteryRepo {
	return &masteryRepo{db: db, log: baseLog.With("repo", "MasteryRepo")}
}

// MergeMax stores max(existing, observed) in a single upsert so concurrent
// writers for the same (student, concept) cannot lower the stored value.
// last_practiced_at always moves to at.
func (r *masteryRepo) MergeMax(dbc dbctx.Context, studentID, conceptID uuid.UUID, observed int, at time.Time) error {
	if studentID == uuid.Nil || conceptID == uuid.Nil {
		return nil
	}
	observed = clampMastery(observed)
	at = at.UTC()
	row := &types.StudentConceptMastery{
		StudentID:       studentID,
		ConceptID:       conceptID,
		MasteryLevel:    observed,
		LastPracticedAt: at,
	}
	return dbc.Resolve(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "concept_id"}},
			DoUpdates: clause.Set{
				{
					Column: clause.Column{Name: "mastery_level"},
					Value: gorm.Expr(
						"CASE WHEN excluded.mastery_level > student_concept_mastery.mastery_level " +
							"THEN excluded.mastery_level ELSE student_concept_mastery.mastery_level END",
					),
				},
				{Column: clause.Column{Name: "last_practiced_at"}, Value: gorm.Expr("excluded.last_practiced_at")},
				{Column: clause.Column{Name: "updated_at"}, Value: at},
			},
		}).
		Create(row).Error
}

func (r *masteryRepo) Get(dbc dbctx.Context, studentID, conceptID uuid.UUID) (*types.StudentConceptMastery, error) {
	var row types.StudentConceptMastery
	if err := dbc.Resolve(r.db).
		Where("student_id = ? AND concept_id = ?", studentID, conceptID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *masteryRepo) ListByStudent(dbc dbctx.Context, studentID uuid.UUID) ([]*types.StudentConceptMastery, error) {
	out := []*types.StudentConceptMastery{}
	if studentID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Resolve(r.db).
		Where("student_id = ?", studentID).
		Order("last_practiced_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *masteryRepo) ListByStudentConcepts(dbc dbctx.Context, studentID uuid.UUID, conceptIDs []uuid.UUID) ([]*types.StudentConceptMastery, error) {
	out := []*types.StudentConceptMastery{}
	if studentID == uuid.Nil || len(conceptIDs) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).
		Where("student_id = ? AND concept_id IN ?", studentID, conceptIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func clampMastery(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
