package tutoring

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type ConceptRepo interface {
	GetOrCreate(dbc dbctx.Context, subject, name string, difficulty int) (*types.Concept, error)
	GetByName(dbc dbctx.Context, subject, name string) (*types.Concept, error)
	GetByNames(dbc dbctx.Context, subject string, names []string) (map[string]*types.Concept, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Concept, error)
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

// NormalizeName is the lookup key for concept names.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// GetOrCreate resolves a concept by (subject, name). Difficulty is only used
// when the concept does not exist yet.
func (r *conceptRepo) GetOrCreate(dbc dbctx.Context, subject, name string, difficulty int) (*types.Concept, error) {
	subject = normalizeSubject(subject)
	key := NormalizeName(name)
	if key == "" {
		return nil, nil
	}
	if existing, err := r.GetByName(dbc, subject, key); err != nil || existing != nil {
		return existing, err
	}
	row := &types.Concept{Name: key, Subject: subject, Difficulty: clampDifficulty(difficulty)}
	if err := dbc.Resolve(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	// A concurrent writer may have won the insert; read back the stored row.
	return r.GetByName(dbc, subject, key)
}

func (r *conceptRepo) GetByName(dbc dbctx.Context, subject, name string) (*types.Concept, error) {
	var row types.Concept
	if err := dbc.Resolve(r.db).
		Where("subject = ? AND name = ?", normalizeSubject(subject), NormalizeName(name)).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// GetByNames returns concepts keyed by normalized name; names without a match are absent.
func (r *conceptRepo) GetByNames(dbc dbctx.Context, subject string, names []string) (map[string]*types.Concept, error) {
	out := map[string]*types.Concept{}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		if k := NormalizeName(n); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return out, nil
	}
	var rows []*types.Concept
	if err := dbc.Resolve(r.db).
		Where("subject = ? AND name IN ?", normalizeSubject(subject), keys).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.Name] = c
	}
	return out, nil
}

func (r *conceptRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Concept, error) {
	out := []*types.Concept{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeSubject(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "general"
	}
	return s
}

func clampDifficulty(d int) int {
	if d < 1 {
		return 1
	}
	if d > 10 {
		return 10
	}
	return d
}
