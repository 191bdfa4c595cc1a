package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/neo4jdb"
)

type ReconcileMasteryDeps struct {
	DB       *gorm.DB
	Concepts repos.ConceptRepo
	Mastery  repos.MasteryRepo
	Graph    neo4jdb.MasteryMirror
	Log      *logger.Logger
}

type ReconcileMasteryInput struct {
	StudentID uuid.UUID
	Subject   string
	Observed  []types.ObservedConcept
	Now       time.Time
}

type ReconcileMasteryOutput struct {
	ConceptIDs []uuid.UUID `json:"conceptIds"`
	Updated    int         `json:"updated"`
}

// ReconcileMastery folds observed concepts into the student's mastery rows.
// Stored levels only move up; last_practiced_at always moves to Now.
func ReconcileMastery(ctx context.Context, deps ReconcileMasteryDeps, in ReconcileMasteryInput) (ReconcileMasteryOutput, error) {
	out := ReconcileMasteryOutput{ConceptIDs: []uuid.UUID{}}
	if deps.DB == nil || deps.Concepts == nil || deps.Mastery == nil {
		return out, fmt.Errorf("reconcile_mastery: missing deps")
	}
	if in.StudentID == uuid.Nil {
		return out, fmt.Errorf("reconcile_mastery: missing student id")
	}
	if len(in.Observed) == 0 {
		return out, nil
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	edges := make([]neo4jdb.MasteryEdge, 0, len(in.Observed))
	err := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, oc := range in.Observed {
			c, err := deps.Concepts.GetOrCreate(dbc, in.Subject, oc.Name, oc.Difficulty)
			if err != nil {
				return fmt.Errorf("concept %q: %w", oc.Name, err)
			}
			if c == nil {
				continue
			}
			if err := deps.Mastery.MergeMax(dbc, in.StudentID, c.ID, oc.MasteryLevel, now); err != nil {
				return fmt.Errorf("mastery %q: %w", oc.Name, err)
			}
			row, err := deps.Mastery.Get(dbc, in.StudentID, c.ID)
			if err != nil {
				return err
			}
			out.ConceptIDs = append(out.ConceptIDs, c.ID)
			edges = append(edges, neo4jdb.MasteryEdge{
				StudentID:    in.StudentID,
				ConceptID:    c.ID,
				ConceptName:  c.Name,
				Subject:      c.Subject,
				MasteryLevel: row.MasteryLevel,
				PracticedAt:  now,
			})
		}
		return nil
	})
	if err != nil {
		return ReconcileMasteryOutput{ConceptIDs: []uuid.UUID{}}, err
	}
	out.Updated = len(edges)

	// The graph is a read model; the relational rows are authoritative.
	if deps.Graph != nil {
		if gerr := deps.Graph.MirrorMastery(ctx, edges); gerr != nil && deps.Log != nil {
			deps.Log.Warn("Mastery graph mirror failed", "student_id", in.StudentID.String(), "error", gerr)
		}
	}
	return out, nil
}
