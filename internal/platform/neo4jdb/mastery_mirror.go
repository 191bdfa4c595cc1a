package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MasteryEdge is one (Student)-[:MASTERED]->(Concept) relationship.
type MasteryEdge struct {
	StudentID    uuid.UUID
	ConceptID    uuid.UUID
	ConceptName  string
	Subject      string
	MasteryLevel int
	PracticedAt  time.Time
}

// MasteryMirror copies reconciled mastery into the graph. The edge level keeps
// the larger of the stored and incoming values, matching the relational merge.
type MasteryMirror interface {
	MirrorMastery(ctx context.Context, edges []MasteryEdge) error
}

const mirrorMasteryCypher = `
UNWIND $edges AS e
MERGE (s:Student {id: e.student_id})
MERGE (c:Concept {id: e.concept_id})
  ON CREATE SET c.name = e.concept_name, c.subject = e.subject
MERGE (s)-[m:MASTERED]->(c)
SET m.level = CASE WHEN m.level IS NULL OR m.level < e.level THEN e.level ELSE m.level END,
    m.last_practiced_at = e.practiced_at
`

func (c *Client) MirrorMastery(ctx context.Context, edges []MasteryEdge) error {
	if c == nil || c.driver == nil || len(edges) == 0 {
		return nil
	}
	rows := make([]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"student_id":   e.StudentID.String(),
			"concept_id":   e.ConceptID.String(),
			"concept_name": strings.TrimSpace(e.ConceptName),
			"subject":      strings.TrimSpace(e.Subject),
			"level":        int64(e.MasteryLevel),
			"practiced_at": e.PracticedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := c.execute(ctx, mirrorMasteryCypher, map[string]any{"edges": rows}); err != nil {
		return fmt.Errorf("neo4jdb: mirror %d mastery edges: %w", len(edges), err)
	}
	return nil
}
