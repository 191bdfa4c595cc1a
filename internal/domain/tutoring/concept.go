package tutoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Concept difficulty is fixed when the row is first created.
type Concept struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null;uniqueIndex:idx_concept_subject_name" json:"name"`
	Subject    string    `gorm:"column:subject;not null;uniqueIndex:idx_concept_subject_name" json:"subject"`
	Difficulty int       `gorm:"column:difficulty;not null;default:5" json:"difficulty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Concept) TableName() string { return "concept" }

func (c *Concept) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// StudentConceptMastery holds one row per (student, concept); MasteryLevel never decreases.
type StudentConceptMastery struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mastery_student_concept" json:"student_id"`
	ConceptID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mastery_student_concept;index" json:"concept_id"`
	MasteryLevel    int       `gorm:"column:mastery_level;not null;default:0" json:"mastery_level"`
	LastPracticedAt time.Time `gorm:"column:last_practiced_at;not null" json:"last_practiced_at"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (StudentConceptMastery) TableName() string { return "student_concept_mastery" }

func (m *StudentConceptMastery) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
