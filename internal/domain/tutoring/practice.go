package tutoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PracticeAssigned   = "assigned"
	PracticeInProgress = "in_progress"
	PracticeCompleted  = "completed"
	PracticeFailed     = "failed"
)

const (
	QuestionMultipleChoice = "multiple-choice"
	QuestionShortAnswer    = "short-answer"
	QuestionProblemSolving = "problem-solving"
)

type Practice struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	SessionID   *uuid.UUID     `gorm:"type:uuid;index" json:"session_id,omitempty"`
	Status      string         `gorm:"column:status;not null;default:'assigned';index" json:"status"`
	Difficulty  int            `gorm:"column:difficulty;not null;default:0" json:"difficulty"`
	Questions   datatypes.JSON `gorm:"column:questions" json:"questions"`
	Answers     datatypes.JSON `gorm:"column:answers" json:"answers,omitempty"`
	Score       *int           `gorm:"column:score" json:"score,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	AssignedAt  time.Time      `gorm:"column:assigned_at;not null" json:"assigned_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DueAt       *time.Time     `gorm:"column:due_at;index" json:"due_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Practice) TableName() string { return "practice" }

func (p *Practice) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.AssignedAt.IsZero() {
		p.AssignedAt = time.Now().UTC()
	}
	if len(p.Questions) == 0 {
		p.Questions = datatypes.JSON([]byte("[]"))
	}
	return nil
}

// Question is immutable once generated. ConceptID is nil when the model's
// concept reference did not match a known concept.
type Question struct {
	ID            string     `json:"id"`
	Prompt        string     `json:"prompt"`
	Type          string     `json:"type"`
	Options       []string   `json:"options,omitempty"`
	Difficulty    int        `json:"difficulty"`
	ConceptID     *uuid.UUID `json:"conceptId"`
	ConceptName   string     `json:"conceptName,omitempty"`
	CorrectAnswer string     `json:"correctAnswer"`
	Explanation   string     `json:"explanation"`
}
