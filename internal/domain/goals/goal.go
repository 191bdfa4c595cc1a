package goals

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalPaused    = "paused"
)

type Goal struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	Subject     string         `gorm:"column:subject;not null" json:"subject"`
	Description string         `gorm:"column:description;type:text" json:"description"`
	Status      string         `gorm:"column:status;not null;default:'active';index" json:"status"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	TargetDate  *time.Time     `gorm:"column:target_date" json:"target_date,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Goal) TableName() string { return "goal" }

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

const (
	SuggestionPending   = "pending"
	SuggestionAccepted  = "accepted"
	SuggestionDismissed = "dismissed"
)

const (
	SuggestionKindStudyTopic     = "study_topic"
	SuggestionKindRelatedSubject = "related_subject"
)

// Suggestion keeps its metadata in typed columns rather than one opaque blob.
type Suggestion struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	GoalID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"goal_id"`
	Kind               string         `gorm:"column:kind;not null;index" json:"kind"`
	Topic              string         `gorm:"column:topic;not null" json:"topic"`
	Description        string         `gorm:"column:description;type:text" json:"description"`
	RelevanceScore     int            `gorm:"column:relevance_score;not null;default:0" json:"relevance_score"`
	Status             string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Difficulty         string         `gorm:"column:difficulty" json:"difficulty,omitempty"`
	EstimatedHours     float64        `gorm:"column:estimated_hours;not null;default:0" json:"estimated_hours"`
	Prerequisites      datatypes.JSON `gorm:"column:prerequisites" json:"prerequisites,omitempty"`
	PracticeActivities datatypes.JSON `gorm:"column:practice_activities" json:"practice_activities,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (Suggestion) TableName() string { return "suggestion" }

func (s *Suggestion) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
