package tutoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AnalysisPending    = "pending"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisFailed     = "failed"
)

// Session is one tutoring session and its transcript analysis.
type Session struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	TutorID          *uuid.UUID     `gorm:"type:uuid;index" json:"tutor_id,omitempty"`
	Subject          string         `gorm:"column:subject;not null;default:'general'" json:"subject"`
	StartedAt        time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	DurationSeconds  int            `gorm:"column:duration_seconds;not null;default:0" json:"duration_seconds"`
	Transcript       string         `gorm:"column:transcript;type:text" json:"transcript,omitempty"`
	TranscriptRef    string         `gorm:"column:transcript_ref" json:"transcript_ref,omitempty"`
	TranscriptSource string         `gorm:"column:transcript_source" json:"transcript_source,omitempty"`
	TranscriptFormat string         `gorm:"column:transcript_format" json:"transcript_format,omitempty"`
	AnalysisStatus   string         `gorm:"column:analysis_status;not null;default:'pending';index" json:"analysis_status"`
	AnalysisResult   datatypes.JSON `gorm:"column:analysis_result" json:"analysis_result,omitempty"`
	AnalysisError    string         `gorm:"column:analysis_error" json:"analysis_error,omitempty"`
	AnalyzedAt       *time.Time     `gorm:"column:analyzed_at" json:"analyzed_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Session) TableName() string { return "session" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	return nil
}

// SessionAnalysis is the stored shape of Session.AnalysisResult.
type SessionAnalysis struct {
	Topics              []string          `json:"topics"`
	Concepts            []ObservedConcept `json:"concepts"`
	Strengths           []string          `json:"strengths"`
	AreasForImprovement []string          `json:"areasForImprovement"`
	ActionItems         []string          `json:"actionItems"`
	SuggestedTopics     []string          `json:"suggestedTopics"`
}

// ObservedConcept is a concept as seen in one session.
type ObservedConcept struct {
	Name         string `json:"name"`
	Difficulty   int    `json:"difficulty"`
	MasteryLevel int    `json:"masteryLevel"`
}
