package notify

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

const TypeEngagementNudge = "engagement_nudge"

type Notification struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	Type       string         `gorm:"column:type;not null;index" json:"type"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	Message    string         `gorm:"column:message;type:text;not null" json:"message"`
	ActionText string         `gorm:"column:action_text" json:"action_text,omitempty"`
	ActionURL  string         `gorm:"column:action_url" json:"action_url,omitempty"`
	Urgency    string         `gorm:"column:urgency;not null;default:'low'" json:"urgency"`
	Read       bool           `gorm:"column:read;not null;default:false;index" json:"read"`
	ReadAt     *time.Time     `gorm:"column:read_at" json:"read_at,omitempty"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Notification) TableName() string { return "notification" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
