package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	TranscriptUploaded = "transcript.uploaded"
	PracticeGenerate   = "practice.generate"
	GoalCreated        = "goal.created"
	GoalCompleted      = "goal.completed"
	EngagementSweep    = "engagement.sweep"
)

// Pipeline names. Each event starts exactly one pipeline.
const (
	PipelineTranscriptUploaded = "TranscriptUploaded"
	PipelinePracticeRequested  = "PracticeRequested"
	PipelineGoalCreated        = "GoalCreated"
	PipelineGoalCompleted      = "GoalCompleted"
	PipelineEngagementSweep    = "EngagementSweep"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid event payload")
)

var pipelines = map[string]string{
	TranscriptUploaded: PipelineTranscriptUploaded,
	PracticeGenerate:   PipelinePracticeRequested,
	GoalCreated:        PipelineGoalCreated,
	GoalCompleted:      PipelineGoalCompleted,
	EngagementSweep:    PipelineEngagementSweep,
}

// Event is an inbound domain event. ID is the producer's delivery id; when it
// is empty the dedupe key is derived from the payload.
type Event struct {
	Name        string          `json:"name"`
	ID          string          `json:"id,omitempty"`
	Data        json.RawMessage `json:"data"`
	DedupeKey   string          `json:"-"`
	ParentRunID *uuid.UUID      `json:"-"`
	ParentStep  string          `json:"-"`
}

type TranscriptUploadedData struct {
	SessionID     uuid.UUID `json:"sessionId"`
	StudentID     uuid.UUID `json:"studentId"`
	Transcript    string    `json:"transcript"`
	TranscriptRef string    `json:"transcriptRef"`
}

type PracticeGenerateData struct {
	PracticeID uuid.UUID   `json:"practiceId"`
	SessionID  *uuid.UUID  `json:"sessionId,omitempty"`
	StudentID  uuid.UUID   `json:"studentId"`
	ConceptIDs []uuid.UUID `json:"conceptIds,omitempty"`
}

type GoalCreatedData struct {
	GoalID      uuid.UUID `json:"goalId"`
	StudentID   uuid.UUID `json:"studentId"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
}

type GoalCompletedData struct {
	GoalID    uuid.UUID `json:"goalId"`
	StudentID uuid.UUID `json:"studentId"`
	Subject   string    `json:"subject"`
}

// EngagementSweepData identifies one scheduled slot, e.g. "2026-10-19".
type EngagementSweepData struct {
	Slot string `json:"slot"`
}

// New builds an event from a typed payload.
func New(name string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: b}, nil
}

// PipelineFor maps an event name to the pipeline it starts.
func PipelineFor(name string) (string, bool) {
	p, ok := pipelines[strings.TrimSpace(name)]
	return p, ok
}

func Known(name string) bool {
	_, ok := pipelines[strings.TrimSpace(name)]
	return ok
}

// Subject describes what a validated event is about.
type Subject struct {
	EntityType string
	EntityID   *uuid.UUID
	StudentID  *uuid.UUID
}

// Validate decodes ev.Data for its event name and checks required fields.
func Validate(ev Event) (Subject, error) {
	switch strings.TrimSpace(ev.Name) {
	case TranscriptUploaded:
		var d TranscriptUploadedData
		if err := decode(ev, &d); err != nil {
			return Subject{}, err
		}
		if d.SessionID == uuid.Nil || d.StudentID == uuid.Nil {
			return Subject{}, invalid(ev.Name, "sessionId and studentId are required")
		}
		if strings.TrimSpace(d.Transcript) == "" && strings.TrimSpace(d.TranscriptRef) == "" {
			return Subject{}, invalid(ev.Name, "transcript or transcriptRef is required")
		}
		return subject("session", d.SessionID, d.StudentID), nil
	case PracticeGenerate:
		var d PracticeGenerateData
		if err := decode(ev, &d); err != nil {
			return Subject{}, err
		}
		if d.PracticeID == uuid.Nil || d.StudentID == uuid.Nil {
			return Subject{}, invalid(ev.Name, "practiceId and studentId are required")
		}
		return subject("practice", d.PracticeID, d.StudentID), nil
	case GoalCreated:
		var d GoalCreatedData
		if err := decode(ev, &d); err != nil {
			return Subject{}, err
		}
		if d.GoalID == uuid.Nil || d.StudentID == uuid.Nil {
			return Subject{}, invalid(ev.Name, "goalId and studentId are required")
		}
		return subject("goal", d.GoalID, d.StudentID), nil
	case GoalCompleted:
		var d GoalCompletedData
		if err := decode(ev, &d); err != nil {
			return Subject{}, err
		}
		if d.GoalID == uuid.Nil || d.StudentID == uuid.Nil {
			return Subject{}, invalid(ev.Name, "goalId and studentId are required")
		}
		return subject("goal", d.GoalID, d.StudentID), nil
	case EngagementSweep:
		var d EngagementSweepData
		if err := decode(ev, &d); err != nil {
			return Subject{}, err
		}
		if strings.TrimSpace(d.Slot) == "" {
			return Subject{}, invalid(ev.Name, "slot is required")
		}
		return Subject{EntityType: "sweep"}, nil
	default:
		return Subject{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
}

// Key returns the idempotency key for ev. An explicit DedupeKey wins, then the
// producer id, then a digest of the payload so redelivery of the same payload
// maps to the same run.
func Key(ev Event) string {
	if k := strings.TrimSpace(ev.DedupeKey); k != "" {
		return k
	}
	if id := strings.TrimSpace(ev.ID); id != "" {
		return ev.Name + ":id:" + id
	}
	if ev.Name == EngagementSweep {
		var d EngagementSweepData
		if json.Unmarshal(ev.Data, &d) == nil && d.Slot != "" {
			return ev.Name + ":" + d.Slot
		}
	}
	return ev.Name + ":sha:" + digest(ev.Data)
}

// FollowOnKey is the dedupe key a step uses for events it enqueues, so a
// retried step never enqueues twice.
func FollowOnKey(runID uuid.UUID, step, name string) string {
	return runID.String() + ":" + step + ":" + name
}

func digest(raw json.RawMessage) string {
	var v any
	canon := []byte(raw)
	if json.Unmarshal(raw, &v) == nil {
		if b, err := json.Marshal(v); err == nil {
			canon = b
		}
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:16])
}

func decode(ev Event, out any) error {
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return invalid(ev.Name, "data is required")
	}
	if err := json.Unmarshal(ev.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, ev.Name, err)
	}
	return nil
}

func invalid(name, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, name, msg)
}

func subject(entityType string, entityID, studentID uuid.UUID) Subject {
	return Subject{EntityType: entityType, EntityID: &entityID, StudentID: &studentID}
}
