package repos

import (
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/notify"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/tutoring"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/user"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type StudentRepo = user.StudentRepo

type SessionRepo = tutoring.SessionRepo
type ConceptRepo = tutoring.ConceptRepo
type MasteryRepo = tutoring.MasteryRepo
type PracticeRepo = tutoring.PracticeRepo

type GoalRepo = goals.GoalRepo
type SuggestionRepo = goals.SuggestionRepo

type NotificationRepo = notify.NotificationRepo

type WorkflowRunRepo = jobs.WorkflowRunRepo
type WorkflowStepRepo = jobs.WorkflowStepRepo

// Set bundles every repo built over one *gorm.DB.
type Set struct {
	Students      StudentRepo
	Sessions      SessionRepo
	Concepts      ConceptRepo
	Mastery       MasteryRepo
	Practices     PracticeRepo
	Goals         GoalRepo
	Suggestions   SuggestionRepo
	Notifications NotificationRepo
	Runs          WorkflowRunRepo
	Steps         WorkflowStepRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Students:      user.NewStudentRepo(db, log),
		Sessions:      tutoring.NewSessionRepo(db, log),
		Concepts:      tutoring.NewConceptRepo(db, log),
		Mastery:       tutoring.NewMasteryRepo(db, log),
		Practices:     tutoring.NewPracticeRepo(db, log),
		Goals:         goals.NewGoalRepo(db, log),
		Suggestions:   goals.NewSuggestionRepo(db, log),
		Notifications: notify.NewNotificationRepo(db, log),
		Runs:          jobs.NewWorkflowRunRepo(db, log),
		Steps:         jobs.NewWorkflowStepRepo(db, log),
	}
}
