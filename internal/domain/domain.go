package domain

import (
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/notify"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/tutoring"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/user"
)

type Student = user.Student

type Session = tutoring.Session
type SessionAnalysis = tutoring.SessionAnalysis
type ObservedConcept = tutoring.ObservedConcept
type Concept = tutoring.Concept
type StudentConceptMastery = tutoring.StudentConceptMastery
type Practice = tutoring.Practice
type Question = tutoring.Question

type Goal = goals.Goal
type Suggestion = goals.Suggestion

type Notification = notify.Notification

type WorkflowRun = jobs.WorkflowRun
type WorkflowStep = jobs.WorkflowStep

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Student{},
		&Session{},
		&Concept{},
		&StudentConceptMastery{},
		&Practice{},
		&Goal{},
		&Suggestion{},
		&Notification{},
		&WorkflowRun{},
		&WorkflowStep{},
	}
}
