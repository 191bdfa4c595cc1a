package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/notify"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/httpx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

const (
	EngagementWindow      = 7 * 24 * time.Hour
	MinEngagementSessions = 3

	studentPageSize  = 200
	nudgeConcurrency = 4
)

// EngagementCandidate is a student who has not reached the session target
// within the window that follows their first session.
type EngagementCandidate struct {
	StudentID      uuid.UUID `json:"studentId"`
	Name           string    `json:"name"`
	FirstSessionAt time.Time `json:"firstSessionAt"`
	WindowEnd      time.Time `json:"windowEnd"`
	Sessions       int       `json:"sessions"`
	Elapsed        bool      `json:"elapsed"`
}

type ScanEngagementDeps struct {
	Students repos.StudentRepo
	Sessions repos.SessionRepo
	Log      *logger.Logger
}

type ScanEngagementInput struct {
	Now time.Time
	// Grace keeps a just-elapsed window eligible until the next sweep. It
	// should equal the sweep interval.
	Grace time.Duration
}

type ScanEngagementOutput struct {
	Scanned    int                   `json:"scanned"`
	Candidates []EngagementCandidate `json:"candidates"`
}

// ScanEngagement walks every student and returns those who qualify for a
// nudge: fewer than MinEngagementSessions sessions in
// [first session, first session + EngagementWindow), evaluated while the
// window is open or within Grace of closing.
func ScanEngagement(ctx context.Context, deps ScanEngagementDeps, in ScanEngagementInput) (ScanEngagementOutput, error) {
	out := ScanEngagementOutput{Candidates: []EngagementCandidate{}}
	if deps.Students == nil || deps.Sessions == nil {
		return out, fmt.Errorf("scan_engagement: missing deps")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	dbc := dbctx.Context{Ctx: ctx}

	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		page, err := deps.Students.ListPage(dbc, after, studentPageSize)
		if err != nil {
			return out, err
		}
		for _, s := range page {
			out.Scanned++
			c, ok, err := evaluateEngagement(dbc, deps.Sessions, s, now, in.Grace)
			if err != nil {
				return out, fmt.Errorf("student %s: %w", s.ID, err)
			}
			if ok {
				out.Candidates = append(out.Candidates, c)
			}
		}
		if len(page) < studentPageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	if deps.Log != nil {
		deps.Log.Info("Engagement scan finished", "scanned", out.Scanned, "candidates", len(out.Candidates))
	}
	return out, nil
}

func evaluateEngagement(dbc dbctx.Context, sessions repos.SessionRepo, s *types.Student, now time.Time, grace time.Duration) (EngagementCandidate, bool, error) {
	c := EngagementCandidate{StudentID: s.ID, Name: s.Name}
	first, err := sessions.FirstByStudent(dbc, s.ID)
	if err != nil || first == nil {
		return c, false, err
	}
	c.FirstSessionAt = first.StartedAt.UTC()
	c.WindowEnd = c.FirstSessionAt.Add(EngagementWindow)
	if now.Before(c.FirstSessionAt) || !now.Before(c.WindowEnd.Add(grace)) {
		return c, false, nil
	}
	n, err := sessions.CountBetween(dbc, s.ID, c.FirstSessionAt, c.WindowEnd)
	if err != nil {
		return c, false, err
	}
	c.Sessions = int(n)
	c.Elapsed = !now.Before(c.WindowEnd)
	return c, c.Sessions < MinEngagementSessions, nil
}

// NudgeDraft is a generated message for one candidate.
type NudgeDraft struct {
	StudentID  uuid.UUID `json:"studentId"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ActionText string    `json:"actionText"`
	Urgency    string    `json:"urgency"`
	Sessions   int       `json:"sessions"`
	WindowEnd  time.Time `json:"windowEnd"`
}

type GenerateNudgesDeps struct {
	LLM llm.Generator
	Log *logger.Logger
}

type GenerateNudgesInput struct {
	Candidates []EngagementCandidate
	Now        time.Time
}

type GenerateNudgesOutput struct {
	Nudges []NudgeDraft `json:"nudges"`
	// Failed lists students whose reply was unusable. They are skipped for
	// this sweep.
	Failed []uuid.UUID `json:"failed"`
}

type nudgeWire struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	ActionText string `json:"actionText"`
}

// GenerateNudges writes one message per candidate, a few at a time. A bad
// reply only drops that candidate. Retryable transport errors, or every
// candidate failing, fail the whole call.
func GenerateNudges(ctx context.Context, deps GenerateNudgesDeps, in GenerateNudgesInput) (GenerateNudgesOutput, error) {
	out := GenerateNudgesOutput{Nudges: []NudgeDraft{}, Failed: []uuid.UUID{}}
	if len(in.Candidates) == 0 {
		return out, nil
	}
	if deps.LLM == nil {
		return out, fmt.Errorf("generate_nudges: missing deps")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	drafts := make([]NudgeDraft, len(in.Candidates))
	errs := make([]error, len(in.Candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nudgeConcurrency)
	for i, c := range in.Candidates {
		g.Go(func() error {
			d, err := generateNudge(gctx, deps, c, now)
			if err != nil && (httpx.IsRetryableError(err) || gctx.Err() != nil) {
				return err
			}
			drafts[i], errs[i] = d, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	var last error
	for i, c := range in.Candidates {
		if errs[i] != nil {
			last = errs[i]
			out.Failed = append(out.Failed, c.StudentID)
			if deps.Log != nil {
				deps.Log.Warn("Nudge skipped", "student_id", c.StudentID, "error", errs[i])
			}
			continue
		}
		out.Nudges = append(out.Nudges, drafts[i])
	}
	if len(out.Nudges) == 0 {
		return out, fmt.Errorf("generate_nudges: all %d candidates failed: %w", len(in.Candidates), last)
	}
	return out, nil
}

func generateNudge(ctx context.Context, deps GenerateNudgesDeps, c EngagementCandidate, now time.Time) (NudgeDraft, error) {
	days := int(now.Sub(c.FirstSessionAt).Hours() / 24)
	p := prompts.EngagementNudge(c.Name, c.Sessions, MinEngagementSessions, days, c.Elapsed)
	done := llmTimer(deps.Log, "engagement_nudge", map[string]any{"student_id": c.StudentID.String()})
	raw, err := deps.LLM.GenerateJSON(ctx, p.System, p.User, prompts.SchemaEngagementNudge, prompts.EngagementNudgeSchema())
	done(err)
	if err != nil {
		return NudgeDraft{}, err
	}
	var w nudgeWire
	if err := llm.DecodeJSON(raw, &w); err != nil {
		return NudgeDraft{}, err
	}
	w.Title, w.Message = strings.TrimSpace(w.Title), strings.TrimSpace(w.Message)
	if w.Title == "" || w.Message == "" {
		return NudgeDraft{}, &llm.ContractError{Err: fmt.Errorf("nudge for %s has an empty title or message", c.StudentID)}
	}
	urgency := notify.UrgencyMedium
	if c.Elapsed {
		urgency = notify.UrgencyHigh
	}
	return NudgeDraft{
		StudentID:  c.StudentID,
		Title:      w.Title,
		Message:    w.Message,
		ActionText: strings.TrimSpace(w.ActionText),
		Urgency:    urgency,
		Sessions:   c.Sessions,
		WindowEnd:  c.WindowEnd,
	}, nil
}

// NudgeActionURL is where a nudge's call to action points.
const NudgeActionURL = "/sessions/book"

func nudgeID(runID, studentID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(runID, []byte("nudge:"+studentID.String()))
}

type PersistNudgesDeps struct {
	Notifications repos.NotificationRepo
}

type PersistNudgesInput struct {
	RunID  uuid.UUID
	Nudges []NudgeDraft
}

type PersistNudgesOutput struct {
	Inserted int64 `json:"inserted"`
}

// PersistNudges stores one notification per student per sweep run.
func PersistNudges(ctx context.Context, deps PersistNudgesDeps, in PersistNudgesInput) (PersistNudgesOutput, error) {
	out := PersistNudgesOutput{}
	if deps.Notifications == nil {
		return out, fmt.Errorf("persist_nudges: missing deps")
	}
	seen := map[uuid.UUID]bool{}
	rows := make([]*types.Notification, 0, len(in.Nudges))
	for _, n := range in.Nudges {
		if n.StudentID == uuid.Nil || seen[n.StudentID] {
			continue
		}
		seen[n.StudentID] = true
		meta, _ := json.Marshal(map[string]any{
			"sessions":       n.Sessions,
			"target":         MinEngagementSessions,
			"window_ends_at": n.WindowEnd.UTC().Format(time.RFC3339),
			"run_id":         in.RunID.String(),
		})
		rows = append(rows, &types.Notification{
			ID:         nudgeID(in.RunID, n.StudentID),
			StudentID:  n.StudentID,
			Type:       notify.TypeEngagementNudge,
			Title:      n.Title,
			Message:    n.Message,
			ActionText: n.ActionText,
			ActionURL:  NudgeActionURL,
			Urgency:    n.Urgency,
			Metadata:   datatypes.JSON(meta),
		})
	}
	if len(rows) == 0 {
		return out, nil
	}
	n, err := deps.Notifications.CreateIgnoreExisting(dbctx.Context{Ctx: ctx}, rows)
	if err != nil {
		return out, err
	}
	out.Inserted = n
	return out, nil
}
