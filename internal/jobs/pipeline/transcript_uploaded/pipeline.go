package transcript_uploaded

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/tutoring"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	jobrt "github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/steps"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	var data events.TranscriptUploadedData
	if err := jc.DecodePayload(&data); err != nil || data.SessionID == uuid.Nil || data.StudentID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing sessionId or studentId"))
		return nil
	}

	pl, err := p.defs.Bind(p.Type(), map[string]orchestrator.StepFunc{
		stepExtractInsights: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return p.extractInsights(jc, data)
		},
		stepChunkAndEmbed: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return p.chunkAndEmbed(jc, data)
		},
		stepStoreVectors: func(jc *jobrt.Context, st *orchestrator.State) (any, error) {
			return p.storeVectors(jc, st, data)
		},
		stepPersistAnalysis: func(jc *jobrt.Context, st *orchestrator.State) (any, error) {
			return p.persistAnalysis(jc, st, data)
		},
		stepReconcile: func(jc *jobrt.Context, st *orchestrator.State) (any, error) {
			return p.reconcile(jc, st, data)
		},
		stepEnqueuePractice: func(jc *jobrt.Context, st *orchestrator.State) (any, error) {
			return p.enqueuePractice(jc, st, data)
		},
		stepCompleteSession: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return p.completeSession(jc, data)
		},
	})
	if err != nil {
		jc.Fail("validate", orchestrator.Permanent(err))
		return nil
	}
	pl.OnFailure = func(jc *jobrt.Context, step string, err error) {
		p.setStatus(jc.Ctx, data.SessionID, tutoring.AnalysisFailed, err.Error())
	}
	pl.Result = func(st *orchestrator.State) any {
		var rec steps.ReconcileMasteryOutput
		var enq enqueueOutput
		_ = st.Decode(stepReconcile, &rec)
		_ = st.Decode(stepEnqueuePractice, &enq)
		return map[string]any{
			"session_id":       data.SessionID.String(),
			"concepts_updated": rec.Updated,
			"practice_id":      enq.PracticeID,
			"practice_run_id":  enq.RunID,
		}
	}

	p.setStatus(jc.Ctx, data.SessionID, tutoring.AnalysisProcessing, "")
	return p.engine.Run(jc, pl)
}

// setStatus records processing on start and failed from OnFailure. A failed
// session keeps no analysis result. Completion is journaled by
// complete-session instead.
func (p *Pipeline) setStatus(ctx context.Context, sessionID uuid.UUID, status, errMsg string) {
	updates := map[string]interface{}{"analysis_status": status, "analysis_error": errMsg}
	var err error
	if status == tutoring.AnalysisProcessing {
		_, err = p.sessions.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, sessionID, []string{tutoring.AnalysisProcessing}, updates)
	} else {
		updates["analysis_result"] = nil
		updates["analyzed_at"] = nil
		err = p.sessions.UpdateFields(dbctx.Context{Ctx: ctx}, sessionID, updates)
	}
	if err != nil {
		p.log.Warn("Session status update failed", "session_id", sessionID.String(), "status", status, "error", err)
	}
}

// completeSession is the last step, so a session reads completed only once
// every earlier step has succeeded. A failed write retries like any step.
func (p *Pipeline) completeSession(jc *jobrt.Context, data events.TranscriptUploadedData) (any, error) {
	if err := p.sessions.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, data.SessionID, map[string]interface{}{
		"analysis_status": tutoring.AnalysisCompleted,
		"analysis_error":  "",
	}); err != nil {
		return nil, err
	}
	return map[string]any{"analysis_status": tutoring.AnalysisCompleted}, nil
}

func (p *Pipeline) loadSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	s, err := p.sessions.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, orchestrator.Permanent(fmt.Errorf("session %s not found", id))
	}
	return s, nil
}

// transcript prefers the event's text, then the stored text, then the
// storage reference from either.
func (p *Pipeline) transcript(ctx context.Context, data events.TranscriptUploadedData, s *types.Session) (string, error) {
	return steps.ResolveTranscript(ctx, p.loader,
		firstNonEmpty(data.Transcript, s.Transcript),
		firstNonEmpty(data.TranscriptRef, s.TranscriptRef))
}

func (p *Pipeline) extractInsights(jc *jobrt.Context, data events.TranscriptUploadedData) (any, error) {
	s, err := p.loadSession(jc.Ctx, data.SessionID)
	if err != nil {
		return nil, err
	}
	text, err := p.transcript(jc.Ctx, data, s)
	if err != nil {
		return nil, err
	}
	return steps.ExtractInsights(jc.Ctx, steps.ExtractInsightsDeps{LLM: p.ai, Log: jc.Log}, steps.ExtractInsightsInput{
		Subject:    s.Subject,
		Transcript: text,
	})
}

func (p *Pipeline) chunkAndEmbed(jc *jobrt.Context, data events.TranscriptUploadedData) (any, error) {
	s, err := p.loadSession(jc.Ctx, data.SessionID)
	if err != nil {
		return nil, err
	}
	text, err := p.transcript(jc.Ctx, data, s)
	if err != nil {
		return nil, err
	}
	return steps.EmbedChunks(jc.Ctx, steps.EmbedChunksDeps{LLM: p.ai, Log: jc.Log}, steps.EmbedChunksInput{
		Transcript: text,
		MaxWords:   p.chunkWords,
	})
}

func (p *Pipeline) storeVectors(jc *jobrt.Context, st *orchestrator.State, data events.TranscriptUploadedData) (any, error) {
	var analysis types.SessionAnalysis
	if err := st.Decode(stepExtractInsights, &analysis); err != nil {
		return nil, err
	}
	var emb steps.EmbedChunksOutput
	if err := st.Decode(stepChunkAndEmbed, &emb); err != nil {
		return nil, err
	}
	s, err := p.loadSession(jc.Ctx, data.SessionID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(analysis.Concepts))
	for _, c := range analysis.Concepts {
		names = append(names, c.Name)
	}
	return steps.StoreVectors(jc.Ctx, steps.StoreVectorsDeps{Vec: p.vec, Log: jc.Log}, steps.StoreVectorsInput{
		SessionID: data.SessionID,
		StudentID: data.StudentID,
		Topics:    analysis.Topics,
		Concepts:  names,
		At:        s.StartedAt,
		Chunks:    emb.Chunks,
	})
}

func (p *Pipeline) persistAnalysis(jc *jobrt.Context, st *orchestrator.State, data events.TranscriptUploadedData) (any, error) {
	var analysis types.SessionAnalysis
	if err := st.Decode(stepExtractInsights, &analysis); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, orchestrator.Permanent(err)
	}
	now := time.Now().UTC()
	if err := p.sessions.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, data.SessionID, map[string]interface{}{
		"analysis_result": datatypes.JSON(raw),
		"analyzed_at":     now,
		"analysis_error":  "",
	}); err != nil {
		return nil, err
	}
	return map[string]any{"analyzed_at": now, "concepts": len(analysis.Concepts)}, nil
}

func (p *Pipeline) reconcile(jc *jobrt.Context, st *orchestrator.State, data events.TranscriptUploadedData) (any, error) {
	var analysis types.SessionAnalysis
	if err := st.Decode(stepExtractInsights, &analysis); err != nil {
		return nil, err
	}
	s, err := p.loadSession(jc.Ctx, data.SessionID)
	if err != nil {
		return nil, err
	}
	return steps.ReconcileMastery(jc.Ctx, steps.ReconcileMasteryDeps{
		DB:       p.db,
		Concepts: p.concepts,
		Mastery:  p.mastery,
		Graph:    p.graph,
		Log:      jc.Log,
	}, steps.ReconcileMasteryInput{
		StudentID: data.StudentID,
		Subject:   s.Subject,
		Observed:  analysis.Concepts,
		Now:       time.Now(),
	})
}

type enqueueOutput struct {
	PracticeID string `json:"practiceId"`
	RunID      string `json:"runId"`
}

// enqueuePractice creates the placeholder practice row and hands it to the
// practice pipeline. The row id derives from this run so a retry reuses it.
func (p *Pipeline) enqueuePractice(jc *jobrt.Context, st *orchestrator.State, data events.TranscriptUploadedData) (any, error) {
	var rec steps.ReconcileMasteryOutput
	if err := st.Decode(stepReconcile, &rec); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	practiceID := uuid.NewSHA1(jc.Run.ID, []byte("practice"))
	existing, err := p.practices.GetByID(dbc, practiceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		sessionID := data.SessionID
		if err := p.practices.Create(dbc, &types.Practice{
			ID:        practiceID,
			StudentID: data.StudentID,
			SessionID: &sessionID,
			Status:    tutoring.PracticeAssigned,
		}); err != nil {
			return nil, err
		}
	}

	sessionID := data.SessionID
	run, err := jc.Enqueue(stepEnqueuePractice, events.PracticeGenerate, events.PracticeGenerateData{
		PracticeID: practiceID,
		SessionID:  &sessionID,
		StudentID:  data.StudentID,
		ConceptIDs: rec.ConceptIDs,
	})
	if err != nil {
		return nil, err
	}
	return enqueueOutput{PracticeID: practiceID.String(), RunID: run.ID.String()}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
