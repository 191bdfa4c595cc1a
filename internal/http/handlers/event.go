package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	httpMW "github.com/andychuong/ai-study-companion-sub000/internal/http/middleware"
	"github.com/andychuong/ai-study-companion-sub000/internal/http/response"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/apierr"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/ctxutil"
	"github.com/andychuong/ai-study-companion-sub000/internal/services"
)

// SweepTrigger starts an engagement sweep outside the schedule.
type SweepTrigger interface {
	TriggerNow(ctx context.Context) (*types.WorkflowRun, error)
}

type EventHandler struct {
	events services.EventService
	sweeps SweepTrigger
}

func NewEventHandler(evs services.EventService, sweeps SweepTrigger) *EventHandler {
	return &EventHandler{events: evs, sweeps: sweeps}
}

type ingestRequest struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type runAccepted struct {
	RunID        uuid.UUID `json:"run_id"`
	WorkflowType string    `json:"workflow_type"`
	Status       string    `json:"status"`
	Created      bool      `json:"created"`
}

// POST /internal/events/:name
func (h *EventHandler) Ingest(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if !events.Known(name) {
		response.RespondError(c, http.StatusNotFound, "unknown_event", events.ErrUnknownEvent)
		return
	}
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if td := ctxutil.GetTraceData(c.Request.Context()); id == "" && td != nil {
		id = td.EventID
	}
	run, created, err := h.events.Enqueue(c.Request.Context(), events.Event{
		Name: name,
		ID:   id,
		Data: req.Data,
	})
	if run != nil {
		tagRun(c, run, created)
	}
	if err != nil {
		response.RespondAPIError(c, enqueueError(run, err))
		return
	}
	response.RespondAccepted(c, accepted(run, created))
}

// GET /internal/runs/:id
func (h *EventHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	view, err := h.events.GetRun(c.Request.Context(), id)
	if errors.Is(err, services.ErrRunNotFound) {
		response.RespondError(c, http.StatusNotFound, "run_not_found", err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_run_failed", err)
		return
	}
	tagRun(c, view.Run, false)
	response.RespondOK(c, gin.H{"run": view.Run, "steps": view.Steps})
}

// POST /internal/sweeps/engagement
func (h *EventHandler) TriggerSweep(c *gin.Context) {
	if h.sweeps == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "sweeps_disabled", errors.New("engagement sweep is not configured"))
		return
	}
	run, err := h.sweeps.TriggerNow(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "sweep_failed", err)
		return
	}
	tagRun(c, run, true)
	response.RespondAccepted(c, accepted(run, true))
}

// enqueueError maps an Enqueue failure to its HTTP status. A run that exists
// but could not be dispatched is reported as a gateway failure so the
// producer redelivers, which dispatches it again.
func enqueueError(run *types.WorkflowRun, err error) error {
	switch {
	case errors.Is(err, events.ErrUnknownEvent):
		return apierr.New(http.StatusNotFound, "unknown_event", err)
	case errors.Is(err, events.ErrInvalidPayload):
		return apierr.New(http.StatusBadRequest, "invalid_payload", err)
	case run == nil:
		return apierr.New(http.StatusInternalServerError, "enqueue_failed", err)
	default:
		return apierr.New(http.StatusBadGateway, "dispatch_failed", err)
	}
}

func tagRun(c *gin.Context, run *types.WorkflowRun, created bool) {
	httpMW.TagRun(c, httpMW.RunTag{ID: run.ID, WorkflowType: run.WorkflowType, Status: run.Status, Created: created})
}

func accepted(run *types.WorkflowRun, created bool) runAccepted {
	return runAccepted{RunID: run.ID, WorkflowType: run.WorkflowType, Status: run.Status, Created: created}
}
