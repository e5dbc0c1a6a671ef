package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

type scheduleJobRequest struct {
	Kind          string            `json:"kind"`
	UserID        string            `json:"user_id"`
	ApplicationID string            `json:"application_id"`
	ProgramID     string            `json:"program_id"`
	ScheduledFor  *time.Time        `json:"scheduled_for"`
	Payload       map[string]string `json:"payload"`
}

func (h *handler) scheduleJob(w http.ResponseWriter, r *http.Request) {
	var req scheduleJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	input := domain.ScheduleInput{
		Kind:          domain.JobKind(strings.TrimSpace(req.Kind)),
		UserID:        req.UserID,
		ApplicationID: req.ApplicationID,
		ProgramID:     req.ProgramID,
		Payload:       req.Payload,
	}
	if req.ScheduledFor != nil {
		input.ScheduledFor = *req.ScheduledFor
	}
	job, err := h.deps.Jobs.Schedule(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJob(job))
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(job))
}

func (h *handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Jobs.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(job))
}
