package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

type createApplicationRequest struct {
	UserID       string `json:"user_id"`
	ProgramID    string `json:"program_id"`
	ProgramLabel string `json:"program_label"`
	Status       string `json:"status"`
	Deadline     string `json:"deadline"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Note   string `json:"note"`
}

func (h *handler) createApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var deadline time.Time
	if raw := strings.TrimSpace(req.Deadline); raw != "" {
		parsed, err := time.Parse(domain.DeadlineLayout, raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: deadline must be YYYY-MM-DD", errBadRequestBody))
			return
		}
		deadline = parsed
	}
	application, err := h.deps.Status.CreateApplication(r.Context(), domain.CreateApplicationInput{
		UserID:       req.UserID,
		ProgramID:    req.ProgramID,
		ProgramLabel: req.ProgramLabel,
		Status:       domain.Status(strings.TrimSpace(req.Status)),
		Deadline:     deadline,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplication(application))
}

func (h *handler) getApplication(w http.ResponseWriter, r *http.Request) {
	application, err := h.deps.Status.GetApplication(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplication(application))
}

func (h *handler) transitionApplication(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	application, err := h.deps.Status.Transition(r.Context(), domain.TransitionInput{
		ApplicationID: chi.URLParam(r, "applicationID"),
		Target:        domain.Status(strings.TrimSpace(req.Status)),
		Actor:         domain.ActorKind(strings.TrimSpace(req.Actor)),
		Note:          req.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplication(application))
}

func (h *handler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Status.ListHistory(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": toHistory(entries)})
}
