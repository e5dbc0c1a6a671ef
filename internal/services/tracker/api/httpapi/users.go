package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/applytrack/internal/platform/i18n/catalog"
	"github.com/louisbranch/applytrack/internal/platform/requestctx"
	"github.com/louisbranch/applytrack/internal/services/tracker/dispatch/inbox"
	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

type profileRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Locale      string `json:"locale"`
}

type ruleRequest struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Thresholds []int    `json:"thresholds"`
	Channels   []string `json:"channels"`
	Active     *bool    `json:"active"`
}

func (h *handler) putProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	profile := domain.UserProfile{
		UserID:      requestctx.UserIDFromContext(r.Context()),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       strings.TrimSpace(req.Email),
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		profile.Locale = catalog.Default().ResolveLocale(locale)
	}
	if err := h.deps.Profiles.PutUserProfile(r.Context(), profile); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(profile))
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.deps.Profiles.GetUserProfile(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(profile))
}

func (h *handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.deps.Rules.ListRules(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": toRules(rules)})
}

func (h *handler) putRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule, err := h.deps.Rules.PutRule(r.Context(), domain.PutRuleInput{
		UserID:     requestctx.UserIDFromContext(r.Context()),
		RuleID:     req.ID,
		Label:      req.Label,
		Thresholds: req.Thresholds,
		Channels:   req.Channels,
		Active:     active,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRule(rule))
}

func (h *handler) ensureDefaultRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.deps.Rules.EnsureDefaultRules(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": toRules(rules)})
}

func (h *handler) disableRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.deps.Rules.DisableRule(r.Context(), requestctx.UserIDFromContext(r.Context()), chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRule(rule))
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.UserIDFromContext(r.Context())
	query := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, errors.Join(errBadRequestBody, errors.New("page_size must be a non-negative integer")))
			return
		}
		pageSize = parsed
	}
	page, err := h.deps.Inbox.ListInbox(r.Context(), inbox.ListInboxInput{
		RecipientUserID: userID,
		PageSize:        pageSize,
		PageToken:       query.Get("page_token"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread, err := h.deps.Inbox.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := inboxResponse{
		Notifications: make([]notificationResponse, 0, len(page.Notifications)),
		NextPageToken: page.NextPageToken,
		UnreadCount:   unread,
	}
	for _, record := range page.Notifications {
		resp.Notifications = append(resp.Notifications, toNotification(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	record, err := h.deps.Inbox.MarkRead(r.Context(), requestctx.UserIDFromContext(r.Context()), chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotification(record))
}
