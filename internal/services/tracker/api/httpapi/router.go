// Package httpapi exposes the tracker over a JSON HTTP surface.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/applytrack/internal/platform/requestctx"
	"github.com/louisbranch/applytrack/internal/platform/telemetry/metrics"
	"github.com/louisbranch/applytrack/internal/platform/timeouts"
	"github.com/louisbranch/applytrack/internal/services/tracker/dispatch/inbox"
	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

// Dependencies are the services the HTTP surface delegates to.
type Dependencies struct {
	Status   *domain.StatusService
	Rules    *domain.RuleService
	Jobs     *domain.JobService
	Profiles domain.ProfileStore
	Inbox    *inbox.Service
	// Ping reports store health for /healthz. Nil always reports healthy.
	Ping func(ctx context.Context) error
	// Gatherer backs /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer
	// Metrics records per-route request metrics when set.
	Metrics *metrics.HTTP
}

type handler struct {
	deps Dependencies
}

// NewRouter builds the tracker HTTP routes.
func NewRouter(deps Dependencies) http.Handler {
	h := &handler{deps: deps}
	r := chi.NewRouter()

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeouts.Request))
	r.Use(withLocale)

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.createApplication)
		r.Get("/{applicationID}", h.getApplication)
		r.Post("/{applicationID}/transitions", h.transitionApplication)
		r.Get("/{applicationID}/history", h.listHistory)
	})
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(withPathUser)
		r.Put("/profile", h.putProfile)
		r.Get("/profile", h.getProfile)
		r.Get("/rules", h.listRules)
		r.Post("/rules", h.putRule)
		r.Post("/rules/defaults", h.ensureDefaultRules)
		r.Delete("/rules/{ruleID}", h.disableRule)
		r.Get("/notifications", h.listNotifications)
		r.Post("/notifications/{notificationID}/read", h.markNotificationRead)
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.scheduleJob)
		r.Get("/{jobID}", h.getJob)
		r.Post("/{jobID}/cancel", h.cancelJob)
	})

	r.Get("/healthz", h.healthz)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// withLocale resolves the response locale once per request.
func withLocale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestctx.WithLocale(r.Context(), requestLocale(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withPathUser scopes /users/{userID} routes to the path user.
func withPathUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestctx.WithUserID(r.Context(), chi.URLParam(r, "userID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ping != nil {
		if err := h.deps.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
