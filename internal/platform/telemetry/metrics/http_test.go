package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg, "test")
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/items/1", "/items/2", "/ok"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/items/{id}", http.MethodGet, "418")); got != 2 {
		t.Fatalf("items requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/ok", http.MethodGet, "200")); got != 1 {
		t.Fatalf("ok requests = %v, want 1", got)
	}
}

func TestNewHTTPRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewHTTP(reg, "test"); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewHTTP(reg, "test"); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
