// Package observability exposes tracker domain activity as Prometheus metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

// Namespace prefixes every tracker collector.
const Namespace = "applytrack_tracker"

// Metrics implements domain.Observer and records scheduler tick durations.
type Metrics struct {
	transitions *prometheus.CounterVec
	reminders   *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	tick        *prometheus.HistogramVec
}

// NewMetrics registers tracker collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "status_transitions_total",
			Help:      "Applied application status transitions.",
		}, []string{"from", "to"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deadline_reminders_created_total",
			Help:      "Deadline reminders created by the sweep, by threshold.",
		}, []string{"threshold"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs processed by the drain, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		tick: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of one sweep and drain tick.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{m.transitions, m.reminders, m.jobs, m.tick} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TransitionApplied counts one applied transition.
func (m *Metrics) TransitionApplied(from, to domain.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// ReminderCreated counts one reminder.
func (m *Metrics) ReminderCreated(threshold int) {
	m.reminders.WithLabelValues(strconv.Itoa(threshold)).Inc()
}

// JobProcessed counts one job outcome. Retries report pending.
func (m *Metrics) JobProcessed(kind domain.JobKind, outcome domain.JobStatus) {
	m.jobs.WithLabelValues(string(kind), string(outcome)).Inc()
}

// TickObserved records one scheduler tick.
func (m *Metrics) TickObserved(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tick.WithLabelValues(result).Observe(duration.Seconds())
}

var _ domain.Observer = (*Metrics)(nil)
