package domain

import (
	"log"
	"time"

	"github.com/louisbranch/applytrack/internal/platform/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("applytrack/tracker")

// Observer receives domain outcome counts, typically for metrics.
type Observer interface {
	TransitionApplied(from Status, to Status)
	ReminderCreated(threshold int)
	JobProcessed(kind JobKind, outcome JobStatus)
}

type nopObserver struct{}

func (nopObserver) TransitionApplied(Status, Status) {}
func (nopObserver) ReminderCreated(int)              {}
func (nopObserver) JobProcessed(JobKind, JobStatus)  {}

// ServiceOptions carries the collaborators shared by tracker services.
// Zero values fall back to wall clock, random IDs, the standard logger and a
// no-op observer.
type ServiceOptions struct {
	Clock    func() time.Time
	NewID    func() (string, error)
	Logf     func(format string, args ...any)
	Observer Observer
}

func (o ServiceOptions) withDefaults() ServiceOptions {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewID == nil {
		o.NewID = id.NewID
	}
	if o.Logf == nil {
		o.Logf = log.Printf
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
