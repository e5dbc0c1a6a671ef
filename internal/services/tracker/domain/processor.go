package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/applytrack/internal/platform/timeouts"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultBatchSize is the drain batch limit used when none is given.
const DefaultBatchSize = 50

// RetryPolicy bounds automatic re-delivery of failed jobs. MaxAttempts of 1
// means every failure is terminal.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxDelay    time.Duration
}

// Delay returns the wait before the next attempt after attempt failures.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Fetched int
	Sent    int
	Failed  int
	Retried int
}

// Processed counts jobs whose attempt completed, in any outcome.
func (r DrainResult) Processed() int {
	return r.Sent + r.Failed + r.Retried
}

// JobProcessor drains due jobs through a dispatcher.
type JobProcessor struct {
	store           ProcessorStore
	dispatcher      Dispatcher
	policy          RetryPolicy
	dispatchTimeout time.Duration
	opts            ServiceOptions
}

// NewJobProcessor constructs the drain use-case.
func NewJobProcessor(store ProcessorStore, dispatcher Dispatcher, policy RetryPolicy, opts ServiceOptions) *JobProcessor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff <= 0 {
		policy.Backoff = time.Minute
	}
	return &JobProcessor{
		store:           store,
		dispatcher:      dispatcher,
		policy:          policy,
		dispatchTimeout: timeouts.Dispatch,
		opts:            opts.withDefaults(),
	}
}

// DrainDueJobs processes up to limit pending jobs due at now, oldest first and
// one at a time. A failing job is recorded and never stops the batch.
func (p *JobProcessor) DrainDueJobs(ctx context.Context, now time.Time, limit int) (_ DrainResult, err error) {
	if p == nil || p.store == nil {
		return DrainResult{}, ErrStoreNotConfigured
	}
	if p.dispatcher == nil {
		return DrainResult{}, ErrDispatcherNotConfigured
	}
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	ctx, span := tracer.Start(ctx, "tracker.jobs.drain")
	defer func() { endSpan(span, err) }()

	now = now.UTC()
	jobs, err := p.store.FetchDueJobs(ctx, now, limit)
	if err != nil {
		return DrainResult{}, fmt.Errorf("fetch due jobs: %w", err)
	}

	result := DrainResult{Fetched: len(jobs)}
	for _, job := range jobs {
		switch p.process(ctx, job, now) {
		case JobSent:
			result.Sent++
		case JobFailed:
			result.Failed++
		case JobPending:
			result.Retried++
		}
	}
	span.SetAttributes(
		attribute.Int("jobs.fetched", result.Fetched),
		attribute.Int("jobs.sent", result.Sent),
		attribute.Int("jobs.failed", result.Failed),
		attribute.Int("jobs.retried", result.Retried),
	)
	return result, nil
}

// process runs one attempt and returns the status the job was left in.
func (p *JobProcessor) process(ctx context.Context, job Job, now time.Time) JobStatus {
	attempt := job.AttemptCount + 1
	dispatchErr := p.dispatch(ctx, job)
	if dispatchErr == nil {
		p.record(ctx, job, JobStatusUpdate{JobID: job.ID, Status: JobSent, ProcessedAt: now, AttemptCount: attempt})
		return JobSent
	}

	p.opts.Logf("job %s (%s) attempt %d failed: %v", job.ID, job.Kind, attempt, dispatchErr)
	if !IsPermanent(dispatchErr) && attempt < p.policy.MaxAttempts {
		next := now.Add(p.policy.Delay(attempt))
		if err := p.store.RescheduleJob(ctx, job.ID, next, attempt, dispatchErr.Error()); err != nil {
			p.opts.Logf("reschedule job %s: %v", job.ID, err)
		}
		p.opts.Observer.JobProcessed(job.Kind, JobPending)
		return JobPending
	}
	p.record(ctx, job, JobStatusUpdate{
		JobID:        job.ID,
		Status:       JobFailed,
		ProcessedAt:  now,
		AttemptCount: attempt,
		LastError:    dispatchErr.Error(),
	})
	return JobFailed
}

func (p *JobProcessor) record(ctx context.Context, job Job, update JobStatusUpdate) {
	if err := p.store.UpdateJobStatus(ctx, update); err != nil {
		p.opts.Logf("mark job %s %s: %v", job.ID, update.Status, err)
	}
	p.opts.Observer.JobProcessed(job.Kind, update.Status)
}

func (p *JobProcessor) dispatch(ctx context.Context, job Job) error {
	if job.PayloadErr != nil {
		return Permanent(job.PayloadErr)
	}
	ctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()

	payload := clonePayload(job.Payload)
	if payload[PayloadDedupeKey] == "" {
		payload[PayloadDedupeKey] = "job:" + job.ID
	}
	payload[PayloadJobID] = job.ID
	if job.ApplicationID != "" && payload[PayloadApplicationID] == "" {
		payload[PayloadApplicationID] = job.ApplicationID
	}

	switch job.Kind {
	case JobKindDeadline:
		profile, err := p.store.GetUserProfile(ctx, job.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Permanent(fmt.Errorf("user profile %s not found", job.UserID))
			}
			return fmt.Errorf("get user profile %s: %w", job.UserID, err)
		}
		payload[PayloadRecipientEmail] = profile.Email
		payload[PayloadRecipientName] = profile.DisplayName
		payload[PayloadLocale] = profile.Locale
		return p.dispatcher.Dispatch(ctx, job.UserID, DispatchDeadlineReminder, payload)
	case JobKindStatusUpdate:
		return p.dispatcher.Dispatch(ctx, job.UserID, DispatchStatusChanged, payload)
	case JobKindCustom:
		return p.dispatcher.Dispatch(ctx, job.UserID, DispatchCustom, payload)
	default:
		return Permanent(fmt.Errorf("%w: %q", ErrUnknownJobKind, job.Kind))
	}
}
