package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/applytrack/internal/platform/errors"
)

// ScheduleInput requests a caller-owned deferred notification.
type ScheduleInput struct {
	Kind          JobKind
	UserID        string
	ApplicationID string
	ProgramID     string
	ScheduledFor  time.Time
	Payload       map[string]string
}

// JobService schedules and cancels jobs outside the reminder sweep.
type JobService struct {
	store JobStore
	opts  ServiceOptions
}

// NewJobService constructs job use-cases.
func NewJobService(store JobStore, opts ServiceOptions) *JobService {
	return &JobService{store: store, opts: opts.withDefaults()}
}

// Schedule enqueues a status_update or custom job. Deadline jobs are only
// created by the reminder sweep. A zero ScheduledFor means now.
func (s *JobService) Schedule(ctx context.Context, input ScheduleInput) (Job, error) {
	if s == nil || s.store == nil {
		return Job{}, ErrStoreNotConfigured
	}
	if input.Kind != JobKindStatusUpdate && input.Kind != JobKindCustom {
		return Job{}, apperrors.WithMetadata(apperrors.CodeJobInvalid, "unsupported job kind "+string(input.Kind),
			map[string]string{"Kind": string(input.Kind)})
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Job{}, apperrors.New(apperrors.CodeJobInvalid, "user id is required")
	}

	jobID, err := s.opts.NewID()
	if err != nil {
		return Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.opts.Clock().UTC()
	scheduledFor := input.ScheduledFor.UTC()
	if input.ScheduledFor.IsZero() {
		scheduledFor = now
	}
	job := Job{
		ID:            jobID,
		Kind:          input.Kind,
		UserID:        userID,
		ApplicationID: strings.TrimSpace(input.ApplicationID),
		ProgramID:     strings.TrimSpace(input.ProgramID),
		ScheduledFor:  scheduledFor,
		Status:        JobPending,
		Payload:       clonePayload(input.Payload),
		CreatedAt:     now,
	}
	if err := s.store.EnqueueJob(ctx, job); err != nil {
		return Job{}, errStoreWrite("enqueue job", err)
	}
	return job, nil
}

// Get returns one job.
func (s *JobService) Get(ctx context.Context, jobID string) (Job, error) {
	if s == nil || s.store == nil {
		return Job{}, ErrStoreNotConfigured
	}
	jobID = strings.TrimSpace(jobID)
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return Job{}, errJobNotFound(jobID)
	}
	return job, err
}

// Cancel moves a pending job to cancelled. Jobs already drained keep their
// outcome.
func (s *JobService) Cancel(ctx context.Context, jobID string) (Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobPending {
		return Job{}, errJobNotPending(job)
	}
	now := s.opts.Clock().UTC()
	if err := s.store.CancelJob(ctx, job.ID, now); err != nil {
		if errors.Is(err, ErrConflict) {
			if current, getErr := s.Get(ctx, job.ID); getErr == nil {
				job = current
			}
			return Job{}, errJobNotPending(job)
		}
		return Job{}, errStoreWrite("cancel job", err)
	}
	job.Status = JobCancelled
	job.ProcessedAt = &now
	return job, nil
}

func errJobNotPending(job Job) error {
	return apperrors.WithMetadata(apperrors.CodeJobNotPending, "job "+job.ID+" is "+string(job.Status),
		map[string]string{"JobID": job.ID, "Status": string(job.Status)})
}
