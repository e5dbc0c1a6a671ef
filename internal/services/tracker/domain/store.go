package domain

import (
	"context"
	"time"
)

// ApplicationStore persists applications and their status history.
type ApplicationStore interface {
	GetApplication(ctx context.Context, applicationID string) (Application, error)
	PutApplication(ctx context.Context, application Application) error
	// UpdateApplicationStatus moves an application from one status to another.
	// It returns ErrConflict when the stored status is no longer from.
	UpdateApplicationStatus(ctx context.Context, applicationID string, from Status, to Status, updatedAt time.Time) error
	AppendStatusHistory(ctx context.Context, entry StatusHistoryEntry) error
	ListStatusHistory(ctx context.Context, applicationID string) ([]StatusHistoryEntry, error)
}

// TransitionStore is implemented by stores able to write a status change, or
// a new application, together with its history entry atomically.
type TransitionStore interface {
	// TransitionApplicationStatus moves an application from one status to
	// entry.Status at entry.CreatedAt and appends entry. It returns
	// ErrConflict when the stored status is no longer from.
	TransitionApplicationStatus(ctx context.Context, applicationID string, from Status, entry StatusHistoryEntry) error
	CreateApplicationWithHistory(ctx context.Context, application Application, entry StatusHistoryEntry) error
}

// SweepStore is the persistence boundary of one reminder sweep.
type SweepStore interface {
	// ListOpenApplicationsWithDeadlineBefore returns applications in one of
	// statuses whose deadline is strictly before cutoff.
	ListOpenApplicationsWithDeadlineBefore(ctx context.Context, statuses []Status, cutoff time.Time) ([]Application, error)
	GetActiveReminderRules(ctx context.Context, userID string) ([]ReminderRule, error)
	ReminderExists(ctx context.Context, applicationID string, threshold int) (bool, error)
	// InsertDeadlineReminder returns ErrConflict when the (application,
	// threshold) pair already has a reminder.
	InsertDeadlineReminder(ctx context.Context, reminder DeadlineReminder) error
	EnqueueJob(ctx context.Context, job Job) error
}

// ReminderJobStore is implemented by stores able to write a reminder and its
// job atomically.
type ReminderJobStore interface {
	InsertDeadlineReminderWithJob(ctx context.Context, reminder DeadlineReminder, job Job) error
}

// RuleStore persists reminder rules.
type RuleStore interface {
	GetReminderRule(ctx context.Context, ruleID string) (ReminderRule, error)
	ListReminderRules(ctx context.Context, userID string) ([]ReminderRule, error)
	PutReminderRule(ctx context.Context, rule ReminderRule) error
}

// JobStatusUpdate records the outcome of one processing attempt.
type JobStatusUpdate struct {
	JobID        string
	Status       JobStatus
	ProcessedAt  time.Time
	AttemptCount int
	LastError    string
}

// ProcessorStore is the persistence boundary of one job drain.
type ProcessorStore interface {
	// FetchDueJobs returns up to limit pending jobs with scheduled_for <= now,
	// oldest first.
	FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	UpdateJobStatus(ctx context.Context, update JobStatusUpdate) error
	RescheduleJob(ctx context.Context, jobID string, scheduledFor time.Time, attemptCount int, lastError string) error
	GetUserProfile(ctx context.Context, userID string) (UserProfile, error)
}

// JobStore persists caller-scheduled jobs.
type JobStore interface {
	EnqueueJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// CancelJob moves a pending job to cancelled. It returns ErrConflict when
	// the job is no longer pending.
	CancelJob(ctx context.Context, jobID string, cancelledAt time.Time) error
}

// ProfileStore persists user contact profiles.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (UserProfile, error)
	PutUserProfile(ctx context.Context, profile UserProfile) error
}
