package domain

import "time"

// Application is one submission attempt to a program.
type Application struct {
	ID           string
	UserID       string
	ProgramID    string
	ProgramLabel string
	Status       Status
	Deadline     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusHistoryEntry is an append-only record of one successful transition.
type StatusHistoryEntry struct {
	ID            string
	ApplicationID string
	Status        Status
	Actor         ActorKind
	Note          string
	CreatedAt     time.Time
}

// ReminderRule maps days-before-deadline thresholds to delivery channels.
type ReminderRule struct {
	ID         string
	UserID     string
	Label      string
	Thresholds []int
	Channels   []Channel
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeadlineReminder proves a reminder for (application, threshold) was raised.
type DeadlineReminder struct {
	ID                string
	ApplicationID     string
	UserID            string
	ProgramLabel      string
	Deadline          time.Time
	DaysUntilDeadline int
	CreatedAt         time.Time
}

// JobKind selects the dispatch recipe for a job.
type JobKind string

const (
	JobKindDeadline     JobKind = "deadline"
	JobKindStatusUpdate JobKind = "status_update"
	JobKindCustom       JobKind = "custom"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindDeadline, JobKindStatusUpdate, JobKindCustom:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSent      JobStatus = "sent"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobSent, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s ends the job lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobSent || s == JobFailed || s == JobCancelled
}

// Job is one unit of deferred dispatch work.
type Job struct {
	ID            string
	Kind          JobKind
	UserID        string
	ApplicationID string
	ProgramID     string
	ScheduledFor  time.Time
	Status        JobStatus
	Payload       map[string]string
	AttemptCount  int
	LastError     string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	// PayloadErr is set by stores when the persisted payload could not be
	// decoded. Such a job fails permanently on its next attempt.
	PayloadErr error
}

// UserProfile is the contact profile used to address deadline reminders.
type UserProfile struct {
	UserID      string
	DisplayName string
	Email       string
	Locale      string
}

// Payload keys shared by producers and the dispatcher.
const (
	PayloadApplicationID  = "application_id"
	PayloadProgramLabel   = "program_label"
	PayloadDeadline       = "deadline"
	PayloadThreshold      = "threshold"
	PayloadChannels       = "channels"
	PayloadRuleID         = "rule_id"
	PayloadOldStatus      = "old_status"
	PayloadNewStatus      = "new_status"
	PayloadActor          = "actor"
	PayloadNote           = "note"
	PayloadDedupeKey      = "dedupe_key"
	PayloadJobID          = "job_id"
	PayloadRecipientEmail = "recipient_email"
	PayloadRecipientName  = "recipient_name"
	PayloadLocale         = "locale"
	PayloadTitle          = "title"
	PayloadBody           = "body"
)

// DeadlineLayout is the payload encoding of application deadlines.
const DeadlineLayout = "2006-01-02"

func clonePayload(payload map[string]string) map[string]string {
	out := make(map[string]string, len(payload))
	for key, value := range payload {
		out[key] = value
	}
	return out
}
