package domain

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

type memStore struct {
	mu sync.Mutex

	applications map[string]Application
	history      []StatusHistoryEntry
	rules        []ReminderRule
	reminders    []DeadlineReminder
	jobs         map[string]Job
	profiles     map[string]UserProfile
	calls        []string

	updateStatusErr  error
	appendHistoryErr error
	listOpenErr      error
	insertReminder   error
	enqueueErr       error
	rulesErr         map[string]error
	reminderExistErr map[string]error
	updateJobErr     error
}

func newMemStore() *memStore {
	return &memStore{
		applications:     map[string]Application{},
		jobs:             map[string]Job{},
		profiles:         map[string]UserProfile{},
		rulesErr:         map[string]error{},
		reminderExistErr: map[string]error{},
	}
}

func (s *memStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *memStore) GetApplication(_ context.Context, applicationID string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetApplication")
	application, ok := s.applications[applicationID]
	if !ok {
		return Application{}, ErrNotFound
	}
	return application, nil
}

func (s *memStore) PutApplication(_ context.Context, application Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PutApplication")
	s.applications[application.ID] = application
	return nil
}

func (s *memStore) UpdateApplicationStatus(_ context.Context, applicationID string, from Status, to Status, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateApplicationStatus")
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	application, ok := s.applications[applicationID]
	if !ok {
		return ErrNotFound
	}
	if application.Status != from {
		return ErrConflict
	}
	application.Status = to
	application.UpdatedAt = updatedAt
	s.applications[applicationID] = application
	return nil
}

func (s *memStore) AppendStatusHistory(_ context.Context, entry StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AppendStatusHistory")
	if s.appendHistoryErr != nil {
		return s.appendHistoryErr
	}
	s.history = append(s.history, entry)
	return nil
}

func (s *memStore) ListStatusHistory(_ context.Context, applicationID string) ([]StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StatusHistoryEntry
	for _, entry := range s.history {
		if entry.ApplicationID == applicationID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenApplicationsWithDeadlineBefore(_ context.Context, statuses []Status, cutoff time.Time) ([]Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listOpenErr != nil {
		return nil, s.listOpenErr
	}
	var out []Application
	for _, application := range s.applications {
		if slices.Contains(statuses, application.Status) && application.Deadline.Before(cutoff) {
			out = append(out, application)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetActiveReminderRules(_ context.Context, userID string) ([]ReminderRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rulesErr[userID]; err != nil {
		return nil, err
	}
	var out []ReminderRule
	for _, rule := range s.rules {
		if rule.UserID == userID && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (s *memStore) GetReminderRule(_ context.Context, ruleID string) (ReminderRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rule := range s.rules {
		if rule.ID == ruleID {
			return rule, nil
		}
	}
	return ReminderRule{}, ErrNotFound
}

func (s *memStore) ListReminderRules(_ context.Context, userID string) ([]ReminderRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ReminderRule
	for _, rule := range s.rules {
		if rule.UserID == userID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (s *memStore) PutReminderRule(_ context.Context, rule ReminderRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.ID == rule.ID {
			s.rules[i] = rule
			return nil
		}
	}
	s.rules = append(s.rules, rule)
	return nil
}

func (s *memStore) ReminderExists(_ context.Context, applicationID string, threshold int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reminderExistErr[applicationID]; err != nil {
		return false, err
	}
	return s.hasReminder(applicationID, threshold), nil
}

func (s *memStore) hasReminder(applicationID string, threshold int) bool {
	for _, reminder := range s.reminders {
		if reminder.ApplicationID == applicationID && reminder.DaysUntilDeadline == threshold {
			return true
		}
	}
	return false
}

func (s *memStore) InsertDeadlineReminder(_ context.Context, reminder DeadlineReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertDeadlineReminder")
	if s.insertReminder != nil {
		return s.insertReminder
	}
	if s.hasReminder(reminder.ApplicationID, reminder.DaysUntilDeadline) {
		return ErrConflict
	}
	s.reminders = append(s.reminders, reminder)
	return nil
}

func (s *memStore) EnqueueJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("EnqueueJob")
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	if _, ok := s.jobs[job.ID]; ok {
		return ErrConflict
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memStore) GetJob(_ context.Context, jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (s *memStore) CancelJob(_ context.Context, jobID string, cancelledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != JobPending {
		return ErrConflict
	}
	job.Status = JobCancelled
	job.ProcessedAt = &cancelledAt
	s.jobs[jobID] = job
	return nil
}

func (s *memStore) FetchDueJobs(_ context.Context, now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for _, job := range s.jobs {
		if job.Status == JobPending && !job.ScheduledFor.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[j].ScheduledFor)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memStore) UpdateJobStatus(_ context.Context, update JobStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateJobErr != nil {
		return s.updateJobErr
	}
	job, ok := s.jobs[update.JobID]
	if !ok {
		return ErrNotFound
	}
	processedAt := update.ProcessedAt
	job.Status = update.Status
	job.ProcessedAt = &processedAt
	job.AttemptCount = update.AttemptCount
	job.LastError = update.LastError
	s.jobs[update.JobID] = job
	return nil
}

func (s *memStore) RescheduleJob(_ context.Context, jobID string, scheduledFor time.Time, attemptCount int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = JobPending
	job.ScheduledFor = scheduledFor
	job.AttemptCount = attemptCount
	job.LastError = lastError
	s.jobs[jobID] = job
	return nil
}

func (s *memStore) GetUserProfile(_ context.Context, userID string) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return UserProfile{}, ErrNotFound
	}
	return profile, nil
}

func (s *memStore) PutUserProfile(_ context.Context, profile UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

// atomicStore adds the single-transaction writes to memStore.
type atomicStore struct {
	*memStore
}

func (s atomicStore) InsertDeadlineReminderWithJob(_ context.Context, reminder DeadlineReminder, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("InsertDeadlineReminderWithJob")
	if s.hasReminder(reminder.ApplicationID, reminder.DaysUntilDeadline) {
		return ErrConflict
	}
	s.reminders = append(s.reminders, reminder)
	s.jobs[job.ID] = job
	return nil
}

func (s atomicStore) TransitionApplicationStatus(_ context.Context, applicationID string, from Status, entry StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("TransitionApplicationStatus")
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	application, ok := s.applications[applicationID]
	if !ok {
		return ErrNotFound
	}
	if application.Status != from {
		return ErrConflict
	}
	if s.appendHistoryErr != nil {
		return s.appendHistoryErr
	}
	application.Status = entry.Status
	application.UpdatedAt = entry.CreatedAt
	s.applications[applicationID] = application
	s.history = append(s.history, entry)
	return nil
}

func (s atomicStore) CreateApplicationWithHistory(_ context.Context, application Application, entry StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateApplicationWithHistory")
	if s.appendHistoryErr != nil {
		return s.appendHistoryErr
	}
	s.applications[application.ID] = application
	s.history = append(s.history, entry)
	return nil
}

type dispatchCall struct {
	UserID  string
	Kind    DispatchKind
	Payload map[string]string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	fail  func(call dispatchCall) error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, userID string, kind DispatchKind, payload map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	call := dispatchCall{UserID: userID, Kind: kind, Payload: clonePayload(payload)}
	d.calls = append(d.calls, call)
	if d.fail != nil {
		return d.fail(call)
	}
	return nil
}

type countingObserver struct {
	transitions int
	reminders   int
	jobs        map[JobStatus]int
}

func (o *countingObserver) TransitionApplied(Status, Status) { o.transitions++ }
func (o *countingObserver) ReminderCreated(int)              { o.reminders++ }
func (o *countingObserver) JobProcessed(_ JobKind, outcome JobStatus) {
	if o.jobs == nil {
		o.jobs = map[JobStatus]int{}
	}
	o.jobs[outcome]++
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s-%03d", prefix, next), nil
	}
}

func discardLogf(string, ...any) {}

func testOptions(now time.Time) ServiceOptions {
	return ServiceOptions{
		Clock: fixedClock(now),
		NewID: sequentialIDs("id"),
		Logf:  discardLogf,
	}
}
