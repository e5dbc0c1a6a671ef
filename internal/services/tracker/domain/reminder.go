package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultHorizonDays is the sweep look-ahead window.
const DefaultHorizonDays = 30

// ReminderEngineConfig tunes the reminder sweep.
type ReminderEngineConfig struct {
	HorizonDays int
	// Location decides which calendar day "now" falls on.
	Location *time.Location
}

// ReminderEngine raises deduplicated deadline reminders for open applications.
type ReminderEngine struct {
	store    SweepStore
	horizon  int
	location *time.Location
	opts     ServiceOptions
}

// NewReminderEngine constructs the sweep use-case.
func NewReminderEngine(store SweepStore, cfg ReminderEngineConfig, opts ServiceOptions) *ReminderEngine {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReminderEngine{
		store:    store,
		horizon:  cfg.HorizonDays,
		location: cfg.Location,
		opts:     opts.withDefaults(),
	}
}

// Sweep evaluates every open application with a deadline inside the horizon
// against its owner's active rules and returns the number of reminders
// created. Per-application failures are logged and skipped; only a failed
// candidate listing aborts the sweep.
func (e *ReminderEngine) Sweep(ctx context.Context, now time.Time) (_ int, err error) {
	if e == nil || e.store == nil {
		return 0, ErrStoreNotConfigured
	}
	ctx, span := tracer.Start(ctx, "tracker.reminders.sweep")
	defer func() { endSpan(span, err) }()

	today := calendarDate(now.In(e.location))
	cutoff := today.AddDate(0, 0, e.horizon+1)
	applications, err := e.store.ListOpenApplicationsWithDeadlineBefore(ctx, OpenStatuses(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("list open applications: %w", err)
	}

	created := 0
	for _, application := range applications {
		if !application.Status.IsOpen() {
			continue
		}
		days := DaysUntilDeadline(now.In(e.location), application.Deadline)
		if days < 0 || days > e.horizon {
			continue
		}
		created += e.evaluate(ctx, application, days, now.UTC())
	}
	span.SetAttributes(
		attribute.Int("reminders.candidates", len(applications)),
		attribute.Int("reminders.created", created),
	)
	return created, nil
}

func (e *ReminderEngine) evaluate(ctx context.Context, application Application, days int, now time.Time) int {
	rules, err := e.store.GetActiveReminderRules(ctx, application.UserID)
	if err != nil {
		e.opts.Logf("load reminder rules for user %s: %v", application.UserID, err)
		return 0
	}
	created := 0
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		for _, threshold := range rule.Thresholds {
			if threshold != days {
				continue
			}
			inserted, err := e.raise(ctx, application, rule, threshold, now)
			if err != nil {
				e.opts.Logf("raise reminder for application %s threshold %d: %v", application.ID, threshold, err)
			}
			if inserted {
				created++
				e.opts.Observer.ReminderCreated(threshold)
			}
		}
	}
	return created
}

// raise inserts one reminder and its job. The bool reports whether both were
// written. Without ReminderJobStore a failed enqueue leaves the reminder row
// in place with no job, so later sweeps skip that threshold; the result is an
// error and the reminder is not counted.
func (e *ReminderEngine) raise(ctx context.Context, application Application, rule ReminderRule, threshold int, now time.Time) (bool, error) {
	exists, err := e.store.ReminderExists(ctx, application.ID, threshold)
	if err != nil {
		return false, fmt.Errorf("check reminder: %w", err)
	}
	if exists {
		return false, nil
	}

	reminderID, err := e.opts.NewID()
	if err != nil {
		return false, fmt.Errorf("generate reminder id: %w", err)
	}
	jobID, err := e.opts.NewID()
	if err != nil {
		return false, fmt.Errorf("generate job id: %w", err)
	}
	reminder := DeadlineReminder{
		ID:                reminderID,
		ApplicationID:     application.ID,
		UserID:            application.UserID,
		ProgramLabel:      application.ProgramLabel,
		Deadline:          application.Deadline,
		DaysUntilDeadline: threshold,
		CreatedAt:         now,
	}
	job := Job{
		ID:            jobID,
		Kind:          JobKindDeadline,
		UserID:        application.UserID,
		ApplicationID: application.ID,
		ProgramID:     application.ProgramID,
		ScheduledFor:  now,
		Status:        JobPending,
		Payload:       deadlinePayload(application, rule, threshold),
		CreatedAt:     now,
	}

	if atomic, ok := e.store.(ReminderJobStore); ok {
		if err := atomic.InsertDeadlineReminderWithJob(ctx, reminder, job); err != nil {
			if errors.Is(err, ErrConflict) {
				return false, nil
			}
			return false, fmt.Errorf("insert reminder with job: %w", err)
		}
		return true, nil
	}

	if err := e.store.InsertDeadlineReminder(ctx, reminder); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("insert reminder: %w", err)
	}
	if err := e.store.EnqueueJob(ctx, job); err != nil {
		return false, fmt.Errorf("enqueue job for reminder %s: %w", reminderID, err)
	}
	return true, nil
}

func deadlinePayload(application Application, rule ReminderRule, threshold int) map[string]string {
	channels := make([]string, 0, len(rule.Channels))
	for _, channel := range rule.Channels {
		channels = append(channels, string(channel))
	}
	return map[string]string{
		PayloadApplicationID: application.ID,
		PayloadProgramLabel:  application.ProgramLabel,
		PayloadDeadline:      application.Deadline.Format(DeadlineLayout),
		PayloadThreshold:     strconv.Itoa(threshold),
		PayloadChannels:      strings.Join(channels, ","),
		PayloadRuleID:        rule.ID,
	}
}

// DaysUntilDeadline counts calendar days from now's date to the deadline's
// date, so any deadline tomorrow is one day away regardless of time of day.
// The deadline's own calendar date is used as stored.
func DaysUntilDeadline(now time.Time, deadline time.Time) int {
	from := calendarDate(now)
	to := calendarDate(deadline)
	return int(to.Sub(from).Hours() / 24)
}

// calendarDate returns t's wall-clock date as UTC midnight.
func calendarDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
