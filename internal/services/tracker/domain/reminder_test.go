package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

var sweepNow = time.Date(2026, 5, 4, 16, 45, 0, 0, time.UTC)

func deadlineIn(days int) time.Time {
	return time.Date(2026, 5, 4+days, 0, 0, 0, 0, time.UTC)
}

func seedSweepApplication(store *memStore, id string, userID string, status Status, deadline time.Time) {
	store.applications[id] = Application{
		ID:           id,
		UserID:       userID,
		ProgramID:    "prog-" + id,
		ProgramLabel: "Program " + id,
		Status:       status,
		Deadline:     deadline,
	}
}

func seedRule(store *memStore, id string, userID string, thresholds []int, channels ...Channel) {
	store.rules = append(store.rules, ReminderRule{
		ID:         id,
		UserID:     userID,
		Label:      "rule " + id,
		Thresholds: thresholds,
		Channels:   channels,
		Active:     true,
	})
}

func newTestEngine(store SweepStore) *ReminderEngine {
	return NewReminderEngine(store, ReminderEngineConfig{}, testOptions(sweepNow))
}

func TestDaysUntilDeadline(t *testing.T) {
	today := time.Date(2026, 5, 4, 23, 59, 0, 0, time.UTC)
	cases := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"today", time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), 0},
		{"tomorrow morning", time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC), 1},
		{"one week", time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), 7},
		{"across month", time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC), 30},
		{"past", time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), -2},
	}
	for _, tc := range cases {
		if got := DaysUntilDeadline(today, tc.deadline); got != tc.want {
			t.Fatalf("%s: days = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDaysUntilDeadlineUsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 20:00 UTC on May 4 is already May 5 in Tokyo.
	now := time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC).In(tokyo)
	deadline := time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC)
	if got := DaysUntilDeadline(now, deadline); got != 1 {
		t.Fatalf("days = %d, want 1", got)
	}
}

func TestSweepThresholdExactness(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-7", "user-1", StatusSubmitted, deadlineIn(7))
	seedSweepApplication(store, "app-8", "user-1", StatusSubmitted, deadlineIn(8))
	seedRule(store, "rule-1", "user-1", []int{1, 7, 30}, ChannelEmail)

	created, err := newTestEngine(store).Sweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	if len(store.reminders) != 1 {
		t.Fatalf("reminders = %d, want 1", len(store.reminders))
	}
	reminder := store.reminders[0]
	if reminder.ApplicationID != "app-7" || reminder.DaysUntilDeadline != 7 {
		t.Fatalf("reminder = %+v", reminder)
	}
	if len(store.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(store.jobs))
	}
	for _, job := range store.jobs {
		if job.Kind != JobKindDeadline || job.Status != JobPending || !job.ScheduledFor.Equal(sweepNow) {
			t.Fatalf("job = %+v", job)
		}
		want := map[string]string{
			PayloadApplicationID: "app-7",
			PayloadProgramLabel:  "Program app-7",
			PayloadDeadline:      "2026-05-11",
			PayloadThreshold:     "7",
			PayloadChannels:      "email",
			PayloadRuleID:        "rule-1",
		}
		for key, value := range want {
			if job.Payload[key] != value {
				t.Fatalf("payload[%s] = %q, want %q", key, job.Payload[key], value)
			}
		}
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusDraft, deadlineIn(3))
	seedRule(store, "rule-1", "user-1", []int{3})
	engine := newTestEngine(store)

	first, err := engine.Sweep(context.Background(), sweepNow)
	if err != nil || first != 1 {
		t.Fatalf("first sweep = %d, %v; want 1", first, err)
	}
	second, err := engine.Sweep(context.Background(), sweepNow)
	if err != nil || second != 0 {
		t.Fatalf("second sweep = %d, %v; want 0", second, err)
	}
	if len(store.reminders) != 1 || len(store.jobs) != 1 {
		t.Fatalf("reminders=%d jobs=%d, want 1 each", len(store.reminders), len(store.jobs))
	}
}

func TestSweepExcludesTerminalApplications(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusRejected, deadlineIn(7))
	seedSweepApplication(store, "app-2", "user-1", StatusAccepted, deadlineIn(7))
	seedRule(store, "rule-1", "user-1", []int{7})

	created, err := newTestEngine(store).Sweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if created != 0 || len(store.reminders) != 0 {
		t.Fatalf("created = %d reminders = %d, want none", created, len(store.reminders))
	}
}

// leakyStore ignores the status filter to prove the engine re-checks IsOpen.
type leakyStore struct {
	*memStore
}

func (s leakyStore) ListOpenApplicationsWithDeadlineBefore(ctx context.Context, _ []Status, cutoff time.Time) ([]Application, error) {
	return s.memStore.ListOpenApplicationsWithDeadlineBefore(ctx, AllStatuses(), cutoff)
}

func TestSweepRechecksOpenStatus(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusWithdrawn, deadlineIn(7))
	seedRule(store, "rule-1", "user-1", []int{7})

	created, err := newTestEngine(leakyStore{store}).Sweep(context.Background(), sweepNow)
	if err != nil || created != 0 {
		t.Fatalf("sweep = %d, %v; want 0", created, err)
	}
}

func TestSweepHorizon(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-30", "user-1", StatusPlanning, deadlineIn(30))
	seedSweepApplication(store, "app-31", "user-1", StatusPlanning, deadlineIn(31))
	seedSweepApplication(store, "app-past", "user-1", StatusPlanning, deadlineIn(-1))
	seedRule(store, "rule-1", "user-1", []int{30, 31, -1})

	created, err := newTestEngine(store).Sweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if created != 1 || store.reminders[0].ApplicationID != "app-30" {
		t.Fatalf("created = %d reminders = %+v, want app-30 only", created, store.reminders)
	}
}

func TestSweepSkipsInactiveRulesAndDuplicateThresholds(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusSubmitted, deadlineIn(1))
	seedRule(store, "rule-1", "user-1", []int{1}, ChannelPush)
	seedRule(store, "rule-2", "user-1", []int{1}, ChannelEmail)
	store.rules = append(store.rules, ReminderRule{ID: "rule-3", UserID: "user-1", Thresholds: []int{1}})

	created, err := newTestEngine(store).Sweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	for _, job := range store.jobs {
		if job.Payload[PayloadRuleID] != "rule-1" {
			t.Fatalf("first matching rule should win, got %s", job.Payload[PayloadRuleID])
		}
	}
}

func TestSweepContinuesPastItemFailures(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-a", "user-broken", StatusSubmitted, deadlineIn(7))
	seedSweepApplication(store, "app-b", "user-1", StatusSubmitted, deadlineIn(7))
	seedSweepApplication(store, "app-c", "user-2", StatusSubmitted, deadlineIn(7))
	seedRule(store, "rule-1", "user-1", []int{7})
	seedRule(store, "rule-2", "user-2", []int{7})
	store.rulesErr["user-broken"] = errors.New("rules table locked")
	store.reminderExistErr["app-c"] = errors.New("timeout")

	var logged int
	opts := testOptions(sweepNow)
	opts.Logf = func(string, ...any) { logged++ }
	created, err := NewReminderEngine(store, ReminderEngineConfig{}, opts).Sweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if created != 1 || store.reminders[0].ApplicationID != "app-b" {
		t.Fatalf("created = %d reminders = %+v, want app-b only", created, store.reminders)
	}
	if logged != 2 {
		t.Fatalf("logged = %d, want 2", logged)
	}
}

func TestSweepListingFailureAborts(t *testing.T) {
	store := newMemStore()
	store.listOpenErr = errors.New("db closed")
	created, err := newTestEngine(store).Sweep(context.Background(), sweepNow)
	if err == nil || created != 0 {
		t.Fatalf("sweep = %d, %v; want error", created, err)
	}
}

func TestSweepTreatsConflictAsExisting(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusSubmitted, deadlineIn(7))
	seedRule(store, "rule-1", "user-1", []int{7})
	store.insertReminder = ErrConflict

	created, err := newTestEngine(store).Sweep(context.Background(), sweepNow)
	if err != nil || created != 0 {
		t.Fatalf("sweep = %d, %v; want 0", created, err)
	}
	if len(store.jobs) != 0 {
		t.Fatalf("jobs = %d, want none after conflict", len(store.jobs))
	}
}

func TestSweepDoesNotCountReminderWhenEnqueueFails(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusSubmitted, deadlineIn(7))
	seedRule(store, "rule-1", "user-1", []int{7})
	store.enqueueErr = errors.New("jobs table full")
	observer := &countingObserver{}
	var logged []string
	opts := testOptions(sweepNow)
	opts.Observer = observer
	opts.Logf = func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }

	created, err := NewReminderEngine(store, ReminderEngineConfig{}, opts).Sweep(context.Background(), sweepNow)
	if err != nil || created != 0 {
		t.Fatalf("sweep = %d, %v; want 0", created, err)
	}
	if observer.reminders != 0 {
		t.Fatalf("observed reminders = %d, want 0", observer.reminders)
	}
	if len(store.jobs) != 0 {
		t.Fatalf("jobs = %d, want 0", len(store.jobs))
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "jobs table full") {
		t.Fatalf("logged = %v, want the enqueue failure", logged)
	}
}

func TestSweepUsesAtomicStoreWhenAvailable(t *testing.T) {
	store := newMemStore()
	seedSweepApplication(store, "app-1", "user-1", StatusSubmitted, deadlineIn(7))
	seedRule(store, "rule-1", "user-1", []int{7})
	observer := &countingObserver{}
	opts := testOptions(sweepNow)
	opts.Observer = observer

	created, err := NewReminderEngine(atomicStore{store}, ReminderEngineConfig{}, opts).Sweep(context.Background(), sweepNow)
	if err != nil || created != 1 {
		t.Fatalf("sweep = %d, %v; want 1", created, err)
	}
	for _, call := range store.calls {
		if call == "InsertDeadlineReminder" || call == "EnqueueJob" {
			t.Fatalf("unexpected non-atomic call %s", call)
		}
	}
	if len(store.jobs) != 1 || observer.reminders != 1 {
		t.Fatalf("jobs = %d observer = %d, want 1 each", len(store.jobs), observer.reminders)
	}
}

func TestSweepHonorsConfiguredLocation(t *testing.T) {
	store := newMemStore()
	// Late evening in Los Angeles is already the next UTC day.
	losAngeles := time.FixedZone("PDT", -7*60*60)
	now := time.Date(2026, 5, 5, 3, 0, 0, 0, time.UTC)
	seedSweepApplication(store, "app-1", "user-1", StatusSubmitted, time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC))
	seedRule(store, "rule-1", "user-1", []int{1})

	engine := NewReminderEngine(store, ReminderEngineConfig{Location: losAngeles}, testOptions(now))
	created, err := engine.Sweep(context.Background(), now)
	if err != nil || created != 1 {
		t.Fatalf("sweep = %d, %v; want 1", created, err)
	}
}
