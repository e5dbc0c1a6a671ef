package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

// ReminderExists reports whether a reminder for (application, threshold) was
// already raised.
func (s *Store) ReminderExists(ctx context.Context, applicationID string, threshold int) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	found, err := s.exists(ctx, `
SELECT 1 FROM deadline_reminders WHERE application_id = ? AND days_until_deadline = ?
`, strings.TrimSpace(applicationID), threshold)
	if err != nil {
		return false, fmt.Errorf("check deadline reminder: %w", err)
	}
	return found, nil
}

// InsertDeadlineReminder inserts one reminder. The (application, threshold)
// unique key turns a duplicate into ErrConflict.
func (s *Store) InsertDeadlineReminder(ctx context.Context, reminder domain.DeadlineReminder) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := normalizeReminder(reminder)
	if err != nil {
		return err
	}
	return insertReminderExec(ctx, s.sqlDB, normalized)
}

// InsertDeadlineReminderWithJob atomically inserts a reminder and its job.
func (s *Store) InsertDeadlineReminderWithJob(ctx context.Context, reminder domain.DeadlineReminder, job domain.Job) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalizedReminder, err := normalizeReminder(reminder)
	if err != nil {
		return err
	}
	normalizedJob, err := normalizeJob(job)
	if err != nil {
		return err
	}

	return s.inTx(ctx, "reminder write", func(tx *sql.Tx) error {
		if err := insertReminderExec(ctx, tx, normalizedReminder); err != nil {
			return err
		}
		return insertJobExec(ctx, tx, normalizedJob)
	})
}

func normalizeReminder(reminder domain.DeadlineReminder) (domain.DeadlineReminder, error) {
	reminder.ID = strings.TrimSpace(reminder.ID)
	reminder.ApplicationID = strings.TrimSpace(reminder.ApplicationID)
	reminder.UserID = strings.TrimSpace(reminder.UserID)
	if reminder.ID == "" {
		return domain.DeadlineReminder{}, fmt.Errorf("reminder id is required")
	}
	if reminder.ApplicationID == "" {
		return domain.DeadlineReminder{}, fmt.Errorf("application id is required")
	}
	if reminder.UserID == "" {
		return domain.DeadlineReminder{}, fmt.Errorf("user id is required")
	}
	if reminder.CreatedAt.IsZero() {
		return domain.DeadlineReminder{}, fmt.Errorf("created_at is required")
	}
	return reminder, nil
}

func insertReminderExec(ctx context.Context, execer sqlExecer, reminder domain.DeadlineReminder) error {
	_, err := execer.ExecContext(ctx, `
INSERT INTO deadline_reminders (id, application_id, user_id, program_label, deadline, days_until_deadline, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		reminder.ID,
		reminder.ApplicationID,
		reminder.UserID,
		reminder.ProgramLabel,
		toMillis(reminder.Deadline),
		reminder.DaysUntilDeadline,
		toMillis(reminder.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		if isForeignKeyConstraintError(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("insert deadline reminder: %w", err)
	}
	return nil
}
