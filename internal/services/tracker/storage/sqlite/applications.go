package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

const applicationColumns = `id, user_id, program_id, program_label, status, deadline, created_at, updated_at`

// GetApplication loads one application by ID.
func (s *Store) GetApplication(ctx context.Context, applicationID string) (domain.Application, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Application{}, err
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return domain.Application{}, fmt.Errorf("application id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, applicationID)
	application, err := scanApplication(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Application{}, domain.ErrNotFound
		}
		return domain.Application{}, fmt.Errorf("get application: %w", err)
	}
	return application, nil
}

// PutApplication upserts one application row.
func (s *Store) PutApplication(ctx context.Context, application domain.Application) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := normalizeApplication(application)
	if err != nil {
		return err
	}
	return putApplicationExec(ctx, s.sqlDB, normalized)
}

// UpdateApplicationStatus compare-and-sets the status of one application.
func (s *Store) UpdateApplicationStatus(ctx context.Context, applicationID string, from domain.Status, to domain.Status, updatedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return fmt.Errorf("application id is required")
	}
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if updatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return updateStatusExec(ctx, s.sqlDB, applicationID, from, to, updatedAt)
}

// AppendStatusHistory inserts one immutable history row.
func (s *Store) AppendStatusHistory(ctx context.Context, entry domain.StatusHistoryEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := normalizeHistoryEntry(entry)
	if err != nil {
		return err
	}
	return appendHistoryExec(ctx, s.sqlDB, normalized)
}

// TransitionApplicationStatus compare-and-sets the status of one application
// to entry.Status and appends entry in the same transaction.
func (s *Store) TransitionApplicationStatus(ctx context.Context, applicationID string, from domain.Status, entry domain.StatusHistoryEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return fmt.Errorf("application id is required")
	}
	entry.ApplicationID = applicationID
	normalized, err := normalizeHistoryEntry(entry)
	if err != nil {
		return err
	}

	return s.inTx(ctx, "status transition", func(tx *sql.Tx) error {
		if err := updateStatusExec(ctx, tx, applicationID, from, normalized.Status, normalized.CreatedAt); err != nil {
			return err
		}
		return appendHistoryExec(ctx, tx, normalized)
	})
}

// CreateApplicationWithHistory inserts a new application and its first
// history entry in the same transaction.
func (s *Store) CreateApplicationWithHistory(ctx context.Context, application domain.Application, entry domain.StatusHistoryEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalizedApplication, err := normalizeApplication(application)
	if err != nil {
		return err
	}
	entry.ApplicationID = normalizedApplication.ID
	normalizedEntry, err := normalizeHistoryEntry(entry)
	if err != nil {
		return err
	}

	return s.inTx(ctx, "application create", func(tx *sql.Tx) error {
		if err := putApplicationExec(ctx, tx, normalizedApplication); err != nil {
			return err
		}
		return appendHistoryExec(ctx, tx, normalizedEntry)
	})
}

// ListStatusHistory lists one application's history oldest first.
func (s *Store) ListStatusHistory(ctx context.Context, applicationID string) ([]domain.StatusHistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, application_id, status, actor, note, created_at
FROM application_status_history
WHERE application_id = ?
ORDER BY created_at ASC, rowid ASC
`, strings.TrimSpace(applicationID))
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		var status, actor string
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.ApplicationID, &status, &actor, &entry.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan status history row: %w", err)
		}
		entry.Status = domain.Status(status)
		entry.Actor = domain.ActorKind(actor)
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history rows: %w", err)
	}
	return entries, nil
}

// ListOpenApplicationsWithDeadlineBefore lists applications in statuses
// whose deadline is strictly before cutoff, earliest deadline first.
func (s *Store) ListOpenApplicationsWithDeadlineBefore(ctx context.Context, statuses []domain.Status, cutoff time.Time) ([]domain.Application, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		placeholders = append(placeholders, "?")
		args = append(args, string(status))
	}
	args = append(args, toMillis(cutoff))

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+applicationColumns+`
FROM applications
WHERE status IN (`+strings.Join(placeholders, ", ")+`)
  AND deadline < ?
ORDER BY deadline ASC, id ASC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list open applications: %w", err)
	}
	defer rows.Close()

	var applications []domain.Application
	for rows.Next() {
		application, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan application row: %w", err)
		}
		applications = append(applications, application)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate application rows: %w", err)
	}
	return applications, nil
}

func putApplicationExec(ctx context.Context, execer sqlExecer, application domain.Application) error {
	_, err := execer.ExecContext(ctx, `
INSERT INTO applications (`+applicationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	program_id = excluded.program_id,
	program_label = excluded.program_label,
	status = excluded.status,
	deadline = excluded.deadline,
	updated_at = excluded.updated_at
`,
		application.ID,
		application.UserID,
		application.ProgramID,
		application.ProgramLabel,
		string(application.Status),
		toMillis(application.Deadline),
		toMillis(application.CreatedAt),
		toMillis(application.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put application: %w", err)
	}
	return nil
}

// updateStatusExec returns ErrConflict when the row exists with another
// status and ErrNotFound when it does not exist.
func updateStatusExec(ctx context.Context, db sqlQueryer, applicationID string, from domain.Status, to domain.Status, updatedAt time.Time) error {
	result, err := db.ExecContext(ctx, `
UPDATE applications SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(to), toMillis(updatedAt), applicationID, string(from))
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application status rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var found int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = ?`, applicationID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check application: %w", err)
	}
	return domain.ErrConflict
}

func normalizeHistoryEntry(entry domain.StatusHistoryEntry) (domain.StatusHistoryEntry, error) {
	entry.ID = strings.TrimSpace(entry.ID)
	entry.ApplicationID = strings.TrimSpace(entry.ApplicationID)
	entry.Note = strings.TrimSpace(entry.Note)
	if entry.ID == "" {
		return domain.StatusHistoryEntry{}, fmt.Errorf("history id is required")
	}
	if entry.ApplicationID == "" {
		return domain.StatusHistoryEntry{}, fmt.Errorf("application id is required")
	}
	if !entry.Status.Valid() {
		return domain.StatusHistoryEntry{}, fmt.Errorf("unknown status %q", entry.Status)
	}
	if entry.CreatedAt.IsZero() {
		return domain.StatusHistoryEntry{}, fmt.Errorf("created_at is required")
	}
	return entry, nil
}

func appendHistoryExec(ctx context.Context, execer sqlExecer, entry domain.StatusHistoryEntry) error {
	_, err := execer.ExecContext(ctx, `
INSERT INTO application_status_history (id, application_id, status, actor, note, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, entry.ID, entry.ApplicationID, string(entry.Status), string(entry.Actor), entry.Note, toMillis(entry.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		if isForeignKeyConstraintError(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func normalizeApplication(application domain.Application) (domain.Application, error) {
	application.ID = strings.TrimSpace(application.ID)
	application.UserID = strings.TrimSpace(application.UserID)
	application.ProgramID = strings.TrimSpace(application.ProgramID)
	application.ProgramLabel = strings.TrimSpace(application.ProgramLabel)
	if application.ID == "" {
		return domain.Application{}, fmt.Errorf("application id is required")
	}
	if application.UserID == "" {
		return domain.Application{}, fmt.Errorf("user id is required")
	}
	if !application.Status.Valid() {
		return domain.Application{}, fmt.Errorf("unknown status %q", application.Status)
	}
	if application.Deadline.IsZero() {
		return domain.Application{}, fmt.Errorf("deadline is required")
	}
	if application.CreatedAt.IsZero() {
		return domain.Application{}, fmt.Errorf("created_at is required")
	}
	if application.UpdatedAt.IsZero() {
		application.UpdatedAt = application.CreatedAt
	}
	return application, nil
}

func scanApplication(scan scanner) (domain.Application, error) {
	var application domain.Application
	var status string
	var deadline, createdAt, updatedAt int64
	if err := scan(
		&application.ID,
		&application.UserID,
		&application.ProgramID,
		&application.ProgramLabel,
		&status,
		&deadline,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Application{}, err
	}
	application.Status = domain.Status(status)
	application.Deadline = fromMillis(deadline)
	application.CreatedAt = fromMillis(createdAt)
	application.UpdatedAt = fromMillis(updatedAt)
	return application, nil
}
