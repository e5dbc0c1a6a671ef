package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

const jobColumns = `id, kind, user_id, application_id, program_id, scheduled_for, status, payload_json, attempt_count, last_error, created_at, processed_at`

// EnqueueJob inserts one pending job.
func (s *Store) EnqueueJob(ctx context.Context, job domain.Job) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := normalizeJob(job)
	if err != nil {
		return err
	}
	return insertJobExec(ctx, s.sqlDB, normalized)
}

// GetJob loads one job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Job{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, strings.TrimSpace(jobID))
	job, err := scanJob(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FetchDueJobs lists up to limit pending jobs due at now ordered by
// scheduled_for, then ID.
func (s *Store) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if now.IsZero() {
		return nil, fmt.Errorf("now is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status = ?
  AND scheduled_for <= ?
ORDER BY scheduled_for ASC, id ASC
LIMIT ?
`, string(domain.JobPending), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus records the outcome of one processing attempt.
func (s *Store) UpdateJobStatus(ctx context.Context, update domain.JobStatusUpdate) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	update.JobID = strings.TrimSpace(update.JobID)
	if update.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if !update.Status.Valid() {
		return fmt.Errorf("unknown job status %q", update.Status)
	}
	if update.ProcessedAt.IsZero() {
		return fmt.Errorf("processed_at is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE jobs SET status = ?, processed_at = ?, attempt_count = ?, last_error = ?
WHERE id = ?
`, string(update.Status), toMillis(update.ProcessedAt), update.AttemptCount, strings.TrimSpace(update.LastError), update.JobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return requireAffected(result, "update job status")
}

// RescheduleJob returns a job to pending at scheduledFor after a failed attempt.
func (s *Store) RescheduleJob(ctx context.Context, jobID string, scheduledFor time.Time, attemptCount int, lastError string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	if scheduledFor.IsZero() {
		return fmt.Errorf("scheduled_for is required")
	}
	if attemptCount < 0 {
		return fmt.Errorf("attempt count must be non-negative")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE jobs SET status = ?, scheduled_for = ?, attempt_count = ?, last_error = ?, processed_at = NULL
WHERE id = ?
`, string(domain.JobPending), toMillis(scheduledFor), attemptCount, strings.TrimSpace(lastError), jobID)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return requireAffected(result, "reschedule job")
}

// CancelJob moves a pending job to cancelled.
func (s *Store) CancelJob(ctx context.Context, jobID string, cancelledAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE jobs SET status = ?, processed_at = ?
WHERE id = ? AND status = ?
`, string(domain.JobCancelled), toMillis(cancelledAt), jobID, string(domain.JobPending))
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel job rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	found, err := s.exists(ctx, `SELECT 1 FROM jobs WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if found {
		return domain.ErrConflict
	}
	return domain.ErrNotFound
}

// GetUserProfile loads one contact profile.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	if err := s.ready(ctx); err != nil {
		return domain.UserProfile{}, err
	}
	var profile domain.UserProfile
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, display_name, email, locale FROM user_profiles WHERE user_id = ?
`, strings.TrimSpace(userID)).Scan(&profile.UserID, &profile.DisplayName, &profile.Email, &profile.Locale)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserProfile{}, domain.ErrNotFound
		}
		return domain.UserProfile{}, fmt.Errorf("get user profile: %w", err)
	}
	return profile, nil
}

// PutUserProfile upserts one contact profile.
func (s *Store) PutUserProfile(ctx context.Context, profile domain.UserProfile) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	profile.UserID = strings.TrimSpace(profile.UserID)
	if profile.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_profiles (user_id, display_name, email, locale, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	display_name = excluded.display_name,
	email = excluded.email,
	locale = excluded.locale,
	updated_at = excluded.updated_at
`,
		profile.UserID,
		strings.TrimSpace(profile.DisplayName),
		strings.TrimSpace(profile.Email),
		strings.TrimSpace(profile.Locale),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put user profile: %w", err)
	}
	return nil
}

func normalizeJob(job domain.Job) (domain.Job, error) {
	job.ID = strings.TrimSpace(job.ID)
	job.UserID = strings.TrimSpace(job.UserID)
	job.ApplicationID = strings.TrimSpace(job.ApplicationID)
	job.ProgramID = strings.TrimSpace(job.ProgramID)
	if job.ID == "" {
		return domain.Job{}, fmt.Errorf("job id is required")
	}
	if !job.Kind.Valid() {
		return domain.Job{}, fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if job.UserID == "" {
		return domain.Job{}, fmt.Errorf("user id is required")
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}
	if !job.Status.Valid() {
		return domain.Job{}, fmt.Errorf("unknown job status %q", job.Status)
	}
	if job.ScheduledFor.IsZero() {
		return domain.Job{}, fmt.Errorf("scheduled_for is required")
	}
	if job.CreatedAt.IsZero() {
		return domain.Job{}, fmt.Errorf("created_at is required")
	}
	return job, nil
}

func insertJobExec(ctx context.Context, execer sqlExecer, job domain.Job) error {
	payload := job.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
INSERT INTO jobs (`+jobColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		job.ID,
		string(job.Kind),
		job.UserID,
		job.ApplicationID,
		job.ProgramID,
		toMillis(job.ScheduledFor),
		string(job.Status),
		string(payloadJSON),
		job.AttemptCount,
		job.LastError,
		toMillis(job.CreatedAt),
		nullMillis(job.ProcessedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func scanJob(scan scanner) (domain.Job, error) {
	var job domain.Job
	var kind, status, payloadJSON string
	var scheduledFor, createdAt int64
	var processedAt sql.NullInt64
	if err := scan(
		&job.ID,
		&kind,
		&job.UserID,
		&job.ApplicationID,
		&job.ProgramID,
		&scheduledFor,
		&status,
		&payloadJSON,
		&job.AttemptCount,
		&job.LastError,
		&createdAt,
		&processedAt,
	); err != nil {
		return domain.Job{}, err
	}
	// A bad payload stays on the job so one row cannot stall a drain.
	job.Payload = map[string]string{}
	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		job.Payload = map[string]string{}
		job.PayloadErr = fmt.Errorf("%w for job %s: %v", domain.ErrMalformedPayload, job.ID, err)
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.ScheduledFor = fromMillis(scheduledFor)
	job.CreatedAt = fromMillis(createdAt)
	job.ProcessedAt = fromNullMillis(processedAt)
	return job, nil
}
