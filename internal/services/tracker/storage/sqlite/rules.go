package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

const ruleColumns = `id, user_id, label, thresholds_json, channels_json, active, created_at, updated_at`

// GetReminderRule loads one rule by ID.
func (s *Store) GetReminderRule(ctx context.Context, ruleID string) (domain.ReminderRule, error) {
	if err := s.ready(ctx); err != nil {
		return domain.ReminderRule{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM reminder_rules WHERE id = ?`, strings.TrimSpace(ruleID))
	rule, err := scanRule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReminderRule{}, domain.ErrNotFound
		}
		return domain.ReminderRule{}, fmt.Errorf("get reminder rule: %w", err)
	}
	return rule, nil
}

// ListReminderRules lists every rule a user owns in creation order.
func (s *Store) ListReminderRules(ctx context.Context, userID string) ([]domain.ReminderRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM reminder_rules WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
}

// GetActiveReminderRules lists a user's active rules in creation order.
func (s *Store) GetActiveReminderRules(ctx context.Context, userID string) ([]domain.ReminderRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM reminder_rules WHERE user_id = ? AND active = 1 ORDER BY created_at ASC, id ASC`, userID)
}

func (s *Store) listRules(ctx context.Context, query string, userID string) ([]domain.ReminderRule, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminder rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.ReminderRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reminder rule row: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder rule rows: %w", err)
	}
	return rules, nil
}

// PutReminderRule upserts one rule.
func (s *Store) PutReminderRule(ctx context.Context, rule domain.ReminderRule) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rule.ID = strings.TrimSpace(rule.ID)
	rule.UserID = strings.TrimSpace(rule.UserID)
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if rule.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if rule.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = rule.CreatedAt
	}
	thresholds := rule.Thresholds
	if thresholds == nil {
		thresholds = []int{}
	}
	thresholdsJSON, err := json.Marshal(thresholds)
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	channels := rule.Channels
	if channels == nil {
		channels = []domain.Channel{}
	}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	active := 0
	if rule.Active {
		active = 1
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO reminder_rules (`+ruleColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	label = excluded.label,
	thresholds_json = excluded.thresholds_json,
	channels_json = excluded.channels_json,
	active = excluded.active,
	updated_at = excluded.updated_at
`,
		rule.ID,
		rule.UserID,
		strings.TrimSpace(rule.Label),
		string(thresholdsJSON),
		string(channelsJSON),
		active,
		toMillis(rule.CreatedAt),
		toMillis(rule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put reminder rule: %w", err)
	}
	return nil
}

func scanRule(scan scanner) (domain.ReminderRule, error) {
	var rule domain.ReminderRule
	var thresholdsJSON, channelsJSON string
	var active int
	var createdAt, updatedAt int64
	if err := scan(
		&rule.ID,
		&rule.UserID,
		&rule.Label,
		&thresholdsJSON,
		&channelsJSON,
		&active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.ReminderRule{}, err
	}
	if err := json.Unmarshal([]byte(thresholdsJSON), &rule.Thresholds); err != nil {
		return domain.ReminderRule{}, fmt.Errorf("decode thresholds for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(channelsJSON), &rule.Channels); err != nil {
		return domain.ReminderRule{}, fmt.Errorf("decode channels for rule %s: %w", rule.ID, err)
	}
	rule.Active = active == 1
	rule.CreatedAt = fromMillis(createdAt)
	rule.UpdatedAt = fromMillis(updatedAt)
	return rule, nil
}
