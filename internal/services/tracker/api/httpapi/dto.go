package httpapi

import (
	"time"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
	"github.com/louisbranch/applytrack/internal/services/tracker/storage"
)

type applicationResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ProgramID    string    `json:"program_id,omitempty"`
	ProgramLabel string    `json:"program_label"`
	Status       string    `json:"status"`
	Deadline     string    `json:"deadline"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toApplication(a domain.Application) applicationResponse {
	return applicationResponse{
		ID:           a.ID,
		UserID:       a.UserID,
		ProgramID:    a.ProgramID,
		ProgramLabel: a.ProgramLabel,
		Status:       string(a.Status),
		Deadline:     a.Deadline.Format(domain.DeadlineLayout),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type historyEntryResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toHistory(entries []domain.StatusHistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, historyEntryResponse{
			ID:        entry.ID,
			Status:    string(entry.Status),
			Actor:     string(entry.Actor),
			Note:      entry.Note,
			CreatedAt: entry.CreatedAt,
		})
	}
	return out
}

type ruleResponse struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Thresholds []int     `json:"thresholds"`
	Channels   []string  `json:"channels"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toRule(rule domain.ReminderRule) ruleResponse {
	channels := make([]string, 0, len(rule.Channels))
	for _, channel := range rule.Channels {
		channels = append(channels, string(channel))
	}
	thresholds := rule.Thresholds
	if thresholds == nil {
		thresholds = []int{}
	}
	return ruleResponse{
		ID:         rule.ID,
		Label:      rule.Label,
		Thresholds: thresholds,
		Channels:   channels,
		Active:     rule.Active,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}

func toRules(rules []domain.ReminderRule) []ruleResponse {
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRule(rule))
	}
	return out
}

type jobResponse struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	UserID        string            `json:"user_id"`
	ApplicationID string            `json:"application_id,omitempty"`
	ProgramID     string            `json:"program_id,omitempty"`
	ScheduledFor  time.Time         `json:"scheduled_for"`
	Status        string            `json:"status"`
	Payload       map[string]string `json:"payload,omitempty"`
	AttemptCount  int               `json:"attempt_count"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

func toJob(job domain.Job) jobResponse {
	return jobResponse{
		ID:            job.ID,
		Kind:          string(job.Kind),
		UserID:        job.UserID,
		ApplicationID: job.ApplicationID,
		ProgramID:     job.ProgramID,
		ScheduledFor:  job.ScheduledFor,
		Status:        string(job.Status),
		Payload:       job.Payload,
		AttemptCount:  job.AttemptCount,
		LastError:     job.LastError,
		CreatedAt:     job.CreatedAt,
		ProcessedAt:   job.ProcessedAt,
	}
}

type profileResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

func toProfile(profile domain.UserProfile) profileResponse {
	return profileResponse{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Locale:      profile.Locale,
	}
}

type notificationResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func toNotification(record storage.NotificationRecord) notificationResponse {
	return notificationResponse{
		ID:        record.ID,
		Kind:      record.Kind,
		Title:     record.Title,
		Body:      record.Body,
		CreatedAt: record.CreatedAt,
		ReadAt:    record.ReadAt,
	}
}

type inboxResponse struct {
	Notifications []notificationResponse `json:"notifications"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
	UnreadCount   int                    `json:"unread_count"`
}
