// Package storage defines inbox persistence records shared by the inbox
// dispatcher and its SQLite implementation.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = domain.ErrNotFound
	// ErrConflict indicates a write conflicts with a uniqueness constraint.
	ErrConflict = domain.ErrConflict
)

// NotificationRecord stores one rendered user notification inbox item.
type NotificationRecord struct {
	ID              string
	RecipientUserID string
	Kind            string
	Title           string
	Body            string
	PayloadJSON     string
	DedupeKey       string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage stores a paged inbox listing result.
type NotificationPage struct {
	Notifications []NotificationRecord
	NextPageToken string
}

// NotificationStore persists notification inbox state.
type NotificationStore interface {
	PutNotification(ctx context.Context, record NotificationRecord) error
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (NotificationRecord, error)
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (NotificationPage, error)
	CountUnreadNotificationsByRecipient(ctx context.Context, recipientUserID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientUserID string, notificationID string, readAt time.Time) (NotificationRecord, error)
}
