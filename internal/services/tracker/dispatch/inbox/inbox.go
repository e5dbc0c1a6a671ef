// Package inbox stores dispatched tracker notifications in the per-user inbox.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/applytrack/internal/platform/id"
	"github.com/louisbranch/applytrack/internal/platform/pagination"
	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
	"github.com/louisbranch/applytrack/internal/services/tracker/render"
	"github.com/louisbranch/applytrack/internal/services/tracker/storage"
)

var (
	// ErrStoreNotConfigured indicates the inbox is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("inbox store is not configured")
	// ErrRecipientUserIDRequired indicates recipient identity is required.
	ErrRecipientUserIDRequired = errors.New("recipient user id is required")
	// ErrNotificationIDRequired indicates notification ID is required.
	ErrNotificationIDRequired = errors.New("notification id is required")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// Service renders dispatches into inbox notifications and serves the inbox.
type Service struct {
	store      storage.NotificationStore
	clock      func() time.Time
	newID      func() (string, error)
	printerFor func(locale string) render.Localizer
	// skipLogf reports dispatches the inbox does not store. Nil keeps them
	// silent.
	skipLogf func(format string, args ...any)
}

// NewService constructs an inbox dispatcher over store.
func NewService(store storage.NotificationStore, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
		printerFor: func(locale string) render.Localizer {
			return render.PrinterFor(locale)
		},
	}
}

// LogSkipped makes Dispatch report deliveries it ignores through logf. It is
// used when the inbox is the only dispatch target.
func (s *Service) LogSkipped(logf func(format string, args ...any)) *Service {
	s.skipLogf = logf
	return s
}

// Dispatch stores one rendered notification. Deliveries that target channels
// other than the in-app inbox are ignored. A repeated dedupe key is a no-op.
func (s *Service) Dispatch(ctx context.Context, userID string, kind domain.DispatchKind, payload map[string]string) error {
	if !wantsInApp(payload) {
		if s != nil && s.skipLogf != nil {
			s.skipLogf("inbox skipped %s for user %s job %s: channels %q exclude in_app",
				kind, userID, payload[domain.PayloadJobID], payload[domain.PayloadChannels])
		}
		return nil
	}
	_, err := s.create(ctx, userID, kind, payload)
	return err
}

func (s *Service) create(ctx context.Context, userID string, kind domain.DispatchKind, payload map[string]string) (storage.NotificationRecord, error) {
	if s == nil || s.store == nil {
		return storage.NotificationRecord{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(userID)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, ErrRecipientUserIDRequired
	}
	dedupeKey := strings.TrimSpace(payload[domain.PayloadDedupeKey])
	if dedupeKey != "" {
		existing, err := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.NotificationRecord{}, err
		}
	}

	if payload == nil {
		payload = map[string]string{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return storage.NotificationRecord{}, fmt.Errorf("encode notification payload: %w", err)
	}
	notificationID, err := s.newID()
	if err != nil {
		return storage.NotificationRecord{}, err
	}
	rendered := render.Render(s.printerFor(payload[domain.PayloadLocale]), render.Input{Kind: kind, Payload: payload})
	record := storage.NotificationRecord{
		ID:              notificationID,
		RecipientUserID: recipientUserID,
		Kind:            string(kind),
		Title:           rendered.Title,
		Body:            rendered.Body,
		PayloadJSON:     string(payloadJSON),
		DedupeKey:       dedupeKey,
		CreatedAt:       s.nowUTC(),
	}
	if err := s.store.PutNotification(ctx, record); err != nil {
		if dedupeKey != "" && errors.Is(err, storage.ErrConflict) {
			existing, lookupErr := s.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
			if lookupErr == nil {
				return existing, nil
			}
			if errors.Is(lookupErr, storage.ErrNotFound) {
				return storage.NotificationRecord{}, err
			}
			return storage.NotificationRecord{}, lookupErr
		}
		return storage.NotificationRecord{}, err
	}
	return record, nil
}

// ListInbox lists recipient inbox notifications newest first.
func (s *Service) ListInbox(ctx context.Context, input ListInboxInput) (storage.NotificationPage, error) {
	if s == nil || s.store == nil {
		return storage.NotificationPage{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return storage.NotificationPage{}, ErrRecipientUserIDRequired
	}
	pageSize := pagination.ClampPageSize(input.PageSize, pagination.PageSizeConfig{
		Default: defaultPageSize,
		Max:     maxPageSize,
	})
	return s.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
}

// UnreadCount returns how many recipient notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, recipientUserID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, ErrRecipientUserIDRequired
	}
	return s.store.CountUnreadNotificationsByRecipient(ctx, recipientUserID)
}

// MarkRead marks one recipient notification as read.
func (s *Service) MarkRead(ctx context.Context, recipientUserID string, notificationID string) (storage.NotificationRecord, error) {
	if s == nil || s.store == nil {
		return storage.NotificationRecord{}, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, ErrRecipientUserIDRequired
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return storage.NotificationRecord{}, ErrNotificationIDRequired
	}
	return s.store.MarkNotificationRead(ctx, recipientUserID, notificationID, s.nowUTC())
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// wantsInApp reports whether payload targets the inbox. Payloads without a
// channel list always do.
func wantsInApp(payload map[string]string) bool {
	raw := strings.TrimSpace(payload[domain.PayloadChannels])
	if raw == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if channel, ok := domain.ParseChannel(part); ok && channel == domain.ChannelInApp {
			return true
		}
	}
	return false
}

var _ domain.Dispatcher = (*Service)(nil)
