package domain

import "context"

// DispatchKind distinguishes the notification recipes a dispatcher renders.
type DispatchKind string

const (
	DispatchStatusChanged    DispatchKind = "status_changed"
	DispatchDeadlineReminder DispatchKind = "deadline_reminder"
	DispatchCustom           DispatchKind = "custom"
)

// Dispatcher turns a dispatch request into a user-visible notification.
// The payload is opaque to the tracker core.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, kind DispatchKind, payload map[string]string) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, userID string, kind DispatchKind, payload map[string]string) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, userID string, kind DispatchKind, payload map[string]string) error {
	return f(ctx, userID, kind, payload)
}
