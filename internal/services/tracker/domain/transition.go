package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/applytrack/internal/platform/errors"
	"go.opentelemetry.io/otel/attribute"
)

// TransitionInput requests one application status change.
type TransitionInput struct {
	ApplicationID string
	Target        Status
	Actor         ActorKind
	Note          string
}

// CreateApplicationInput registers a new tracked application.
type CreateApplicationInput struct {
	UserID       string
	ProgramID    string
	ProgramLabel string
	Status       Status
	Deadline     time.Time
}

// StatusService owns application lifecycle changes.
type StatusService struct {
	store      ApplicationStore
	dispatcher Dispatcher
	opts       ServiceOptions
}

// NewStatusService constructs the status transition use-cases. A nil
// dispatcher disables status-change notifications.
func NewStatusService(store ApplicationStore, dispatcher Dispatcher, opts ServiceOptions) *StatusService {
	return &StatusService{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
	}
}

// Transition validates and applies one status change. Side effects run in
// order: status update with history append, then notification. The status
// never changes without its history entry. A failed notification is logged
// and leaves the transition in place.
func (s *StatusService) Transition(ctx context.Context, input TransitionInput) (_ Application, err error) {
	if s == nil || s.store == nil {
		return Application{}, ErrStoreNotConfigured
	}
	ctx, span := tracer.Start(ctx, "tracker.status.transition")
	defer func() { endSpan(span, err) }()

	applicationID := strings.TrimSpace(input.ApplicationID)
	if applicationID == "" {
		return Application{}, apperrors.New(apperrors.CodeApplicationInvalid, "application id is required")
	}
	if !input.Target.Valid() {
		return Application{}, errUnknownStatus(string(input.Target))
	}
	actor := input.Actor
	if actor == "" {
		actor = ActorUser
	}
	if _, ok := ParseActorKind(string(actor)); !ok {
		return Application{}, errUnknownActor(string(actor))
	}
	span.SetAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("application.target_status", string(input.Target)),
	)

	application, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Application{}, errApplicationNotFound(applicationID)
		}
		return Application{}, fmt.Errorf("get application %s: %w", applicationID, err)
	}

	from := application.Status
	if !CanTransition(from, input.Target) {
		return Application{}, errInvalidTransition(from, input.Target)
	}

	historyID, err := s.opts.NewID()
	if err != nil {
		return Application{}, fmt.Errorf("generate history id: %w", err)
	}
	now := s.opts.Clock().UTC()
	entry := StatusHistoryEntry{
		ID:            historyID,
		ApplicationID: applicationID,
		Status:        input.Target,
		Actor:         actor,
		Note:          strings.TrimSpace(input.Note),
		CreatedAt:     now,
	}
	if err := s.writeTransition(ctx, application, entry); err != nil {
		return Application{}, err
	}
	s.opts.Observer.TransitionApplied(from, input.Target)

	application.Status = input.Target
	application.UpdatedAt = now
	s.notifyStatusChanged(ctx, application, from, entry)
	return application, nil
}

// writeTransition persists the status change and its history entry. Stores
// without TransitionStore get the previous status written back when the
// history append fails.
func (s *StatusService) writeTransition(ctx context.Context, application Application, entry StatusHistoryEntry) error {
	if atomic, ok := s.store.(TransitionStore); ok {
		if err := atomic.TransitionApplicationStatus(ctx, application.ID, application.Status, entry); err != nil {
			return errStoreWrite("transition application status", err)
		}
		return nil
	}

	if err := s.store.UpdateApplicationStatus(ctx, application.ID, application.Status, entry.Status, entry.CreatedAt); err != nil {
		return errStoreWrite("update application status", err)
	}
	if err := s.store.AppendStatusHistory(ctx, entry); err != nil {
		if revertErr := s.store.UpdateApplicationStatus(ctx, application.ID, entry.Status, application.Status, application.UpdatedAt); revertErr != nil {
			s.opts.Logf("revert status of application %s: %v", application.ID, revertErr)
		}
		return errStoreWrite("append status history", err)
	}
	return nil
}

func (s *StatusService) notifyStatusChanged(ctx context.Context, application Application, from Status, entry StatusHistoryEntry) {
	if s.dispatcher == nil || from == application.Status {
		return
	}
	payload := map[string]string{
		PayloadApplicationID: application.ID,
		PayloadProgramLabel:  application.ProgramLabel,
		PayloadOldStatus:     string(from),
		PayloadNewStatus:     string(application.Status),
		PayloadActor:         string(entry.Actor),
		PayloadNote:          entry.Note,
		PayloadDedupeKey:     "status:" + application.ID + ":" + entry.ID,
	}
	if err := s.dispatcher.Dispatch(ctx, application.UserID, DispatchStatusChanged, payload); err != nil {
		s.opts.Logf("dispatch status change for application %s: %v", application.ID, err)
	}
}

// CreateApplication stores a new application in an open status and records
// its initial history entry. An empty status starts in planning. Stores
// without TransitionStore write the two rows separately.
func (s *StatusService) CreateApplication(ctx context.Context, input CreateApplicationInput) (Application, error) {
	if s == nil || s.store == nil {
		return Application{}, ErrStoreNotConfigured
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Application{}, apperrors.New(apperrors.CodeApplicationInvalid, "user id is required")
	}
	label := strings.TrimSpace(input.ProgramLabel)
	if label == "" {
		return Application{}, apperrors.New(apperrors.CodeApplicationInvalid, "program label is required")
	}
	if input.Deadline.IsZero() {
		return Application{}, apperrors.New(apperrors.CodeApplicationInvalid, "deadline is required")
	}
	status := input.Status
	if status == "" {
		status = StatusPlanning
	}
	if !status.Valid() {
		return Application{}, errUnknownStatus(string(status))
	}
	if !status.IsOpen() {
		return Application{}, apperrors.New(apperrors.CodeApplicationInvalid, "new applications must start in an open status")
	}

	applicationID, err := s.opts.NewID()
	if err != nil {
		return Application{}, fmt.Errorf("generate application id: %w", err)
	}
	historyID, err := s.opts.NewID()
	if err != nil {
		return Application{}, fmt.Errorf("generate history id: %w", err)
	}
	now := s.opts.Clock().UTC()
	application := Application{
		ID:           applicationID,
		UserID:       userID,
		ProgramID:    strings.TrimSpace(input.ProgramID),
		ProgramLabel: label,
		Status:       status,
		Deadline:     input.Deadline.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := StatusHistoryEntry{
		ID:            historyID,
		ApplicationID: applicationID,
		Status:        status,
		Actor:         ActorSystem,
		Note:          "created",
		CreatedAt:     now,
	}
	if atomic, ok := s.store.(TransitionStore); ok {
		if err := atomic.CreateApplicationWithHistory(ctx, application, entry); err != nil {
			return Application{}, errStoreWrite("create application", err)
		}
		return application, nil
	}
	if err := s.store.PutApplication(ctx, application); err != nil {
		return Application{}, errStoreWrite("put application", err)
	}
	if err := s.store.AppendStatusHistory(ctx, entry); err != nil {
		return Application{}, errStoreWrite("append status history", err)
	}
	return application, nil
}

// GetApplication returns one application.
func (s *StatusService) GetApplication(ctx context.Context, applicationID string) (Application, error) {
	if s == nil || s.store == nil {
		return Application{}, ErrStoreNotConfigured
	}
	applicationID = strings.TrimSpace(applicationID)
	application, err := s.store.GetApplication(ctx, applicationID)
	if errors.Is(err, ErrNotFound) {
		return Application{}, errApplicationNotFound(applicationID)
	}
	return application, err
}

// ListHistory returns an application's history oldest first.
func (s *StatusService) ListHistory(ctx context.Context, applicationID string) ([]StatusHistoryEntry, error) {
	if _, err := s.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.store.ListStatusHistory(ctx, strings.TrimSpace(applicationID))
}
