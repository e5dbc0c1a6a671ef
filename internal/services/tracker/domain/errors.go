package domain

import (
	"errors"

	apperrors "github.com/louisbranch/applytrack/internal/platform/errors"
)

var (
	// ErrNotFound indicates a tracker record was not found.
	ErrNotFound = errors.New("tracker record not found")
	// ErrConflict indicates a write conflicted with a uniqueness or state guard.
	ErrConflict = errors.New("tracker record conflict")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("tracker store is not configured")
	// ErrDispatcherNotConfigured indicates the service is missing a dispatcher.
	ErrDispatcherNotConfigured = errors.New("notification dispatcher is not configured")
	// ErrUnknownJobKind indicates a job carried a kind with no dispatch recipe.
	ErrUnknownJobKind = errors.New("unknown job kind")
	// ErrMalformedPayload indicates a stored job payload could not be decoded.
	ErrMalformedPayload = errors.New("malformed job payload")
)

func errApplicationNotFound(applicationID string) error {
	return apperrors.WrapWithMetadata(apperrors.CodeApplicationNotFound, "application not found",
		map[string]string{"ApplicationID": applicationID}, ErrNotFound)
}

func errInvalidTransition(from, to Status) error {
	return apperrors.WithMetadata(apperrors.CodeApplicationInvalidStatusTransition,
		"application cannot transition from "+string(from)+" to "+string(to),
		map[string]string{"FromStatus": string(from), "ToStatus": string(to)})
}

func errUnknownStatus(raw string) error {
	return apperrors.WithMetadata(apperrors.CodeApplicationUnknownStatus, "unknown application status "+raw,
		map[string]string{"Status": raw})
}

func errUnknownActor(raw string) error {
	return apperrors.WithMetadata(apperrors.CodeApplicationUnknownActor, "unknown actor kind "+raw,
		map[string]string{"Actor": raw})
}

func errStoreWrite(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeStoreWriteFailed, message, cause)
}

func errJobNotFound(jobID string) error {
	return apperrors.WrapWithMetadata(apperrors.CodeJobNotFound, "job not found",
		map[string]string{"JobID": jobID}, ErrNotFound)
}

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}
