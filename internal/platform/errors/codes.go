// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Application errors
	CodeApplicationNotFound                Code = "APPLICATION_NOT_FOUND"
	CodeApplicationInvalidStatusTransition Code = "APPLICATION_INVALID_STATUS_TRANSITION"
	CodeApplicationUnknownStatus           Code = "APPLICATION_UNKNOWN_STATUS"
	CodeApplicationUnknownActor            Code = "APPLICATION_UNKNOWN_ACTOR"
	CodeApplicationInvalid                 Code = "APPLICATION_INVALID"

	// Reminder rule errors
	CodeRuleInvalid Code = "RULE_INVALID"

	// Job errors
	CodeJobNotFound   Code = "JOB_NOT_FOUND"
	CodeJobNotPending Code = "JOB_NOT_PENDING"
	CodeJobInvalid    Code = "JOB_INVALID"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreWriteFailed Code = "STORE_WRITE_FAILED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - validation failures, bad input
	case CodeApplicationUnknownStatus,
		CodeApplicationUnknownActor,
		CodeApplicationInvalid,
		CodeRuleInvalid,
		CodeJobInvalid:
		return http.StatusBadRequest

	// Conflict - state doesn't allow operation
	case CodeApplicationInvalidStatusTransition,
		CodeJobNotPending:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeApplicationNotFound,
		CodeJobNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
