// Package apperror defines the typed error categories the coordinator
// surfaces, so the API layer can map failures to HTTP status codes
// without string matching.
package apperror

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies one of the error categories from the coordination core's
// error handling design: NotFound, OwnershipMismatch, Validation, Conflict,
// Transient, and Fatal.
type Kind int

const (
	// KindUnknown is the zero value; never returned deliberately.
	KindUnknown Kind = iota
	// KindNotFound maps to HTTP 404.
	KindNotFound
	// KindOwnershipMismatch maps to HTTP 403. Raised whenever a caller's
	// claimed pod_name does not match a datum's recorded owner.
	KindOwnershipMismatch
	// KindValidation maps to HTTP 400 (malformed pipeline spec, missing fields).
	KindValidation
	// KindConflict maps to HTTP 500. Indicates an internal invariant breach
	// (e.g. a duplicate (job_id, uri) insert slipping past ownership checks).
	KindConflict
	// KindTransient maps to HTTP 503 (database unavailable, orchestrator CLI timeout).
	KindTransient
	// KindFatal indicates a startup-time configuration or schema failure.
	// The process aborts before serving any request; it is never returned mid-request.
	KindFatal
)

// String renders the Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindOwnershipMismatch:
		return "ownership_mismatch"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the coordinator's single application-level error type. Handlers
// and background passes surface this instead of ad-hoc errors so the HTTP
// layer and the logs can branch on Kind rather than on message text.
type Error struct {
	Kind    Kind
	Message string
	// Actual and Claimed are populated only for KindOwnershipMismatch, and
	// must flow into both the log event and the HTTP response body verbatim
	// (per the coordination core's debuggability requirement).
	Actual  string
	Claimed string
	// DatumID and JobID identify the ownership guard's subject for
	// KindOwnershipMismatch errors, so callers can log them without
	// re-querying the store.
	DatumID uuid.UUID
	JobID   uuid.UUID
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap enables errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// NotFound constructs a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Validation constructs a KindValidation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Conflict constructs a KindConflict error, wrapping the underlying database
// constraint violation that triggered it.
func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, cause: cause}
}

// Transient constructs a KindTransient error, wrapping the underlying
// infrastructure failure.
func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, cause: cause}
}

// Fatal constructs a KindFatal error.
func Fatal(message string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: message, cause: cause}
}

// OwnershipMismatch constructs a KindOwnershipMismatch error carrying both
// pod identifiers and the datum/job the mismatch was found on, as the
// ownership guard requires.
func OwnershipMismatch(datumID, jobID uuid.UUID, actual, claimed string) *Error {
	return &Error{
		Kind:    KindOwnershipMismatch,
		Message: "datum is not owned by the claimed pod",
		Actual:  actual,
		Claimed: claimed,
		DatumID: datumID,
		JobID:   jobID,
	}
}

// As is a small helper so callers can pattern-match without importing
// "errors" for the common case.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}

	return nil, false
}
