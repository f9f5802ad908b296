package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their sentinel.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Admission errors.
var (
	ErrIneligible          = New("ENROLLMENT_INELIGIBLE", http.StatusUnprocessableEntity, "student is not eligible for this course")
	ErrDuplicateEnrollment = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already enrolled or waitlisted in course")
	ErrNotEnrolled         = New("NOT_ENROLLED", http.StatusConflict, "student has no active enrollment in course")
	ErrNotWaitlisted       = New("NOT_WAITLISTED", http.StatusConflict, "student is not waitlisted in course")
	ErrAlreadyQueued       = New("ALREADY_QUEUED", http.StatusConflict, "student already queued for course")
	ErrCapacityExhausted   = New("CAPACITY_EXHAUSTED", http.StatusConflict, "no seats available")
	ErrCapacityBelowTaken  = New("CAPACITY_BELOW_TAKEN", http.StatusConflict, "capacity cannot drop below taken seats")
	ErrLedgerEmpty         = New("LEDGER_ALREADY_EMPTY", http.StatusInternalServerError, "release on empty capacity ledger")
	ErrInvariantViolation  = New("INVARIANT_VIOLATION", http.StatusInternalServerError, "admission invariant violated")
)

// ErrDependencyUnavailable marks collaborator outages; callers may retry.
var ErrDependencyUnavailable = &Error{
	Code:      "DEPENDENCY_UNAVAILABLE",
	Status:    http.StatusServiceUnavailable,
	Message:   "upstream directory unavailable",
	Retryable: true,
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Dependency wraps a collaborator failure as a retryable DependencyUnavailable error.
func Dependency(err error, message string) *Error {
	wrapped := Clone(ErrDependencyUnavailable, message)
	wrapped.Err = err
	return wrapped
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
