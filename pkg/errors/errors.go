package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error that knows the HTTP status it maps to.
// Handlers hand these straight to the response envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// New builds an Error from its parts.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an Error that carries the underlying cause.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Generic errors shared across all endpoints.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Workflow errors surfaced by the application core.
var (
	// Authorization class.
	ErrNotEnrolled     = New("NOT_ENROLLED", http.StatusForbidden, "student is not enrolled in the active session")
	ErrNotEligible     = New("NOT_ELIGIBLE", http.StatusForbidden, "enrollment does not meet the session credit threshold")
	ErrSessionInactive = New("SESSION_INACTIVE", http.StatusForbidden, "no active internship session")

	// Validation class.
	ErrInvalidTransition       = New("INVALID_TRANSITION", http.StatusUnprocessableEntity, "illegal application status transition")
	ErrDuplicateActiveDocument = New("DUPLICATE_ACTIVE_DOCUMENT", http.StatusConflict, "an active document of this type already exists")
	ErrMissingRequiredComment  = New("MISSING_REQUIRED_COMMENT", http.StatusBadRequest, "comments are required when requesting changes")

	// Concurrency class. Safe for the caller to retry once; never
	// retried internally.
	ErrStorageConflict = New("STORAGE_CONFLICT", http.StatusConflict, "entity was modified concurrently")
)

// FromError normalises any error into an *Error. Untyped errors are
// masked as internal so their details never leak to clients.
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

// Clone copies a predefined error, optionally overriding its message.
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
