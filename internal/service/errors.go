package service

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a request-level failure.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION_ERROR"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindExpired         ErrorKind = "EXPIRED"
	KindInvalid         ErrorKind = "INVALID_CODE"
	KindMalformed       ErrorKind = "MALFORMED_TOKEN"
	KindUnauthenticated ErrorKind = "UNAUTHENTICATED"
	// KindUnavailable marks infrastructure faults (store, secret). Callers may retry.
	KindUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
)

// Error carries a kind, a message safe to show to the caller and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindExpired}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func validationError(message string) error { return newError(KindValidation, message, nil) }
func notFoundError(message string) error   { return newError(KindNotFound, message, nil) }
func expiredError(message string) error    { return newError(KindExpired, message, nil) }
func invalidError(message string) error    { return newError(KindInvalid, message, nil) }

func malformedError(message string, err error) error {
	return newError(KindMalformed, message, err)
}

func unavailableError(err error) error {
	return newError(KindUnavailable, "service temporarily unavailable", err)
}

// UnauthenticatedError is returned by the access gate when no credential was supplied.
func UnauthenticatedError(message string) error {
	return newError(KindUnauthenticated, message, nil)
}
