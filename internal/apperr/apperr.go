// Package apperr is the error taxonomy shared by the HTTP and realtime boundaries.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindAccessDenied     Kind = "access_denied"
	KindNotFound         Kind = "not_found"
	KindAuthentication   Kind = "authentication_error"
	KindInvalidOperation Kind = "invalid_operation"
	KindTransient        Kind = "transient_persistence_error"
	KindRateLimited      Kind = "rate_limited"
)

// Error is an application error with a client-safe message.
// Err holds the cause and is never rendered to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindInvalidOperation:
		return http.StatusBadRequest
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error {
	return New(KindValidation, msg)
}

func AccessDenied(msg string) *Error {
	return New(KindAccessDenied, msg)
}

func NotFound(msg string) *Error {
	return New(KindNotFound, msg)
}

func Authentication(msg string) *Error {
	return New(KindAuthentication, msg)
}

func InvalidOperation(msg string) *Error {
	return New(KindInvalidOperation, msg)
}

func RateLimited(msg string) *Error {
	return New(KindRateLimited, msg)
}

// Transient wraps an infrastructure failure. The client only sees the generic message.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Message: "temporary storage failure, please retry", Err: err}
}

// As returns the *Error in err's chain, or a Transient wrapper for anything else.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Transient(err)
}

// KindOf returns the kind of err, treating unknown errors as transient.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
