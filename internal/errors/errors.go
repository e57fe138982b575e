// Package errors defines the error taxonomy shared by the fund layer.
//
// Errors fall into five categories: validation, authorization, not-found,
// state conflicts, and external-call failures. Handlers map categories to
// HTTP status codes; services never inspect message text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and metrics.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindState        Kind = "state"
	KindExternal     Kind = "external"
	KindInternal     Kind = "internal"
)

// Error is the fund layer error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation creates a validation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized creates an authentication error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden creates an authorization error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound creates a not-found error for an entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// State creates a state-conflict error (insufficient balance, duplicate id, ...).
func State(format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// External wraps a failed call to an external dependency.
func External(message string, err error) *Error {
	return &Error{Kind: KindExternal, Message: message, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
