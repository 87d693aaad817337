// Package apperr defines the error taxonomy shared by services and the
// HTTP/realtime boundaries.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an Error and determines its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
)

// Error is a typed service error. Errors is only populated for validation
// failures and lists every violated constraint.
type Error struct {
	Kind    Kind
	Message string
	Errors  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Validation(errs ...string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Errors: errs}
}

func Auth(msg string) *Error { return &Error{Kind: KindAuth, Message: msg} }

func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// As returns the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Collector accumulates validation messages so callers can report every
// violation at once.
type Collector struct {
	errs []string
}

func (c *Collector) Check(ok bool, msg string) {
	if !ok {
		c.errs = append(c.errs, msg)
	}
}

// Err returns a validation error if anything was collected, nil otherwise.
func (c *Collector) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return Validation(c.errs...)
}
