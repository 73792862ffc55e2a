// Package fixerr classifies the failures fix operations report so callers can
// map them to exit codes and HTTP statuses.
package fixerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Type string

const (
	TypeValidation Type = "validation"
	TypeNotFound   Type = "not_found"
	TypeConflict   Type = "conflict"
	TypeExternal   Type = "external"
	TypeInternal   Type = "internal"
)

// ErrCancelled marks a job stopped by a user cancel request. It is a terminal
// outcome, not a failure.
var ErrCancelled = errors.New("cancelled")

type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Type: TypeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Type: TypeConflict, Message: fmt.Sprintf(format, args...)}
}

func External(cause error, format string, args ...any) *Error {
	return &Error{Type: TypeExternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Internal(cause error, format string, args ...any) *Error {
	return &Error{Type: TypeInternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// TypeOf returns the classification of err, TypeInternal when unclassified.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// HTTPStatus maps any error to a response status.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
