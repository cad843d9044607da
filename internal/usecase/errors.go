package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrorRateLimited           ErrorCode = "RATE_LIMITED"
	ErrorDependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
	ErrorInternal              ErrorCode = "INTERNAL_ERROR"
	ErrorUpstream              ErrorCode = "UPSTREAM_ERROR"
	ErrorServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorNotFound              ErrorCode = "NOT_FOUND"
	ErrorForbidden             ErrorCode = "FORBIDDEN"
	ErrorUnauthorized          ErrorCode = "UNAUTHORIZED"
)

// HTTPStatus maps an error code to its response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrorInvalidInput:
		return http.StatusBadRequest
	case ErrorRateLimited:
		return http.StatusTooManyRequests
	case ErrorDependencyUnavailable, ErrorServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorUpstream:
		return http.StatusBadGateway
	case ErrorNotFound:
		return http.StatusNotFound
	case ErrorForbidden:
		return http.StatusForbidden
	case ErrorUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// SafeMessage is the client-facing text for a code. Underlying causes are
// never exposed.
func (c ErrorCode) SafeMessage() string {
	switch c {
	case ErrorInvalidInput:
		return "Invalid request"
	case ErrorRateLimited:
		return "Rate limit exceeded. Try again later."
	case ErrorDependencyUnavailable:
		return "Service temporarily unavailable"
	case ErrorUpstream:
		return "Upstream model error"
	case ErrorServiceUnavailable:
		return "Model service unavailable"
	case ErrorNotFound:
		return "Not found"
	case ErrorForbidden:
		return "Forbidden"
	case ErrorUnauthorized:
		return "Invalid token"
	default:
		return "Internal server error"
	}
}

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// AsError returns err as *Error, wrapping unknown errors as INTERNAL_ERROR.
func AsError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return newError(ErrorInternal, "unexpected_error", err)
}

// Forbidden reports that the caller may not act on another user's data.
func Forbidden(reason string) *Error {
	return newError(ErrorForbidden, reason, nil)
}
