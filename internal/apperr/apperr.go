// Package apperr defines the error kinds shared by the service and handler layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
	// ErrDelivery marks a card that was rendered but could not be sent.
	ErrDelivery = errors.New("delivery failed")
)

// Error carries a human readable message on top of one of the kinds above.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Is lets errors.Is match either the kind or the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error     { return newf(ErrNotFound, format, args...) }
func Conflict(format string, args ...any) error     { return newf(ErrConflict, format, args...) }
func BadRequest(format string, args ...any) error   { return newf(ErrBadRequest, format, args...) }
func Unauthorized(format string, args ...any) error { return newf(ErrUnauthorized, format, args...) }
func Forbidden(format string, args ...any) error    { return newf(ErrForbidden, format, args...) }

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) error {
	return &Error{Kind: ErrInternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Delivery wraps a mail transport failure.
func Delivery(err error, format string, args ...any) error {
	return &Error{Kind: ErrDelivery, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Message returns the client facing message of err. Internal causes are hidden.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == ErrInternal {
			return e.Msg
		}
		return e.Error()
	}
	return "internal server error"
}

// HTTPStatus maps an error to the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
