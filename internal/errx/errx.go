// Package errx attaches HTTP status codes and safe messages to errors.
package errx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

const (
	// SystemErrorMessage is the user-facing fallback for internal errors.
	SystemErrorMessage = "internal server error"
	// UpstreamErrorMessage describes quote source failures.
	UpstreamErrorMessage = "price comparison service failed"
	// TimeoutErrorMessage describes quote source timeouts.
	TimeoutErrorMessage = "price comparison timed out"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// BadRequest reports invalid client input; the message is shown verbatim.
func BadRequest(err error) *AppError {
	return &AppError{Err: err, Status: http.StatusBadRequest, Message: err.Error()}
}

// NotFound reports a missing resource with the given message.
func NotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: message}
}

// WrapUpstream maps a quote source failure to 504 on deadline, 502 otherwise.
func WrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &AppError{Err: err, Status: http.StatusGatewayTimeout, Message: TimeoutErrorMessage}
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Message: UpstreamErrorMessage}
}

// StatusOf returns the HTTP status and safe message for err.
func StatusOf(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}
	return http.StatusInternalServerError, SystemErrorMessage
}
