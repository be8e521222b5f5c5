package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/GoPolymarket/extgate/internal/pkg/metrics"
)

type ErrorType string

const (
	ErrConfiguration    ErrorType = "CONFIGURATION_ERROR"
	ErrUnknownEndpoint  ErrorType = "UNKNOWN_ENDPOINT"
	ErrTransport        ErrorType = "TRANSPORT_ERROR"
	ErrUpstream         ErrorType = "UPSTREAM_ERROR"
	ErrAuditPersistence ErrorType = "AUDIT_PERSISTENCE_ERROR"
	ErrCachePolicy      ErrorType = "CACHE_POLICY_ERROR"
	ErrInvalidRequest   ErrorType = "INVALID_REQUEST"
	ErrNotFound         ErrorType = "NOT_FOUND"
	ErrInternal         ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewConfiguration(msg string, cause error) *AppError {
	return New(ErrConfiguration, msg, cause)
}

func NewUnknownEndpoint(service, endpoint string) *AppError {
	return New(ErrUnknownEndpoint, fmt.Sprintf("service %s has no endpoint %q", service, endpoint), nil)
}

func NewTransport(msg string, cause error) *AppError {
	return New(ErrTransport, msg, cause)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether err is, or wraps, an AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// TypeOf returns the AppError type of err, or ErrInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrInternal
}

// Report hands an absorbed error to the operator: it is logged and counted,
// never returned to the caller.
func Report(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	t := TypeOf(err)
	metrics.ErrorsReported.WithLabelValues(string(t)).Inc()
	args = append(args, "code", t)
	logger.LogError(ctx, err, msg, args...)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrNotFound, ErrUnknownEndpoint:
		return http.StatusNotFound
	case ErrTransport:
		return http.StatusGatewayTimeout
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrUnknownEndpoint:
		return "Check the endpoint table of the service configuration."
	case ErrTransport:
		return "Retry the request; the external service did not answer."
	case ErrConfiguration:
		return "Check the service configuration keys."
	default:
		return ""
	}
}
