// Package domain provides the funnel data model and canonical error types for the intake API.
package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeValidation indicates a malformed body or a failed field rule.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeUpstream indicates the webhook answered with an error envelope.
	ErrorTypeUpstream ErrorType = "upstream_error"

	// ErrorTypeWebhookUnavailable indicates the webhook could not be reached or is not configured.
	ErrorTypeWebhookUnavailable ErrorType = "webhook_unavailable"

	// ErrorTypeAuthentication indicates an admin authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates the request came from a host that may not use the admin API.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeConflict indicates a uniqueness violation, e.g. a domain already claimed.
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypeRateLimit indicates a client exceeded the intake request budget.
	ErrorTypeRateLimit ErrorType = "rate_limited"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeTimeout       ErrorCode = "timeout"
	ErrorCodeNotConfigured ErrorCode = "not_configured"
	ErrorCodeInvalidAPIKey ErrorCode = "invalid_api_key"
	ErrorCodeUnknownApp    ErrorCode = "unknown_app"
)

// APIError is the error shape written by every JSON endpoint.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"error"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Field names the offending request field (if applicable)
	Field string `json:"field,omitempty"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeUpstream, ErrorTypeWebhookUnavailable:
		return http.StatusBadGateway
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithField records the request field that caused the error.
func (e *APIError) WithField(field string) *APIError {
	e.Field = field
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// Convenience constructors for common errors

// ErrValidation creates a validation_failed error.
func ErrValidation(message string) *APIError {
	return NewAPIError(ErrorTypeValidation, message)
}

// ErrUpstream creates an upstream_error error.
func ErrUpstream(message string) *APIError {
	return NewAPIError(ErrorTypeUpstream, message)
}

// ErrWebhookUnavailable creates a webhook_unavailable error.
func ErrWebhookUnavailable(message string) *APIError {
	return NewAPIError(ErrorTypeWebhookUnavailable, message)
}

// ErrWebhookTimeout creates a webhook_unavailable error tagged as a timeout.
func ErrWebhookTimeout() *APIError {
	return NewAPIError(ErrorTypeWebhookUnavailable, "Request timed out. Please try again.").
		WithCode(ErrorCodeTimeout)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message)
}

// ErrPermission creates a permission error.
func ErrPermission(message string) *APIError {
	return NewAPIError(ErrorTypePermission, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrConflict creates a conflict error.
func ErrConflict(message string) *APIError {
	return NewAPIError(ErrorTypeConflict, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}
