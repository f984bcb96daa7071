package domain

import (
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeValidation, Message: "bad request"},
			expected: "validation_failed: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      ErrWebhookTimeout(),
			expected: "webhook_unavailable (timeout): Request timed out. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{name: "validation", err: ErrValidation("x"), expected: http.StatusBadRequest},
		{name: "upstream", err: ErrUpstream("x"), expected: http.StatusBadGateway},
		{name: "webhook unavailable", err: ErrWebhookUnavailable("x"), expected: http.StatusBadGateway},
		{name: "authentication", err: ErrAuthentication("x"), expected: http.StatusUnauthorized},
		{name: "permission", err: ErrPermission("x"), expected: http.StatusForbidden},
		{name: "not found", err: ErrNotFound("x"), expected: http.StatusNotFound},
		{name: "conflict", err: ErrConflict("x"), expected: http.StatusConflict},
		{name: "rate limit", err: ErrRateLimit("x"), expected: http.StatusTooManyRequests},
		{name: "server", err: ErrServer("x"), expected: http.StatusInternalServerError},
		{name: "explicit status wins", err: ErrServer("x").WithStatusCode(http.StatusServiceUnavailable), expected: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Builders(t *testing.T) {
	err := ErrValidation("Unknown app_id").WithCode(ErrorCodeUnknownApp).WithField("app_id")
	if err.Code != ErrorCodeUnknownApp || err.Field != "app_id" {
		t.Errorf("builders = %+v", err)
	}
}
