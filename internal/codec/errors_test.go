package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedType domain.ErrorType
		expectedMsg  string
	}{
		{
			name:         "domain APIError passes through",
			err:          domain.ErrValidation("Unknown app_id"),
			expectedType: domain.ErrorTypeValidation,
			expectedMsg:  "Unknown app_id",
		},
		{
			name:         "wrapped APIError passes through",
			err:          fmt.Errorf("handle: %w", domain.ErrWebhookTimeout()),
			expectedType: domain.ErrorTypeWebhookUnavailable,
			expectedMsg:  "Request timed out. Please try again.",
		},
		{
			name:         "storage not found",
			err:          fmt.Errorf("tenant x: %w", storage.ErrNotFound),
			expectedType: domain.ErrorTypeNotFound,
			expectedMsg:  "Not found",
		},
		{
			name:         "storage conflict",
			err:          fmt.Errorf("domain x: %w", storage.ErrConflict),
			expectedType: domain.ErrorTypeConflict,
			expectedMsg:  "Already exists",
		},
		{
			name:         "regular error is hidden",
			err:          errors.New("dial tcp 10.0.0.1: refused"),
			expectedType: domain.ErrorTypeServer,
			expectedMsg:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToAPIError(tt.err)
			if result.Type != tt.expectedType {
				t.Errorf("Type = %v, want %v", result.Type, tt.expectedType)
			}
			if result.Message != tt.expectedMsg {
				t.Errorf("Message = %v, want %v", result.Message, tt.expectedMsg)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name               string
		err                error
		expectedStatusCode int
		expectedBody       map[string]string
	}{
		{
			name:               "validation",
			err:                domain.ErrValidation("Missing required field: email"),
			expectedStatusCode: http.StatusBadRequest,
			expectedBody:       map[string]string{"error": "validation_failed", "message": "Missing required field: email"},
		},
		{
			name:               "timeout",
			err:                domain.ErrWebhookTimeout(),
			expectedStatusCode: http.StatusBadGateway,
			expectedBody:       map[string]string{"error": "webhook_unavailable", "message": "Request timed out. Please try again.", "code": "timeout"},
		},
		{
			name:               "upstream",
			err:                domain.ErrUpstream("n8n returned an error"),
			expectedStatusCode: http.StatusBadGateway,
			expectedBody:       map[string]string{"error": "upstream_error", "message": "n8n returned an error"},
		},
		{
			name:               "rate limited",
			err:                domain.ErrRateLimit("Too many requests"),
			expectedStatusCode: http.StatusTooManyRequests,
			expectedBody:       map[string]string{"error": "rate_limited", "message": "Too many requests"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.expectedStatusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(body) != len(tt.expectedBody) {
				t.Errorf("body = %v, want %v", body, tt.expectedBody)
			}
			for k, v := range tt.expectedBody {
				if body[k] != v {
					t.Errorf("body[%s] = %q, want %q", k, body[k], v)
				}
			}
		})
	}
}

type decodeTarget struct {
	AppID string            `json:"app_id" validate:"required"`
	Tags  map[string]string `json:"tags" validate:"omitempty,dive,keys,startswith=utm_,endkeys"`
}

func TestDecoder_Decode(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantField string
	}{
		{name: "valid", body: `{"app_id":"a","tags":{"utm_source":"x"}}`},
		{name: "unknown field", body: `{"app_id":"a","extra":1}`, wantErr: true},
		{name: "trailing data", body: `{"app_id":"a"} {}`, wantErr: true},
		{name: "not json", body: `app_id=a`, wantErr: true},
		{name: "missing required", body: `{}`, wantErr: true, wantField: "app_id"},
		{name: "bad key", body: `{"app_id":"a","tags":{"source":"x"}}`, wantErr: true},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst decodeTarget
			err := d.Decode(strings.NewReader(tt.body), &dst, "Invalid request body")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			apiErr := ToAPIError(err)
			if apiErr.Type != domain.ErrorTypeValidation || apiErr.Message != "Invalid request body" {
				t.Errorf("Decode() error = %+v", apiErr)
			}
			if tt.wantField != "" && apiErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", apiErr.Field, tt.wantField)
			}
		})
	}
}
