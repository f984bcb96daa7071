package intake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHandler_Intake(t *testing.T) {
	f := newFixture(t, contactTenant())
	r := chi.NewRouter()
	NewHandler(f.service).Routes(r)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:       "not json",
			body:       `app_id=x`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "validation_failed", "message": "Invalid request body"},
		},
		{
			name:       "unknown field",
			body:       `{"app_id":"` + f.tenant.ID + `","event":"progress","answers":{},"contact":{},"extra":true}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "validation_failed", "message": "Invalid request body"},
		},
		{
			name:       "bad event",
			body:       `{"app_id":"` + f.tenant.ID + `","event":"click","answers":{},"contact":{}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "validation_failed", "message": "Invalid request body", "field": "event"},
		},
		{
			name:       "missing contact",
			body:       `{"app_id":"` + f.tenant.ID + `","event":"progress","answers":{}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "validation_failed", "message": "Invalid request body", "field": "contact"},
		},
		{
			name:       "unknown app",
			body:       `{"app_id":"nope","event":"progress","answers":{},"contact":{}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "validation_failed", "message": "Unknown app_id", "code": "unknown_app", "field": "app_id"},
		},
		{
			name:       "progress",
			body:       `{"app_id":"` + f.tenant.ID + `","event":"progress","answers":{"Goal?":"Grow"},"contact":{},"question_index":1}`,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"ok": true},
		},
		{
			name:       "submit",
			body:       `{"app_id":"` + f.tenant.ID + `","event":"submit","answers":{"Goal?":"Grow"},"contact":{"email":"a@b.co","phone":"5551234567"},"utm":{"utm_source":"ig"}}`,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"ok": true, "useCtaConfig": true},
		},
		{
			name:       "submit missing phone",
			body:       `{"app_id":"` + f.tenant.ID + `","event":"submit","answers":{},"contact":{"email":"a@b.co"}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "validation_failed", "message": "Missing required field: phone", "field": "contact.phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/intake", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var got map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(got) != len(tt.wantBody) {
				t.Errorf("body = %v, want %v", got, tt.wantBody)
			}
			for k, v := range tt.wantBody {
				if got[k] != v {
					t.Errorf("body[%s] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestHandler_Status(t *testing.T) {
	f := newFixture(t, contactTenant())
	f.hook.setReply(`{"status":"ok","result":{"mode":"embed","html":"<p>hi</p>"}}`, 0)
	r := chi.NewRouter()
	NewHandler(f.service).Routes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/intake/status", nil))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Missing job_id") {
		t.Errorf("status without job_id = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/intake/status?job_id=j-9&app_id="+f.tenant.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got struct {
		Result struct {
			Mode string `json:"mode"`
			HTML string `json:"html"`
		} `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Result.Mode != "embed" || got.Result.HTML != "<p>hi</p>" {
		t.Errorf("result = %+v", got.Result)
	}
}
