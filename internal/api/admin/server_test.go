package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage/memory"
)

type recordingCache struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCache) Invalidate(tenantID string, hosts ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, tenantID+"|"+strings.Join(hosts, ","))
}

func newTestServer(t *testing.T) (*Server, *memory.Store, *recordingCache) {
	t.Helper()
	store := memory.New()
	cache := &recordingCache{}
	return NewServer(store, cache, WithGauge("sessions", func() int { return 3 })), store, cache
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v (body %s)", err, rec.Body.String())
	}
	return v
}

const createBody = `{
	"name": "Acme",
	"domain": "Funnel.Acme.Example",
	"config": {"theme": {"primaryColor": "#ff0000"}, "cta": {"type": "link", "label": "Go", "url": "https://acme.example/"}},
	"questions": [
		{"type": "single", "question": "Pick", "options": ["A", "B"]},
		{"type": "contact", "question": "Email"}
	]
}`

func TestCreateAndGetTenant(t *testing.T) {
	s, _, cache := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/tenants", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		ID        string            `json:"id"`
		Name      string            `json:"name"`
		Questions []domain.Question `json:"questions"`
		Domains   []domain.Domain   `json:"domains"`
	}](t, rec)
	if created.ID == "" || created.Name != "Acme" {
		t.Errorf("created = %+v", created)
	}
	if len(created.Questions) != 2 || created.Questions[0].ID != "q1" || created.Questions[1].ContactKind != domain.ContactEmail {
		t.Errorf("questions not normalized: %+v", created.Questions)
	}
	if len(created.Domains) != 1 || created.Domains[0].Domain != "funnel.acme.example" || !created.Domains[0].IsPrimary {
		t.Errorf("domains = %+v", created.Domains)
	}
	if len(cache.calls) != 1 {
		t.Errorf("cache invalidations = %v", cache.calls)
	}

	rec = do(t, s, http.MethodGet, "/api/tenants/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got domain.Tenant
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := got.Config.CTA.(domain.LinkCTA); !ok {
		t.Errorf("cta = %T, want LinkCTA", got.Config.CTA)
	}

	rec = do(t, s, http.MethodGet, "/api/tenants", "")
	list := decode[TenantListResponse](t, rec)
	if len(list.Tenants) != 1 || list.Tenants[0].PrimaryDomain != "funnel.acme.example" {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateTenant_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   domain.ErrorType
	}{
		{"malformed", `{`, http.StatusBadRequest, domain.ErrorTypeValidation},
		{"unknown field", `{"name":"A","domain":"a.example","extra":1}`, http.StatusBadRequest, domain.ErrorTypeValidation},
		{"missing name", `{"domain":"a.example"}`, http.StatusBadRequest, domain.ErrorTypeValidation},
		{"bad domain", `{"name":"A","domain":"not a host"}`, http.StatusBadRequest, domain.ErrorTypeValidation},
		{"single without options", `{"name":"A","domain":"a.example","questions":[{"type":"single","question":"?"}]}`, http.StatusBadRequest, domain.ErrorTypeValidation},
		{"duplicate ids", `{"name":"A","domain":"a.example","questions":[{"id":"x","type":"text"},{"id":"x","type":"text"}]}`, http.StatusBadRequest, domain.ErrorTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestServer(t)
			rec := do(t, s, http.MethodPost, "/api/tenants", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decode[domain.APIError](t, rec); got.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}
}

func TestCreateTenant_DomainConflict(t *testing.T) {
	s, _, _ := newTestServer(t)
	if rec := do(t, s, http.MethodPost, "/api/tenants", createBody); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec := do(t, s, http.MethodPost, "/api/tenants", createBody)
	if rec.Code != http.StatusConflict {
		t.Errorf("second create status = %d, want 409", rec.Code)
	}
}

func TestUpdateTenant(t *testing.T) {
	s, store, cache := newTestServer(t)
	tn := &domain.Tenant{Name: "Acme", Questions: []domain.Question{{ID: "q1", Type: domain.QuestionText}}}
	if err := store.CreateTenant(t.Context(), tn, "acme.example"); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	rec := do(t, s, http.MethodPut, "/api/tenants/"+tn.ID, `{"name":"Acme Co"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	got, _ := store.GetTenantByID(t.Context(), tn.ID)
	if got.Name != "Acme Co" || len(got.Questions) != 1 {
		t.Errorf("after name update = %+v", got)
	}
	if len(cache.calls) != 1 || !strings.HasPrefix(cache.calls[0], tn.ID) {
		t.Errorf("cache invalidations = %v", cache.calls)
	}

	rec = do(t, s, http.MethodPut, "/api/tenants/"+tn.ID, `{"questions":[{"type":"multi","question":"?"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid questions status = %d, want 400", rec.Code)
	}

	rec = do(t, s, http.MethodPut, "/api/tenants/"+tn.ID, `{"questions":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear questions status = %d", rec.Code)
	}
	got, _ = store.GetTenantByID(t.Context(), tn.ID)
	if len(got.Questions) != 0 {
		t.Errorf("questions = %v, want cleared", got.Questions)
	}

	if rec := do(t, s, http.MethodPut, "/api/tenants/missing", `{"name":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing tenant status = %d, want 404", rec.Code)
	}
}

func TestDomains(t *testing.T) {
	s, store, cache := newTestServer(t)
	tn := &domain.Tenant{Name: "Acme"}
	if err := store.CreateTenant(t.Context(), tn, "acme.example"); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}
	base := "/api/tenants/" + tn.ID + "/domains/"

	if rec := do(t, s, http.MethodPost, base+"www.acme.example", ""); rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, base+"www.acme.example", ""); rec.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, base+"www.acme.example/primary", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("primary status = %d", rec.Code)
	}
	domains, _ := store.Domains(t.Context(), tn.ID)
	if len(domains) != 2 || domains[0].Domain != "www.acme.example" || !domains[0].IsPrimary {
		t.Errorf("domains = %+v", domains)
	}
	if rec := do(t, s, http.MethodDelete, base+"acme.example", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, base+"acme.example", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/tenants/missing/domains/x.example", ""); rec.Code != http.StatusNotFound {
		t.Errorf("add to missing tenant status = %d, want 404", rec.Code)
	}
	if len(cache.calls) != 3 {
		t.Errorf("cache invalidations = %v, want 3", cache.calls)
	}
}

func TestStats(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decode[StatsResponse](t, rec)
	if stats.GoVersion == "" || stats.Gauges["sessions"] != 3 || stats.Tenants != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
