package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/intake-engine/internal/auth"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/pkg/config"
)

const adminKey = "admin-secret"

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func engineConfig(port int, webhookURL, questionLabel string) string {
	return fmt.Sprintf(`
server:
  port: %d
  admin_hosts: [admin.example.test]
storage:
  type: file
relay:
  webhook_url: %q
  workers: 1
admin:
  api_keys:
    - key_hash: %q
      description: tests
tenants:
  definitions:
    - id: acme
      name: Acme
      domains: [acme.example.test]
      config:
        siteTitle: Acme Funnel
      questions:
        - type: single
          question: %q
          options: [Sure, Later]
        - type: contact
          question: Email
          contactKind: email
`, port, webhookURL, auth.HashAPIKey(adminKey), questionLabel)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func startEngine(t *testing.T, body string) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, body)

	e, err := New(WithFileConfig(path))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e, path
}

func serve(h http.Handler, method, host, target, body string, header http.Header) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Host = host
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("New() error = nil, want error without config source")
	}
	if err.Error() != "config source required (use WithFileConfig or WithConfig)" {
		t.Errorf("New() error = %v", err)
	}
}

func TestNew_OptionErrors(t *testing.T) {
	if _, err := New(WithFileConfig("")); err == nil {
		t.Error("New(WithFileConfig(\"\")) error = nil")
	}
	if _, err := New(WithConfig(nil)); err == nil {
		t.Error("New(WithConfig(nil)) error = nil")
	}
	if _, err := New(WithLogger(nil)); err == nil {
		t.Error("New(WithLogger(nil)) error = nil")
	}
}

func TestEngine_StartRejectsInvalidConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Relay.Mode = "later"

	e, err := New(WithConfig(cfg), WithMemoryStorage())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want invalid relay mode")
	}
}

func TestEngine_ServesFunnelsAndAdmin(t *testing.T) {
	beacons := make(chan domain.IntakeRequest, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.IntakeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		beacons <- req
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer hook.Close()

	e, _ := startEngine(t, engineConfig(freePort(t), hook.URL, "Ready to start?"))
	h := e.Handler()
	if h == nil {
		t.Fatal("Handler() = nil after Start")
	}

	if rec := serve(h, http.MethodGet, "anything.test", "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz status = %d", rec.Code)
	}

	rec := serve(h, http.MethodGet, "acme.example.test", "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Ready to start?") {
		t.Errorf("GET / body missing first question: %s", rec.Body.String())
	}

	if rec := serve(h, http.MethodGet, "unknown.example.test", "/", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET / on unknown host status = %d, want 404", rec.Code)
	}

	rec = serve(h, http.MethodPost, "acme.example.test", "/api/intake",
		`{"app_id":"acme","event":"progress","answers":{},"contact":{},"step":"question","question_index":0}`,
		http.Header{"Content-Type": {"application/json"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/intake status = %d body = %s", rec.Code, rec.Body.String())
	}
	select {
	case got := <-beacons:
		if got.AppID != "acme" || got.Event != domain.EventProgress || got.Timestamp == "" {
			t.Errorf("relayed beacon = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("beacon was not relayed to the webhook")
	}

	auth := http.Header{"X-Api-Key": {adminKey}}
	if rec := serve(h, http.MethodGet, "acme.example.test", "/admin/api/tenants", "", auth); rec.Code != http.StatusForbidden {
		t.Errorf("admin on tenant host status = %d, want 403", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "admin.example.test", "/admin/api/tenants", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("admin without key status = %d, want 401", rec.Code)
	}
	rec = serve(h, http.MethodGet, "admin.example.test", "/admin/api/tenants", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"acme"`) {
		t.Errorf("admin list body = %s, want acme", rec.Body.String())
	}

	rec = serve(h, http.MethodGet, "admin.example.test", "/admin/api/stats", "", auth)
	var stats struct {
		Gauges map[string]int `json:"gauges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Gauges["sessions"] != 1 {
		t.Errorf("sessions gauge = %d, want 1", stats.Gauges["sessions"])
	}
	if _, ok := stats.Gauges["relay_queue"]; !ok {
		t.Error("stats missing relay_queue gauge")
	}
}

func TestEngine_ReloadsTenantDefinitions(t *testing.T) {
	port := freePort(t)
	e, path := startEngine(t, engineConfig(port, "", "First wording?"))
	h := e.Handler()

	writeFile(t, path, engineConfig(port, "", "Second wording?"))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := serve(h, http.MethodGet, "acme.example.test", "/", "", nil)
		if strings.Contains(rec.Body.String(), "Second wording?") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("funnel still serves the old question after the config file changed")
}

func TestEngine_ReloadKeepsTenantsOnInvalidDefinitions(t *testing.T) {
	e, _ := startEngine(t, engineConfig(freePort(t), "", "Still here?"))

	e.reload(&config.Config{
		Storage: config.StorageConfig{Type: "file"},
		Tenants: config.TenantsConfig{Definitions: []config.TenantConfig{{Name: "missing id"}}},
	})

	rec := serve(e.Handler(), http.MethodGet, "acme.example.test", "/", "", nil)
	if !strings.Contains(rec.Body.String(), "Still here?") {
		t.Errorf("GET / after rejected reload = %s", rec.Body.String())
	}
}

func TestEngine_StartTwice(t *testing.T) {
	e, _ := startEngine(t, engineConfig(freePort(t), "", "Once?"))
	if err := e.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil")
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "intake.db")}}},
		{name: "unknown", cfg: config.StorageConfig{Type: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				_ = store.Close()
			}
		})
	}
}
