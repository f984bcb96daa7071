package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/tjfontaine/intake-engine/internal/pkg/config"
	"github.com/tjfontaine/intake-engine/internal/storage/memory"
)

func definition(id, title string, domains ...string) config.TenantConfig {
	return config.TenantConfig{
		ID:      id,
		Name:    "Acme",
		Domains: domains,
		Config:  map[string]any{"siteTitle": title},
		Questions: []map[string]any{
			{"type": "single", "question": "Pick one", "options": []any{"A", "B"}},
			{"type": "contact", "question": "Email", "contactKind": "email"},
		},
	}
}

func TestSeed_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	created, updated, err := seed(ctx, store, []config.TenantConfig{
		definition("acme", "First", "acme.example.com", "WWW.acme.example.com"),
	}, logger)
	if err != nil {
		t.Fatalf("seed() error = %v", err)
	}
	if created != 1 || updated != 0 {
		t.Errorf("seed() = %d created, %d updated, want 1, 0", created, updated)
	}

	domains, err := store.Domains(ctx, "acme")
	if err != nil {
		t.Fatalf("Domains() error = %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("Domains() = %v, want 2", domains)
	}
	for _, d := range domains {
		if d.IsPrimary != (d.Domain == "acme.example.com") {
			t.Errorf("domain %s primary = %v", d.Domain, d.IsPrimary)
		}
	}

	created, updated, err = seed(ctx, store, []config.TenantConfig{
		definition("acme", "Second", "acme.example.com", "new.acme.example.com"),
	}, logger)
	if err != nil {
		t.Fatalf("second seed() error = %v", err)
	}
	if created != 0 || updated != 1 {
		t.Errorf("second seed() = %d created, %d updated, want 0, 1", created, updated)
	}

	got, err := store.GetTenantByDomain(ctx, "new.acme.example.com")
	if err != nil {
		t.Fatalf("GetTenantByDomain() error = %v", err)
	}
	if got.Config.SiteTitle != "Second" {
		t.Errorf("SiteTitle = %q, want Second", got.Config.SiteTitle)
	}
}

func TestSeed_GeneratesIDs(t *testing.T) {
	store := memory.New()
	created, _, err := seed(context.Background(), store, []config.TenantConfig{
		definition("", "No id", "noid.example.com"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("seed() error = %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if _, err := store.GetTenantByDomain(context.Background(), "noid.example.com"); err != nil {
		t.Errorf("GetTenantByDomain() error = %v", err)
	}
}

func TestSeed_InvalidDefinition(t *testing.T) {
	def := definition("bad", "Bad", "bad.example.com")
	def.Questions = []map[string]any{{"type": "single", "question": "No options"}}

	_, _, err := seed(context.Background(), memory.New(), []config.TenantConfig{def},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("seed() error = nil, want validation failure")
	}
}

func TestOpenSQL_RejectsNonSQLStorage(t *testing.T) {
	for _, typ := range []string{"memory", "file"} {
		if _, err := openSQL(config.StorageConfig{Type: typ}); err == nil {
			t.Errorf("openSQL(%q) error = nil", typ)
		}
	}
}
