package sqldb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

var memdbSeq atomic.Int32

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:tenantdb%d?mode=memory&cache=shared", memdbSeq.Add(1))
	store, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTenant(name string) *domain.Tenant {
	return &domain.Tenant{
		Name: name,
		Config: domain.AppConfig{
			SiteTitle: name + " funnel",
			CTA:       domain.LinkCTA{Label: "Book", URL: "https://book.test"},
		},
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionSingle, Question: "Goal?", Options: []string{"Grow", "Save"}},
			{ID: "q2", Type: domain.QuestionContact, ContactKind: domain.ContactEmail},
		},
	}
}

func TestSQLDBStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tenant := sampleTenant("Lions Den")
	if err := store.CreateTenant(ctx, tenant, "Lionsden.Example:443"); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}
	if tenant.ID == "" {
		t.Fatal("CreateTenant() did not assign an id")
	}

	byID, err := store.GetTenantByID(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("GetTenantByID() error = %v", err)
	}
	if byID.Name != "Lions Den" || byID.Config.SiteTitle != "Lions Den funnel" {
		t.Errorf("GetTenantByID() = %+v", byID)
	}
	if link, ok := byID.Config.CTA.(domain.LinkCTA); !ok || link.URL != "https://book.test" {
		t.Errorf("CTA = %#v, want link CTA", byID.Config.CTA)
	}
	if len(byID.Questions) != 2 || byID.Questions[1].ContactKind != domain.ContactEmail {
		t.Errorf("Questions = %+v", byID.Questions)
	}

	byHost, err := store.GetTenantByDomain(ctx, "LIONSDEN.example")
	if err != nil {
		t.Fatalf("GetTenantByDomain() error = %v", err)
	}
	if byHost.ID != tenant.ID {
		t.Errorf("GetTenantByDomain() id = %s, want %s", byHost.ID, tenant.ID)
	}

	if _, err := store.GetTenantByDomain(ctx, "unknown.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTenantByDomain(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetTenantByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTenantByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_DuplicateDomain(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateTenant(ctx, sampleTenant("A"), "shared.example"); err != nil {
		t.Fatalf("CreateTenant(A) error = %v", err)
	}
	second := sampleTenant("B")
	err := store.CreateTenant(ctx, second, "shared.example")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("CreateTenant(B) error = %v, want ErrConflict", err)
	}
	if _, err := store.GetTenantByID(ctx, second.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("tenant B should be rolled back, got %v", err)
	}
}

func TestSQLDBStore_ListTenants(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := sampleTenant("A")
	b := sampleTenant("B")
	if err := store.CreateTenant(ctx, a, "a.example"); err != nil {
		t.Fatalf("CreateTenant(A) error = %v", err)
	}
	if err := store.CreateTenant(ctx, b, ""); err != nil {
		t.Fatalf("CreateTenant(B) error = %v", err)
	}
	if _, err := store.AddDomain(ctx, a.ID, "www.a.example", false); err != nil {
		t.Fatalf("AddDomain() error = %v", err)
	}

	list, err := store.ListTenants(ctx)
	if err != nil {
		t.Fatalf("ListTenants() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListTenants() len = %d, want 2", len(list))
	}
	if list[0].ID != a.ID || list[0].PrimaryDomain != "a.example" {
		t.Errorf("list[0] = %+v, want A with a.example", list[0])
	}
	if list[1].ID != b.ID || list[1].PrimaryDomain != "" {
		t.Errorf("list[1] = %+v, want B without domain", list[1])
	}
}

func TestSQLDBStore_UpdateTenant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tenant := sampleTenant("Old")
	if err := store.CreateTenant(ctx, tenant, "upd.example"); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}

	name := "New"
	updated, err := store.UpdateTenant(ctx, tenant.ID, storage.TenantUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateTenant() error = %v", err)
	}
	if updated.Name != "New" || len(updated.Questions) != 2 {
		t.Errorf("UpdateTenant() = %+v, want name changed and questions kept", updated)
	}

	updated, err = store.UpdateTenant(ctx, tenant.ID, storage.TenantUpdate{SetQuestions: true})
	if err != nil {
		t.Fatalf("UpdateTenant(clear questions) error = %v", err)
	}
	if len(updated.Questions) != 0 {
		t.Errorf("Questions = %+v, want cleared", updated.Questions)
	}

	if _, err := store.UpdateTenant(ctx, "missing", storage.TenantUpdate{Name: &name}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateTenant(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_Domains(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tenant := sampleTenant("Domains")
	if err := store.CreateTenant(ctx, tenant, "one.example"); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}
	if _, err := store.AddDomain(ctx, tenant.ID, "Two.Example", false); err != nil {
		t.Fatalf("AddDomain() error = %v", err)
	}
	if _, err := store.AddDomain(ctx, "missing", "three.example", false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("AddDomain(missing tenant) error = %v, want ErrNotFound", err)
	}

	if err := store.SetPrimaryDomain(ctx, tenant.ID, "two.example"); err != nil {
		t.Fatalf("SetPrimaryDomain() error = %v", err)
	}
	domains, err := store.Domains(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("Domains() error = %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("Domains() len = %d, want 2", len(domains))
	}
	if domains[0].Domain != "two.example" || !domains[0].IsPrimary || domains[1].IsPrimary {
		t.Errorf("Domains() = %+v, want two.example as sole primary first", domains)
	}

	if err := store.SetPrimaryDomain(ctx, tenant.ID, "nope.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SetPrimaryDomain(unknown) error = %v, want ErrNotFound", err)
	}

	if err := store.RemoveDomain(ctx, tenant.ID, "one.example"); err != nil {
		t.Fatalf("RemoveDomain() error = %v", err)
	}
	if err := store.RemoveDomain(ctx, tenant.ID, "one.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RemoveDomain(again) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetTenantByDomain(ctx, "one.example"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("removed domain still resolves: %v", err)
	}
}
