package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

// Store is an in-memory implementation of TenantStore. Tenants are copied on the way in and
// out so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*domain.Tenant
	domains map[string]domain.Domain // keyed by normalized domain
}

var _ storage.TenantStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		tenants: make(map[string]*domain.Tenant),
		domains: make(map[string]domain.Domain),
	}
}

func clone(t *domain.Tenant) *domain.Tenant {
	c := *t
	c.Questions = append([]domain.Question(nil), t.Questions...)
	return &c
}

func (s *Store) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	return clone(t), nil
}

func (s *Store) GetTenantByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	host = storage.NormalizeDomain(host)

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[host]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", host, storage.ErrNotFound)
	}
	return clone(s.tenants[d.TenantID]), nil
}

func (s *Store) ListTenants(ctx context.Context) ([]domain.TenantSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TenantSummary, 0, len(s.tenants))
	for _, t := range s.tenants {
		sum := domain.TenantSummary{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
		for _, d := range s.domains {
			if d.TenantID == t.ID && d.IsPrimary {
				sum.PrimaryDomain = d.Domain
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateTenant(ctx context.Context, t *domain.Tenant, primaryDomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.tenants[t.ID]; exists {
		return fmt.Errorf("tenant %s: %w", t.ID, storage.ErrConflict)
	}
	host := storage.NormalizeDomain(primaryDomain)
	if _, taken := s.domains[host]; host != "" && taken {
		return fmt.Errorf("domain %s: %w", host, storage.ErrConflict)
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tenants[t.ID] = clone(t)
	if host != "" {
		s.domains[host] = domain.Domain{ID: uuid.NewString(), TenantID: t.ID, Domain: host, IsPrimary: true, CreatedAt: now}
	}
	return nil
}

func (s *Store) UpdateTenant(ctx context.Context, id string, update storage.TenantUpdate) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	next := clone(t)
	if update.Name != nil {
		next.Name = *update.Name
	}
	if update.Config != nil {
		next.Config = *update.Config
	}
	if update.SetQuestions {
		next.Questions = append([]domain.Question(nil), update.Questions...)
	}
	next.UpdatedAt = time.Now().UTC()
	s.tenants[id] = next
	return clone(next), nil
}

func (s *Store) Domains(ctx context.Context, tenantID string) ([]domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Domain
	for _, d := range s.domains {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].Domain < out[j].Domain
	})
	return out, nil
}

func (s *Store) AddDomain(ctx context.Context, tenantID, host string, primary bool) (*domain.Domain, error) {
	host = storage.NormalizeDomain(host)
	if host == "" {
		return nil, fmt.Errorf("domain is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, storage.ErrNotFound)
	}
	if _, taken := s.domains[host]; taken {
		return nil, fmt.Errorf("domain %s: %w", host, storage.ErrConflict)
	}
	if primary {
		s.clearPrimary(tenantID)
	}
	d := domain.Domain{ID: uuid.NewString(), TenantID: tenantID, Domain: host, IsPrimary: primary, CreatedAt: time.Now().UTC()}
	s.domains[host] = d
	return &d, nil
}

func (s *Store) clearPrimary(tenantID string) {
	for k, d := range s.domains {
		if d.TenantID == tenantID && d.IsPrimary {
			d.IsPrimary = false
			s.domains[k] = d
		}
	}
}

func (s *Store) RemoveDomain(ctx context.Context, tenantID, host string) error {
	host = storage.NormalizeDomain(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[host]
	if !ok || d.TenantID != tenantID {
		return fmt.Errorf("domain %s: %w", host, storage.ErrNotFound)
	}
	delete(s.domains, host)
	return nil
}

func (s *Store) SetPrimaryDomain(ctx context.Context, tenantID, host string) error {
	host = storage.NormalizeDomain(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[host]
	if !ok || d.TenantID != tenantID {
		return fmt.Errorf("domain %s: %w", host, storage.ErrNotFound)
	}
	s.clearPrimary(tenantID)
	d.IsPrimary = true
	s.domains[host] = d
	return nil
}

// Replace swaps the full tenant set, used when tenants are reloaded from a config file.
// Each tenant's listed domains are mapped to it, the first one primary.
func (s *Store) Replace(tenants []domain.Tenant, domains map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.tenants = make(map[string]*domain.Tenant, len(tenants))
	s.domains = make(map[string]domain.Domain)
	for i := range tenants {
		t := clone(&tenants[i])
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		s.tenants[t.ID] = t
		for j, host := range domains[t.ID] {
			host = storage.NormalizeDomain(host)
			if host == "" {
				continue
			}
			if _, taken := s.domains[host]; taken {
				continue
			}
			s.domains[host] = domain.Domain{ID: uuid.NewString(), TenantID: t.ID, Domain: host, IsPrimary: j == 0, CreatedAt: now}
		}
	}
}

func (s *Store) Close() error {
	return nil
}
