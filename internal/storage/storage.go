// Package storage defines the tenant store used to resolve hostnames to funnels.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

var (
	// ErrNotFound is returned when a tenant or domain does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a domain is already mapped to a tenant.
	ErrConflict = errors.New("storage: already exists")
)

// TenantUpdate carries the fields of a partial tenant update. Nil fields are left unchanged.
type TenantUpdate struct {
	Name      *string
	Config    *domain.AppConfig
	Questions []domain.Question
	// SetQuestions distinguishes "clear the questions" from "leave them alone".
	SetQuestions bool
}

// TenantStore persists tenants and their domains.
type TenantStore interface {
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetTenantByDomain(ctx context.Context, host string) (*domain.Tenant, error)
	// ListTenants returns every tenant with its primary domain, oldest first.
	ListTenants(ctx context.Context) ([]domain.TenantSummary, error)
	// CreateTenant stores t and maps primaryDomain to it. ID and timestamps are filled in.
	CreateTenant(ctx context.Context, t *domain.Tenant, primaryDomain string) error
	UpdateTenant(ctx context.Context, id string, update TenantUpdate) (*domain.Tenant, error)
	Domains(ctx context.Context, tenantID string) ([]domain.Domain, error)
	AddDomain(ctx context.Context, tenantID, host string, primary bool) (*domain.Domain, error)
	RemoveDomain(ctx context.Context, tenantID, host string) error
	SetPrimaryDomain(ctx context.Context, tenantID, host string) error
	Close() error
}

// NormalizeDomain lowercases a hostname and strips surrounding space and any port.
func NormalizeDomain(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(h, "[") {
		if i := strings.Index(h, "]"); i >= 0 {
			return h[:i+1]
		}
		return h
	}
	if i := strings.LastIndex(h, ":"); i >= 0 && strings.Count(h, ":") == 1 {
		h = h[:i]
	}
	return h
}
