package tenant

import (
	"context"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// contextKey is the type for tenant context keys
type contextKey string

const TenantContextKey contextKey = "tenant"

// WithTenant stores the resolved tenant on the context.
func WithTenant(ctx context.Context, t *domain.Tenant) context.Context {
	return context.WithValue(ctx, TenantContextKey, t)
}

// FromContext returns the tenant resolved for the request, if any.
func FromContext(ctx context.Context) (*domain.Tenant, bool) {
	t, ok := ctx.Value(TenantContextKey).(*domain.Tenant)
	return t, ok && t != nil
}
