package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

// ErrUnknownHost is returned when no tenant owns the requested host.
var ErrUnknownHost = errors.New("tenant: unknown host")

const (
	DefaultCacheSize = 512
	DefaultCacheTTL  = time.Minute
)

// entry is a cached lookup. A nil tenant records a miss so unknown hosts do not hit the store
// on every request.
type entry struct {
	tenant *domain.Tenant
}

// Registry resolves hosts and app ids to tenants, caching lookups for a short TTL.
type Registry struct {
	store  storage.TenantStore
	hosts  *expirable.LRU[string, entry]
	ids    *expirable.LRU[string, entry]
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry over store. Non-positive size or ttl fall back to defaults.
func NewRegistry(store storage.TenantStore, size int, ttl time.Duration, opts ...Option) *Registry {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	r := &Registry{
		store:  store,
		hosts:  expirable.NewLRU[string, entry](size, nil, ttl),
		ids:    expirable.NewLRU[string, entry](size, nil, ttl),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the backing tenant store.
func (r *Registry) Store() storage.TenantStore {
	return r.store
}

// ByHost resolves a request host (port and case ignored) to its tenant.
func (r *Registry) ByHost(ctx context.Context, host string) (*domain.Tenant, error) {
	key := storage.NormalizeDomain(host)
	if key == "" {
		return nil, ErrUnknownHost
	}
	if e, ok := r.hosts.Get(key); ok {
		if e.tenant == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHost, key)
		}
		return e.tenant, nil
	}

	t, err := r.store.GetTenantByDomain(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		r.hosts.Add(key, entry{})
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, key)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve host %s: %w", key, err)
	}
	r.hosts.Add(key, entry{tenant: t})
	return t, nil
}

// ByID resolves an app id to its tenant.
func (r *Registry) ByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if e, ok := r.ids.Get(id); ok {
		if e.tenant == nil {
			return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
		}
		return e.tenant, nil
	}

	t, err := r.store.GetTenantByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		r.ids.Add(id, entry{})
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant %s: %w", id, err)
	}
	r.ids.Add(id, entry{tenant: t})
	return t, nil
}

// Invalidate drops cached lookups for a tenant id and the given hosts.
func (r *Registry) Invalidate(tenantID string, hosts ...string) {
	if tenantID != "" {
		r.ids.Remove(tenantID)
		for _, key := range r.hosts.Keys() {
			if e, ok := r.hosts.Peek(key); ok && e.tenant != nil && e.tenant.ID == tenantID {
				r.hosts.Remove(key)
			}
		}
	}
	for _, h := range hosts {
		r.hosts.Remove(storage.NormalizeDomain(h))
	}
}

// Purge drops every cached lookup.
func (r *Registry) Purge() {
	r.hosts.Purge()
	r.ids.Purge()
	r.logger.Debug("tenant cache purged")
}

// RequestHost returns the host a request was addressed to, preferring Host over
// X-Forwarded-Host.
func RequestHost(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}
	return req.Header.Get("X-Forwarded-Host")
}

// Middleware resolves the tenant for every request by host and stores it on the context.
// Requests for unknown hosts continue without a tenant; handlers decide how to respond.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t, err := r.ByHost(req.Context(), RequestHost(req))
		if err != nil {
			if !errors.Is(err, ErrUnknownHost) {
				r.logger.Error("tenant lookup failed", slog.String("host", RequestHost(req)), slog.String("error", err.Error()))
			}
			next.ServeHTTP(w, req)
			return
		}
		next.ServeHTTP(w, req.WithContext(WithTenant(req.Context(), t)))
	})
}
