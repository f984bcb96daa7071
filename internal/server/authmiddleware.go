package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/intake-engine/internal/auth"
	"github.com/tjfontaine/intake-engine/internal/codec"
	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
	"github.com/tjfontaine/intake-engine/internal/tenant"
)

// AdminKeyContextKey is the context key for the admin key that authenticated a request.
const AdminKeyContextKey contextKey = "admin_key"

// AdminHostGate rejects requests whose host is not in hosts. Tenant domains therefore never
// expose the admin API.
func AdminHostGate(hosts []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h = storage.NormalizeDomain(h); h != "" {
			allowed[h] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := storage.NormalizeDomain(tenant.RequestHost(r))
			if !allowed[host] {
				AddLogField(r.Context(), "admin_denied_host", host)
				codec.WriteError(w, domain.ErrPermission("Admin API is not available on this host"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware validates admin API keys.
// The key is read from the Authorization header (Bearer token format) or X-API-Key.
// If the authenticator has no keys every request is rejected.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				AddError(r.Context(), err)
				codec.WriteError(w, domain.ErrAuthentication("Missing API key"))
				return
			}

			key, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				AddError(r.Context(), err)
				codec.WriteError(w, domain.ErrAuthentication("Invalid API key").WithCode(domain.ErrorCodeInvalidAPIKey))
				return
			}

			AddLogField(r.Context(), "admin_key", key.Description)
			ctx := context.WithValue(r.Context(), AdminKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminKey retrieves the authenticated admin key from context.
// Returns nil if no key is set.
func GetAdminKey(ctx context.Context) *auth.Key {
	if k, ok := ctx.Value(AdminKeyContextKey).(*auth.Key); ok {
		return k
	}
	return nil
}
