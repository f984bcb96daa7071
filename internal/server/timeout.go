package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds every request context. Handlers stop cooperatively via
// context.Done(); sync-mode submissions rely on this to cap webhook waits.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
