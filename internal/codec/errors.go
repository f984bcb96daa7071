// Package codec converts errors into API error bodies and decodes request bodies.
package codec

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
)

// ToAPIError converts any error to a domain.APIError.
// If the error is already a domain.APIError, it returns it directly. Storage sentinels map to
// not_found and conflict; anything else becomes a generic server error so internal details
// are not leaked to clients.
func ToAPIError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound("Not found")
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict("Already exists")
	}
	return domain.ErrServer("Internal server error")
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes err as an {error, message} body with its mapped status code.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := ToAPIError(err)
	WriteJSON(w, apiErr.HTTPStatusCode(), apiErr)
}
