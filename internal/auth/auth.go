// Package auth validates admin API keys.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Key is a configured admin key, stored only as its SHA-256 hash.
type Key struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

// Authenticator validates admin API keys
type Authenticator struct {
	keys map[string]Key // keyhash -> key
}

// NewAuthenticator creates a new authenticator over the configured key hashes
func NewAuthenticator(keys []Key) *Authenticator {
	auth := &Authenticator{
		keys: make(map[string]Key, len(keys)),
	}
	for _, k := range keys {
		auth.keys[strings.ToLower(k.KeyHash)] = k
	}
	return auth
}

// Enabled reports whether any key is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

// ValidateAPIKey validates an API key and returns the matching key entry
func (a *Authenticator) ValidateAPIKey(apiKey string) (*Key, error) {
	keyHash := HashAPIKey(apiKey)

	k, ok := a.keys[keyHash]
	if !ok {
		return nil, fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(strings.ToLower(k.KeyHash))) != 1 {
		return nil, fmt.Errorf("invalid API key")
	}
	return &k, nil
}

// ExtractAPIKey extracts the API key from the Authorization header, falling back to X-API-Key
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if key := r.Header.Get("X-API-Key"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return parts[1], nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
