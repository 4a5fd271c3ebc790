package middleware

import (
	"net/http"
	"os"
	"strings"

	"aiops-sync-queue/pkg/apierror"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	APIKeys []string
}

// NewAuthMiddleware creates an API key authentication middleware with
// injected dependencies. NO GLOBAL STATE - keys are passed via closure.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health check endpoints
			if r.URL.Path == "/api/v1/health" || r.URL.Path == "/api/v1/ready" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
				return
			}

			validKeys := cfg.APIKeys
			if len(validKeys) == 0 {
				validKeys = getAPIKeysFromEnv()
			}

			if !isValidKey(apiKey, validKeys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// getAPIKeysFromEnv returns API keys from environment variables.
func getAPIKeysFromEnv() []string {
	keysEnv := os.Getenv("API_KEYS")
	if keysEnv == "" {
		singleKey := os.Getenv("API_KEY")
		if singleKey != "" {
			return []string{singleKey}
		}
		return nil
	}

	keys := strings.Split(keysEnv, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if key == valid {
			return true
		}
	}
	return false
}
