package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/dentassist/internal/httputil"
)

// Middleware returns a chi middleware that authenticates requests via Bearer token.
// When the store holds no key and optional is true, requests pass through unauthenticated.
func Middleware(store KeyStore, optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			if store.Empty() {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				httputil.WriteForbiddenError(w, reqID, "This endpoint is disabled: no API key is configured")
				return
			}

			// Extract Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty API key")
				return
			}

			meta, err := store.Lookup(r.Context(), HashKey(token))
			if err != nil {
				slog.Error("key lookup failed", "error", err, "key_prefix", KeyPrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if meta == nil {
				slog.Warn("auth failed: key not found", "key_prefix", KeyPrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid API key")
				return
			}

			ctx := ContextWithAuth(r.Context(), &AuthInfo{KeyName: meta.Name, Admin: meta.Admin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests not authenticated with an admin key. It must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := AuthFromContext(r.Context())
		if !ok || !info.Admin {
			httputil.WriteForbiddenError(w, w.Header().Get("X-Request-ID"), "Admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
