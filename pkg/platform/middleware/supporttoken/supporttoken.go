// Package supporttoken gates the operations endpoints behind a shared token.
// Only a bcrypt hash of the token is configured on the service.
package supporttoken

import (
	"log/slog"
	"net/http"

	"idproof/pkg/secrets"
)

// HeaderName carries the support token.
const HeaderName = "X-Support-Token"

// Require rejects requests whose token does not verify against the configured
// hash. An empty hash disables the endpoints entirely.
func Require(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" || secrets.Verify(r.Header.Get(HeaderName), tokenHash) != nil {
				logger.WarnContext(r.Context(), "support token rejected", "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"support token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
