// Package auth resolves the authenticated owner of a request. The service
// runs behind an authenticating proxy that asserts the user's eppn in a
// trusted header; requests arriving without one are refused.
package auth

import (
	"log/slog"
	"net/http"

	"idproof/pkg/requestcontext"
)

// EppnHeader is set by the fronting proxy after authentication. The proxy
// strips any client-supplied value before forwarding.
const EppnHeader = "X-Eppn"

// RequireEppn rejects requests lacking the asserted eppn and stores it in the
// context for handlers.
func RequireEppn(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			eppn := r.Header.Get(EppnHeader)
			if eppn == "" {
				logger.WarnContext(r.Context(), "request without asserted eppn",
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"authentication required"}`))
				return
			}
			ctx := requestcontext.WithEppn(r.Context(), eppn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
