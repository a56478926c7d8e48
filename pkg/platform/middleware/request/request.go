// Package request assigns every request an identifier for log correlation.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"idproof/pkg/requestcontext"
)

// HeaderName carries the request identifier in and out of the service.
const HeaderName = "X-Request-Id"

// Middleware propagates an inbound request identifier, or mints one, and
// echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderName, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
