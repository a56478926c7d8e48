package testutil

import (
	"net/http"
	"time"

	"idproof/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped time, simulating the requesttime
// middleware with a chosen instant.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
