package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server for the proofing API. The service sits behind a
// reverse proxy that terminates TLS, so only header and idle timeouts are set
// here. Letter dispatch can hold a request for several seconds, which rules
// out an aggressive write timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
