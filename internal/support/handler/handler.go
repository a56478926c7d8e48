// Package handler exposes the support views over HTTP, behind the support
// token gate.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idproof/internal/support"
	"idproof/pkg/platform/httputil"
	"idproof/pkg/platform/middleware/supporttoken"
)

// Handler handles the support endpoints.
type Handler struct {
	support   *support.Service
	logger    *slog.Logger
	tokenHash string
}

// New creates a support Handler. tokenHash is the bcrypt hash of the shared
// support token; empty disables the endpoints.
func New(svc *support.Service, logger *slog.Logger, tokenHash string) *Handler {
	return &Handler{support: svc, logger: logger, tokenHash: tokenHash}
}

// Register mounts the support routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(supporttoken.Require(h.tokenHash, h.logger))
		r.Get("/support/users/{eppn}", h.handleUserOverview)
	})
}

func (h *Handler) handleUserOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eppn := chi.URLParam(r, "eppn")

	overview, err := h.support.UserOverview(ctx, eppn)
	if err != nil {
		h.logger.ErrorContext(ctx, "support user overview failed", "eppn", eppn, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}
