// Package handler exposes the proofing flows over HTTP. Handlers stay thin;
// every decision lives in the engines.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"idproof/internal/proofing/letter"
	"idproof/internal/proofing/models"
	"idproof/internal/proofing/oidc"
	"idproof/internal/proofing/store/proof"
	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/platform/httputil"
	"idproof/pkg/platform/middleware/auth"
	"idproof/pkg/platform/middleware/metadata"
	"idproof/pkg/requestcontext"
)

// Handler handles the proofing endpoints.
type Handler struct {
	letter *letter.Service
	oidc   *oidc.Service
	proofs proof.Store
	logger *slog.Logger
}

// New creates a proofing Handler.
func New(letterSvc *letter.Service, oidcSvc *oidc.Service, proofs proof.Store, logger *slog.Logger) *Handler {
	return &Handler{
		letter: letterSvc,
		oidc:   oidcSvc,
		proofs: proofs,
		logger: logger,
	}
}

// Register mounts the proofing routes. The authorization-response callback is
// reached by the provider's redirect, not by an authenticated session, so it
// sits outside the eppn requirement.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireEppn(h.logger))
		r.Get("/letter/proofing", h.handleLetterStatus)
		r.Post("/letter/proofing", h.handleLetterInitiate)
		r.Post("/letter/verify-code", h.handleLetterConfirm)
		r.Post("/oidc/proofing", h.handleOidcInitiate)
		r.Get("/oidc/proofs", h.handleListProofs)
		r.Post("/phone/proofing", h.handlePhoneStub)
		r.Post("/phone/verify-code", h.handlePhoneStub)
	})
	r.Get("/oidc/authorization-response", h.handleOidcCallback)
}

type initiateRequest struct {
	Nin string `json:"nin"`
}

type confirmRequest struct {
	VerificationCode string `json:"verification_code"`
}

// letterStatusResponse is the wire shape for the letter flow status. An empty
// object means no letter is under way.
type letterStatusResponse struct {
	LetterSent    *time.Time `json:"letter_sent,omitempty"`
	LetterExpires *time.Time `json:"letter_expires,omitempty"`
	LetterExpired bool       `json:"letter_expired,omitempty"`
}

func statusResponse(st letter.Status) letterStatusResponse {
	return letterStatusResponse{
		LetterSent:    st.SentAt,
		LetterExpires: st.ExpiresAt,
		LetterExpired: st.Expired,
	}
}

func (h *Handler) handleLetterStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.letter.Inspect(ctx, requestcontext.Eppn(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "letter status failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse(st))
}

func (h *Handler) handleLetterInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	st, err := h.letter.Initiate(ctx, requestcontext.Eppn(ctx), req.Nin)
	if err != nil {
		h.logger.ErrorContext(ctx, "letter initiate failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse(st))
}

type confirmResponse struct {
	Nin models.VerifiedNin `json:"nin"`
	// SyncPending is set when the verification is committed locally but the
	// propagation to the system of record has not been acknowledged.
	SyncPending bool `json:"sync_pending,omitempty"`
}

func (h *Handler) handleLetterConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	nin, err := h.letter.Confirm(ctx, requestcontext.Eppn(ctx), req.VerificationCode)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeSyncFailed) {
			httputil.WriteJSON(w, http.StatusAccepted, confirmResponse{Nin: nin, SyncPending: true})
			return
		}
		h.logger.ErrorContext(ctx, "letter confirm failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, confirmResponse{Nin: nin})
}

type oidcInitiateResponse struct {
	Payload struct {
		Version   string `json:"version"`
		Nonce     string `json:"nonce"`
		Token     string `json:"token"`
		QRPayload string `json:"qr_payload"`
	} `json:"payload"`
}

func (h *Handler) handleOidcInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.oidc.Initiate(ctx, requestcontext.Eppn(ctx), req.Nin)
	if err != nil {
		h.logger.ErrorContext(ctx, "oidc initiate failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	var resp oidcInitiateResponse
	resp.Payload.Version = result.Version
	resp.Payload.Nonce = result.Nonce
	resp.Payload.Token = result.Token
	resp.Payload.QRPayload = result.QRPayload
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleOidcCallback processes the provider's authorization response. The
// response is always 200 "OK" with no body variation: the caller is the
// provider app, and nothing about the attempt may leak to whoever drives it.
func (h *Handler) handleOidcCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	raw := make(map[string]string, len(query))
	for key := range query {
		raw[key] = query.Get(key)
	}

	outcome := h.oidc.HandleCallback(ctx, oidc.CallbackParams{
		State:         query.Get("state"),
		Code:          query.Get("code"),
		ProviderError: query.Get("error"),
		Authorization: r.Header.Get("Authorization"),
		Raw:           raw,
	})

	ua := useragent.New(metadata.GetUserAgent(ctx))
	browser, version := ua.Browser()
	h.logger.InfoContext(ctx, "authorization response processed",
		"verified", outcome.Verified,
		"rejected", string(outcome.Rejected),
		"sync_pending", outcome.SyncFailed,
		"client_ip", metadata.GetClientIP(ctx),
		"client_os", ua.OS(),
		"client_browser", browser+" "+version,
		"client_mobile", ua.Mobile(),
	)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) handleListProofs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.proofs.ListByEppn(ctx, requestcontext.Eppn(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "list proofs failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not list proofs"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"proofs": records})
}

// handlePhoneStub reserves the phone-subscriber flow routes. The flow needs a
// number-ownership oracle that has no agreed supplier yet.
func (h *Handler) handlePhoneStub(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("phone proofing not implemented", slog.String("path", r.URL.Path))
	httputil.WriteJSON(w, http.StatusNotImplemented, map[string]string{
		"error": "not_implemented",
	})
}
