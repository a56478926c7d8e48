// Package oidc drives the provider proofing flow: the owner scans a QR code
// with the provider app, authenticates there, and the provider calls back with
// an authorization code asserting the NIN.
package oidc

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"idproof/internal/oidcclient"
	"idproof/internal/proofing/commit"
	"idproof/internal/proofing/metrics"
	"idproof/internal/proofing/models"
	"idproof/internal/proofing/store/proof"
	"idproof/internal/proofing/store/state"
	"idproof/internal/user/directory"
	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/platform/sentinel"
	"idproof/pkg/requestcontext"
)

var tracer = otel.Tracer("idproof/oidc")

// RejectReason labels why an authorization callback was discarded. The value
// is logged and counted but never revealed to the caller.
type RejectReason string

const (
	RejectUnknownState      RejectReason = "unknown_state"
	RejectProviderError     RejectReason = "provider_error"
	RejectTokenAuthMismatch RejectReason = "token_auth_mismatch"
	RejectExchangeFailed    RejectReason = "exchange_failed"
	RejectNonceMismatch     RejectReason = "nonce_mismatch"
	RejectSubjectMismatch   RejectReason = "subject_mismatch"
	RejectIdentityMismatch  RejectReason = "identity_mismatch"
)

// InitiateResult carries the material the frontend renders into a QR code.
type InitiateResult struct {
	Version   string
	Nonce     string
	Token     string
	QRPayload string
}

// CallbackParams are the values extracted from the provider's
// authorization-response request.
type CallbackParams struct {
	State         string
	Code          string
	ProviderError string
	Authorization string
	// Raw holds all query parameters for the proof record.
	Raw map[string]string
}

// Outcome reports what the callback did. The HTTP response is always the
// same; this is for logging and metrics only.
type Outcome struct {
	Verified   bool
	Rejected   RejectReason
	SyncFailed bool
}

// Service is the OIDC proofing engine.
type Service struct {
	states    state.Store
	proofs    proof.Store
	provider  oidcclient.Client
	directory directory.Directory
	committer *commit.Committer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New builds the OIDC engine.
func New(
	states state.Store,
	proofs proof.Store,
	provider oidcclient.Client,
	dir directory.Directory,
	committer *commit.Committer,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		states:    states,
		proofs:    proofs,
		provider:  provider,
		directory: dir,
		committer: committer,
		logger:    logger,
		metrics:   m,
	}
}

// Initiate starts the provider flow or, when an attempt is already under way,
// re-issues its QR material. Fetching the QR payload twice must not invalidate
// the first copy, so an existing attempt is returned unchanged.
func (s *Service) Initiate(ctx context.Context, eppn, number string) (InitiateResult, error) {
	ctx, span := tracer.Start(ctx, "oidc.initiate")
	defer span.End()

	user, err := s.directory.GetByEppn(ctx, eppn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return InitiateResult{}, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not load user")
	}
	if user.HasVerifiedNin() {
		return InitiateResult{}, dErrors.New(dErrors.CodeAlreadyVerified, "user already holds a verified nin")
	}

	active, err := s.states.GetActive(ctx, eppn)
	switch {
	case err == nil:
		switch existing := active.(type) {
		case *models.OidcState:
			return s.result(existing)
		case *models.LetterState:
			if existing.Letter.IsSent {
				return InitiateResult{}, dErrors.New(dErrors.CodeLetterAlreadySent, "a letter is already on its way")
			}
			// An unsent letter attempt gives way to the provider flow.
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// First attempt.
	default:
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not read proofing state")
	}

	oidcState, err := models.NewOidcState(eppn, number, requestcontext.Now(ctx))
	if err != nil {
		return InitiateResult{}, err
	}
	if err := s.states.Upsert(ctx, oidcState); err != nil {
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist proofing state")
	}

	if err := s.provider.SendAuthorizationRequest(ctx, oidcState.State, oidcState.Nonce); err != nil {
		// The provider never saw a usable request, so the attempt is undone
		// rather than left to collect a callback that cannot come.
		if delErr := s.states.Delete(ctx, eppn); delErr != nil {
			s.logger.ErrorContext(ctx, "could not roll back proofing state", "eppn", eppn, "error", delErr)
		}
		s.logger.ErrorContext(ctx, "authorization request failed", "eppn", eppn, "error", err)
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider unavailable")
	}

	s.logger.InfoContext(ctx, "oidc proofing state created", "eppn", eppn)
	return s.result(oidcState)
}

func (s *Service) result(st *models.OidcState) (InitiateResult, error) {
	payload, err := BuildQRPayload(st.Nonce, st.Token)
	if err != nil {
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not build qr payload")
	}
	return InitiateResult{
		Version:   QRVersion,
		Nonce:     st.Nonce,
		Token:     st.Token,
		QRPayload: payload,
	}, nil
}

// HandleCallback processes the provider's authorization response. The HTTP
// layer answers 200 regardless; the outcome only drives logging and counters
// so a probing caller learns nothing from the response.
func (s *Service) HandleCallback(ctx context.Context, params CallbackParams) Outcome {
	ctx, span := tracer.Start(ctx, "oidc.callback")
	defer span.End()

	st, err := s.states.GetByCorrelationState(ctx, params.State)
	if err != nil {
		s.logger.ErrorContext(ctx, "callback for unknown state", "error", err)
		return s.reject(ctx, RejectUnknownState)
	}

	log := s.logger.With("eppn", st.Eppn)

	if params.ProviderError != "" {
		log.ErrorContext(ctx, "provider reported error", "provider_error", params.ProviderError)
		s.clear(ctx, st.Eppn, log)
		return s.reject(ctx, RejectProviderError)
	}

	if params.Authorization != "Bearer "+st.Token {
		log.ErrorContext(ctx, "callback bearer token mismatch")
		return s.reject(ctx, RejectTokenAuthMismatch)
	}

	tokens, err := s.provider.Exchange(ctx, params.Code)
	if err != nil {
		// The code is single-use; after a failed exchange the attempt cannot
		// complete, so the state goes too.
		log.ErrorContext(ctx, "token exchange failed", "error", err)
		s.clear(ctx, st.Eppn, log)
		return s.reject(ctx, RejectExchangeFailed)
	}

	if tokens.Nonce != st.Nonce {
		log.ErrorContext(ctx, "id token nonce mismatch")
		return s.reject(ctx, RejectNonceMismatch)
	}

	userinfo, err := s.provider.Userinfo(ctx, tokens.AccessToken)
	if err != nil {
		log.ErrorContext(ctx, "userinfo fetch failed", "error", err)
		s.clear(ctx, st.Eppn, log)
		return s.reject(ctx, RejectExchangeFailed)
	}

	if userinfo.Subject != tokens.Subject {
		log.ErrorContext(ctx, "userinfo subject differs from id token subject")
		return s.reject(ctx, RejectSubjectMismatch)
	}

	if userinfo.Identity != st.Nin.Number {
		// The provider vouched for a different person than the one claimed.
		// The attempt is dead and leaves no proof record behind.
		log.ErrorContext(ctx, "asserted identity differs from claimed nin")
		s.clear(ctx, st.Eppn, log)
		return s.reject(ctx, RejectIdentityMismatch)
	}

	outcome := Outcome{Verified: true}
	if _, err := s.committer.Commit(ctx, st.Eppn, st.Nin, models.MethodOidc); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeSyncFailed) {
			log.ErrorContext(ctx, "could not commit verified nin", "error", err)
			return Outcome{}
		}
		outcome.SyncFailed = true
	}

	s.appendProof(ctx, st, params, tokens, userinfo)
	s.clear(ctx, st.Eppn, log)

	log.InfoContext(ctx, "nin verified via provider callback")
	return outcome
}

func (s *Service) reject(ctx context.Context, reason RejectReason) Outcome {
	s.metrics.IncCallbackRejections(string(reason))
	return Outcome{Rejected: reason}
}

func (s *Service) clear(ctx context.Context, eppn string, log *slog.Logger) {
	if err := s.states.Delete(ctx, eppn); err != nil {
		log.ErrorContext(ctx, "could not clear proofing state", "error", err)
	}
}

func (s *Service) appendProof(ctx context.Context, st *models.OidcState, params CallbackParams, tokens *oidcclient.TokenResult, userinfo *oidcclient.UserinfoResult) {
	now := requestcontext.Now(ctx)
	record, err := models.NewProofRecord(st.Eppn, models.MethodOidc, models.OidcProofPayload{
		AuthnResponse: params.Raw,
		TokenResponse: tokens.Raw,
		Userinfo:      userinfo.Raw,
	}, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not build proof record", "eppn", st.Eppn, "error", err)
		return
	}
	if err := s.proofs.Append(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "could not append proof record", "eppn", st.Eppn, "error", err)
	}
}
