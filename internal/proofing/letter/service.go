// Package letter drives the postal proofing flow: a secret code is mailed to
// the owner's official address and typed back to prove control of the NIN.
package letter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"idproof/internal/ekopost"
	"idproof/internal/navet"
	"idproof/internal/proofing/commit"
	"idproof/internal/proofing/metrics"
	"idproof/internal/proofing/models"
	"idproof/internal/proofing/store/proof"
	"idproof/internal/proofing/store/state"
	"idproof/internal/proofing/throttle"
	"idproof/internal/user/directory"
	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/platform/sentinel"
	"idproof/pkg/requestcontext"
)

var tracer = otel.Tracer("idproof/letter")

// Status reports the letter flow state for client display. The zero value
// means no letter is under way.
type Status struct {
	// Expired reports that the previous letter lapsed; the state has been
	// cleared and the flow can be restarted.
	Expired bool
	// SentAt and ExpiresAt are set while a letter is on its way.
	SentAt    *time.Time
	ExpiresAt *time.Time
}

// Service is the letter proofing engine.
type Service struct {
	states    state.Store
	proofs    proof.Store
	lookup    navet.AddressLookup
	renderer  ekopost.Renderer
	sender    ekopost.Sender
	directory directory.Directory
	committer *commit.Committer
	limiter   throttle.Limiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	waitHours int
}

// New builds the letter engine. waitHours is the configured wait before a
// mailed code lapses; the effective deadline is extended to midnight (see
// ExpiresAt).
func New(
	states state.Store,
	proofs proof.Store,
	lookup navet.AddressLookup,
	renderer ekopost.Renderer,
	sender ekopost.Sender,
	dir directory.Directory,
	committer *commit.Committer,
	limiter throttle.Limiter,
	logger *slog.Logger,
	m *metrics.Metrics,
	waitHours int,
) *Service {
	return &Service{
		states:    states,
		proofs:    proofs,
		lookup:    lookup,
		renderer:  renderer,
		sender:    sender,
		directory: dir,
		committer: committer,
		limiter:   limiter,
		logger:    logger,
		metrics:   m,
		waitHours: waitHours,
	}
}

// ExpiresAt returns the verification deadline for a letter sent at sentAt:
// the configured wait in hours applied from midnight at the end of the send
// day. The code always lapses at local midnight on the Nth day, never at an
// hour offset from dispatch time.
func ExpiresAt(sentAt time.Time, waitHours int) time.Time {
	year, month, day := sentAt.Date()
	midnight := time.Date(year, month, day+1, 0, 0, 0, 0, sentAt.Location())
	return midnight.Add(time.Duration(waitHours) * time.Hour)
}

// Inspect reports the current letter flow state. A lapsed deadline clears
// the state as a side effect so the owner can restart the flow.
func (s *Service) Inspect(ctx context.Context, eppn string) (Status, error) {
	ctx, span := tracer.Start(ctx, "letter.inspect")
	defer span.End()

	st, err := s.states.GetActive(ctx, eppn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not read proofing state")
	}

	letterState, ok := st.(*models.LetterState)
	if !ok || !letterState.Letter.IsSent || letterState.Letter.SentAt == nil {
		return Status{}, nil
	}

	sentAt := *letterState.Letter.SentAt
	expiresAt := ExpiresAt(sentAt, s.waitHours)
	now := requestcontext.Now(ctx)

	if !now.Before(expiresAt) {
		s.logger.InfoContext(ctx, "letter expired, clearing state", "eppn", eppn, "sent_at", sentAt)
		if err := s.states.Delete(ctx, eppn); err != nil {
			return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not clear expired state")
		}
		s.metrics.IncLetterExpirations()
		return Status{Expired: true}, nil
	}

	return Status{SentAt: &sentAt, ExpiresAt: &expiresAt}, nil
}

// Initiate starts or resumes the letter flow: resolve the official address,
// dispatch the letter, and mark the state sent. A dispatch failure leaves the
// state unsent and retryable with the same verification code.
func (s *Service) Initiate(ctx context.Context, eppn, number string) (Status, error) {
	ctx, span := tracer.Start(ctx, "letter.initiate")
	defer span.End()

	user, err := s.directory.GetByEppn(ctx, eppn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Status{}, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return Status{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not load user")
	}
	if user.HasVerifiedNin() {
		return Status{}, dErrors.New(dErrors.CodeAlreadyVerified, "user already holds a verified nin")
	}

	now := requestcontext.Now(ctx)

	var letterState *models.LetterState
	active, err := s.states.GetActive(ctx, eppn)
	switch {
	case err == nil:
		if existing, ok := active.(*models.LetterState); ok {
			if existing.Letter.IsSent {
				return Status{}, dErrors.New(dErrors.CodeLetterAlreadySent, "a letter is already on its way")
			}
			letterState = existing
		}
		// An unsent attempt of the other variant is replaced below.
	case errors.Is(err, sentinel.ErrNotFound):
		// First attempt.
	default:
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not read proofing state")
	}

	if letterState == nil {
		letterState, err = models.NewLetterState(eppn, number, now)
		if err != nil {
			return Status{}, err
		}
		s.logger.InfoContext(ctx, "letter proofing state created", "eppn", eppn)
	}

	address, err := s.lookup.Lookup(ctx, letterState.Nin.Number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "no official address found", "eppn", eppn)
			return Status{}, dErrors.New(dErrors.CodeAddressNotFound, "no address found")
		}
		return Status{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "address lookup unavailable")
	}

	// Persist the resolved address before dispatch so a retry mails to the
	// address resolved first.
	letterState.Letter.Address = address
	if err := s.states.Upsert(ctx, letterState); err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist proofing state")
	}

	document, err := s.renderer.Render(address, letterState.Nin.VerificationCode, letterState.Nin.CreatedAt, user.MailAddress)
	if err != nil {
		if errors.Is(err, ekopost.ErrAddressFormat) {
			s.logger.ErrorContext(ctx, "letter renderer rejected address", "eppn", eppn, "error", err)
			return Status{}, dErrors.New(dErrors.CodeBadAddress, "bad postal address")
		}
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not render letter")
	}

	transactionID, err := s.sender.Dispatch(ctx, eppn, document)
	if err != nil {
		s.logger.ErrorContext(ctx, "letter dispatch failed", "eppn", eppn, "error", err)
		return Status{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "temporary problem dispatching letter")
	}

	letterState.MarkSent(transactionID, now)
	if err := s.states.Upsert(ctx, letterState); err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not persist proofing state")
	}

	s.logger.InfoContext(ctx, "letter dispatched", "eppn", eppn, "transaction_id", transactionID)
	s.metrics.IncLettersSent()

	expiresAt := ExpiresAt(now, s.waitHours)
	return Status{SentAt: &now, ExpiresAt: &expiresAt}, nil
}

// Confirm verifies the code typed back from the letter and commits the NIN.
// After a successful commit the state is gone; a repeated confirm reports
// CodeNoProofingState rather than attaching a second NIN.
func (s *Service) Confirm(ctx context.Context, eppn, submittedCode string) (models.VerifiedNin, error) {
	ctx, span := tracer.Start(ctx, "letter.confirm")
	defer span.End()

	st, err := s.states.GetActive(ctx, eppn)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.VerifiedNin{}, dErrors.New(dErrors.CodeNoProofingState, "no proofing state found")
		}
		return models.VerifiedNin{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not read proofing state")
	}
	letterState, ok := st.(*models.LetterState)
	if !ok {
		return models.VerifiedNin{}, dErrors.New(dErrors.CodeNoProofingState, "no letter proofing state found")
	}

	allowed, err := s.limiter.Allow(ctx, eppn)
	if err != nil {
		return models.VerifiedNin{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not check attempt limit")
	}
	if !allowed {
		s.logger.InfoContext(ctx, "verify-code throttled", "eppn", eppn)
		return models.VerifiedNin{}, dErrors.New(dErrors.CodeRateLimited, "too many failed attempts")
	}

	if submittedCode != letterState.Nin.VerificationCode {
		s.logger.ErrorContext(ctx, "verification code mismatch", "eppn", eppn)
		if err := s.limiter.RecordFailure(ctx, eppn); err != nil {
			s.logger.ErrorContext(ctx, "could not record failed attempt", "eppn", eppn, "error", err)
		}
		return models.VerifiedNin{}, dErrors.New(dErrors.CodeCodeMismatch, "wrong code")
	}
	if err := s.limiter.Reset(ctx, eppn); err != nil {
		s.logger.ErrorContext(ctx, "could not reset attempt limit", "eppn", eppn, "error", err)
	}

	nin, commitErr := s.committer.Commit(ctx, eppn, letterState.Nin, models.MethodLetter)
	if commitErr != nil && !dErrors.HasCode(commitErr, dErrors.CodeSyncFailed) {
		// The commit did not happen; the state stays so the owner can retry.
		return models.VerifiedNin{}, commitErr
	}

	s.appendProof(ctx, letterState)

	if err := s.states.Delete(ctx, eppn); err != nil {
		s.logger.ErrorContext(ctx, "could not clear proofing state after commit", "eppn", eppn, "error", err)
	}

	// commitErr is either nil or CodeSyncFailed: verified locally, sync
	// pending. Callers surface the distinction.
	return nin, commitErr
}

func (s *Service) appendProof(ctx context.Context, st *models.LetterState) {
	now := requestcontext.Now(ctx)
	record, err := models.NewProofRecord(st.Eppn, models.MethodLetter, models.LetterProofPayload{
		Nin:             st.Nin,
		OfficialAddress: st.Letter.Address,
		TransactionID:   st.Letter.TransactionID,
	}, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not build proof record", "eppn", st.Eppn, "error", err)
		return
	}
	if err := s.proofs.Append(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "could not append proof record", "eppn", st.Eppn, "error", err)
	}
}
