// Package support serves read-only views for the operations team. Nothing
// here mutates proofing state, and nothing here exposes flow secrets.
package support

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"idproof/internal/proofing/models"
	"idproof/internal/proofing/store/proof"
	"idproof/internal/proofing/store/state"
	usermodels "idproof/internal/user/models"
	userstore "idproof/internal/user/store"
	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/platform/sentinel"
)

// StateSummary describes an active proofing attempt with all secret material
// withheld: no verification code, no bearer token, no nonce.
type StateSummary struct {
	Method    models.Method `json:"method"`
	Nin       string        `json:"nin"`
	CreatedAt time.Time     `json:"created_ts"`
	// Letter fields, present only for the postal variant.
	LetterSent   bool       `json:"letter_sent,omitempty"`
	LetterSentAt *time.Time `json:"letter_sent_ts,omitempty"`
}

// UserOverview is the support view of one user: the aggregate, the active
// attempt if any, and the audit trail.
type UserOverview struct {
	User        *usermodels.User      `json:"user"`
	ActiveState *StateSummary         `json:"active_state,omitempty"`
	Proofs      []*models.ProofRecord `json:"proofs"`
}

// Service assembles support views from the proofing stores.
type Service struct {
	users  userstore.Store
	states state.Store
	proofs proof.Store
	logger *slog.Logger
}

// New builds the support service.
func New(users userstore.Store, states state.Store, proofs proof.Store, logger *slog.Logger) *Service {
	return &Service{users: users, states: states, proofs: proofs, logger: logger}
}

// UserOverview loads the three legs of the view concurrently. A missing user
// is CodeNotFound; a missing state or empty audit trail is simply absent from
// the view.
func (s *Service) UserOverview(ctx context.Context, eppn string) (*UserOverview, error) {
	overview := &UserOverview{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		user, err := s.users.FindByEppn(gctx, eppn)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not load user")
		}
		overview.User = user
		return nil
	})

	g.Go(func() error {
		st, err := s.states.GetActive(gctx, eppn)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not load proofing state")
		}
		overview.ActiveState = summarize(st)
		return nil
	})

	g.Go(func() error {
		records, err := s.proofs.ListByEppn(gctx, eppn)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not load proof records")
		}
		overview.Proofs = records
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}

func summarize(st models.State) *StateSummary {
	switch v := st.(type) {
	case *models.LetterState:
		return &StateSummary{
			Method:       models.MethodLetter,
			Nin:          v.Nin.Number,
			CreatedAt:    v.Nin.CreatedAt,
			LetterSent:   v.Letter.IsSent,
			LetterSentAt: v.Letter.SentAt,
		}
	case *models.OidcState:
		return &StateSummary{
			Method:    models.MethodOidc,
			Nin:       v.Nin.Number,
			CreatedAt: v.Nin.CreatedAt,
		}
	default:
		return nil
	}
}
