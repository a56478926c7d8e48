package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idproof/internal/proofing/models"
	"idproof/pkg/platform/sentinel"
)

type StateStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *StateStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestStateStoreSuite(t *testing.T) {
	suite.Run(t, new(StateStoreSuite))
}

func (s *StateStoreSuite) newLetterState(eppn string) *models.LetterState {
	st, err := models.NewLetterState(eppn, "190001021234", time.Now())
	s.Require().NoError(err)
	return st
}

func (s *StateStoreSuite) newOidcState(eppn string) *models.OidcState {
	st, err := models.NewOidcState(eppn, "190001021234", time.Now())
	s.Require().NoError(err)
	return st
}

func (s *StateStoreSuite) TestActiveStateLifecycle() {
	s.Run("upserts and reads back the active state", func() {
		st := s.newLetterState("hubba-bubba")
		s.Require().NoError(s.store.Upsert(s.ctx, st))

		found, err := s.store.GetActive(s.ctx, "hubba-bubba")
		s.Require().NoError(err)
		letterState, ok := found.(*models.LetterState)
		s.Require().True(ok)
		s.Equal(st.Nin.VerificationCode, letterState.Nin.VerificationCode)
	})

	s.Run("returns ErrNotFound for unknown owner", func() {
		_, err := s.store.GetActive(s.ctx, "nobody")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("holds at most one state per owner", func() {
		letter := s.newLetterState("switcher")
		s.Require().NoError(s.store.Upsert(s.ctx, letter))

		oidc := s.newOidcState("switcher")
		s.Require().NoError(s.store.Upsert(s.ctx, oidc))

		found, err := s.store.GetActive(s.ctx, "switcher")
		s.Require().NoError(err)
		s.Equal(models.MethodOidc, found.ProofingMethod())
	})
}

func (s *StateStoreSuite) TestCorrelationIndex() {
	s.Run("finds an oidc state by correlation value", func() {
		st := s.newOidcState("correlated")
		s.Require().NoError(s.store.Upsert(s.ctx, st))

		found, err := s.store.GetByCorrelationState(s.ctx, st.State)
		s.Require().NoError(err)
		s.Equal("correlated", found.Eppn)
	})

	s.Run("returns ErrNotFound for unknown correlation value", func() {
		_, err := s.store.GetByCorrelationState(s.ctx, "bogus")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects a correlation value bound to another owner", func() {
		first := s.newOidcState("owner-one")
		s.Require().NoError(s.store.Upsert(s.ctx, first))

		second := s.newOidcState("owner-two")
		second.State = first.State
		s.Require().ErrorIs(s.store.Upsert(s.ctx, second), sentinel.ErrConflict)
	})

	s.Run("drops the correlation entry when the state is replaced", func() {
		oidc := s.newOidcState("replaced")
		s.Require().NoError(s.store.Upsert(s.ctx, oidc))
		s.Require().NoError(s.store.Upsert(s.ctx, s.newLetterState("replaced")))

		_, err := s.store.GetByCorrelationState(s.ctx, oidc.State)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StateStoreSuite) TestDelete() {
	s.Run("removes state and correlation entry", func() {
		st := s.newOidcState("deleted")
		s.Require().NoError(s.store.Upsert(s.ctx, st))
		s.Require().NoError(s.store.Delete(s.ctx, "deleted"))

		_, err := s.store.GetActive(s.ctx, "deleted")
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.GetByCorrelationState(s.ctx, st.State)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("is idempotent", func() {
		s.Require().NoError(s.store.Delete(s.ctx, "never-existed"))
		s.Require().NoError(s.store.Delete(s.ctx, "never-existed"))
	})
}

// TestConcurrentUpserts verifies that racing writers leave exactly one active
// state behind.
func (s *StateStoreSuite) TestConcurrentUpserts() {
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := models.NewLetterState("racer", "190001021234", time.Now())
			if err != nil {
				return
			}
			_ = s.store.Upsert(s.ctx, st)
		}()
	}
	wg.Wait()

	found, err := s.store.GetActive(s.ctx, "racer")
	s.Require().NoError(err)
	s.Equal("racer", found.Owner())
}
