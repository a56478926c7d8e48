package letter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idproof/internal/ekopost"
	"idproof/internal/proofing/commit"
	"idproof/internal/proofing/mocks"
	"idproof/internal/proofing/models"
	proofstore "idproof/internal/proofing/store/proof"
	statestore "idproof/internal/proofing/store/state"
	"idproof/internal/proofing/throttle"
	usermodels "idproof/internal/user/models"
	userstore "idproof/internal/user/store"
	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/platform/sentinel"
	"idproof/pkg/requestcontext"
)

const waitHours = 336 // two weeks

func TestExpiresAt(t *testing.T) {
	t.Run("late evening send still expires at midnight boundary", func(t *testing.T) {
		sentAt := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
		want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Add(waitHours * time.Hour)
		if got := ExpiresAt(sentAt, waitHours); !got.Equal(want) {
			t.Fatalf("ExpiresAt(%v) = %v, want %v", sentAt, got, want)
		}
	})

	t.Run("midnight send gets the full following day", func(t *testing.T) {
		sentAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Add(waitHours * time.Hour)
		if got := ExpiresAt(sentAt, waitHours); !got.Equal(want) {
			t.Fatalf("ExpiresAt(%v) = %v, want %v", sentAt, got, want)
		}
	})

	t.Run("a send one second before midnight expires a day earlier than one second after", func(t *testing.T) {
		before := ExpiresAt(time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC), waitHours)
		after := ExpiresAt(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC), waitHours)
		if got := after.Sub(before); got != 24*time.Hour {
			t.Fatalf("expiry difference across midnight = %v, want 24h", got)
		}
	})
}

type LetterSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	states    *statestore.InMemory
	proofs    *proofstore.InMemory
	lookup    *mocks.MockAddressLookup
	renderer  *mocks.MockRenderer
	sender    *mocks.MockSender
	directory *mocks.MockDirectory
	relay     *mocks.MockSyncRelay
	users     *userstore.InMemory
	limiter   *throttle.Memory
	service   *Service
	ctx       context.Context
	now       time.Time
}

func (s *LetterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.states = statestore.NewInMemory()
	s.proofs = proofstore.NewInMemory()
	s.lookup = mocks.NewMockAddressLookup(s.ctrl)
	s.renderer = mocks.NewMockRenderer(s.ctrl)
	s.sender = mocks.NewMockSender(s.ctrl)
	s.directory = mocks.NewMockDirectory(s.ctrl)
	s.relay = mocks.NewMockSyncRelay(s.ctrl)
	s.users = userstore.NewInMemory()
	s.limiter = throttle.NewMemory(3, 15*time.Minute)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	committer := commit.New(s.directory, s.users, s.relay, logger, nil)
	s.service = New(
		s.states, s.proofs, s.lookup, s.renderer, s.sender,
		s.directory, committer, s.limiter, logger, nil, waitHours,
	)

	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *LetterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestLetterSuite(t *testing.T) {
	suite.Run(t, new(LetterSuite))
}

func (s *LetterSuite) address() models.Address {
	return models.Address{
		Street:     "Testgatan 1",
		PostalCode: "12345",
		City:       "Teststaden",
		Country:    "SE",
	}
}

func (s *LetterSuite) expectUser(eppn string) {
	s.directory.EXPECT().GetByEppn(gomock.Any(), eppn).
		Return(&usermodels.User{Eppn: eppn, MailAddress: eppn + "@example.org"}, nil).
		AnyTimes()
}

// initiate runs a successful initiate and returns the persisted state.
func (s *LetterSuite) initiate(eppn string) *models.LetterState {
	s.lookup.EXPECT().Lookup(gomock.Any(), "190001021234").Return(s.address(), nil)
	s.renderer.EXPECT().Render(s.address(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]byte("letter"), nil)
	s.sender.EXPECT().Dispatch(gomock.Any(), eppn, []byte("letter")).Return("tx-1", nil)

	status, err := s.service.Initiate(s.ctx, eppn, "190001021234")
	s.Require().NoError(err)
	s.Require().NotNil(status.SentAt)

	st, err := s.states.GetActive(s.ctx, eppn)
	s.Require().NoError(err)
	letterState, ok := st.(*models.LetterState)
	s.Require().True(ok)
	return letterState
}

func (s *LetterSuite) TestInspect() {
	s.Run("reports empty status without a state", func() {
		status, err := s.service.Inspect(s.ctx, "nobody")
		s.Require().NoError(err)
		s.Equal(Status{}, status)
	})

	s.Run("reports sent letter with deadline", func() {
		s.expectUser("inspected")
		s.initiate("inspected")

		status, err := s.service.Inspect(s.ctx, "inspected")
		s.Require().NoError(err)
		s.Require().NotNil(status.SentAt)
		s.Equal(ExpiresAt(s.now, waitHours), *status.ExpiresAt)
		s.False(status.Expired)
	})

	s.Run("clears an expired state", func() {
		s.expectUser("expired")
		s.initiate("expired")

		later := requestcontext.WithTime(context.Background(), ExpiresAt(s.now, waitHours))
		status, err := s.service.Inspect(later, "expired")
		s.Require().NoError(err)
		s.True(status.Expired)

		_, err = s.states.GetActive(s.ctx, "expired")
		s.ErrorIs(err, sentinel.ErrNotFound)

		// The flow can restart after expiry.
		again, err := s.service.Inspect(s.ctx, "expired")
		s.Require().NoError(err)
		s.Equal(Status{}, again)
	})
}

func (s *LetterSuite) TestInitiate() {
	s.Run("refuses a user with a verified nin", func() {
		s.directory.EXPECT().GetByEppn(gomock.Any(), "verified").Return(&usermodels.User{
			Eppn: "verified",
			Nins: []models.VerifiedNin{{Number: "190001025678", Verified: true, Primary: true}},
		}, nil)

		_, err := s.service.Initiate(s.ctx, "verified", "190001021234")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))
	})

	s.Run("reports a missing official address", func() {
		s.expectUser("no-address")
		s.lookup.EXPECT().Lookup(gomock.Any(), "190001021234").
			Return(models.Address{}, sentinel.ErrNotFound)

		_, err := s.service.Initiate(s.ctx, "no-address", "190001021234")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAddressNotFound))
	})

	s.Run("reports an address the renderer cannot lay out", func() {
		s.expectUser("bad-address")
		s.lookup.EXPECT().Lookup(gomock.Any(), "190001021234").Return(s.address(), nil)
		s.renderer.EXPECT().Render(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, ekopost.ErrAddressFormat)

		_, err := s.service.Initiate(s.ctx, "bad-address", "190001021234")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadAddress))
	})

	s.Run("refuses a second letter while one is on its way", func() {
		s.expectUser("impatient")
		s.initiate("impatient")

		_, err := s.service.Initiate(s.ctx, "impatient", "190001021234")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeLetterAlreadySent))
	})

	s.Run("dispatch failure leaves a retryable state with the same code", func() {
		s.expectUser("retrier")
		s.lookup.EXPECT().Lookup(gomock.Any(), "190001021234").Return(s.address(), nil).Times(2)
		s.renderer.EXPECT().Render(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]byte("letter"), nil).Times(2)
		gomock.InOrder(
			s.sender.EXPECT().Dispatch(gomock.Any(), "retrier", []byte("letter")).
				Return("", errors.New("letter service down")),
			s.sender.EXPECT().Dispatch(gomock.Any(), "retrier", []byte("letter")).
				Return("tx-2", nil),
		)

		_, err := s.service.Initiate(s.ctx, "retrier", "190001021234")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		st, err := s.states.GetActive(s.ctx, "retrier")
		s.Require().NoError(err)
		firstCode := st.(*models.LetterState).Nin.VerificationCode

		status, err := s.service.Initiate(s.ctx, "retrier", "190001021234")
		s.Require().NoError(err)
		s.Require().NotNil(status.SentAt)

		st, err = s.states.GetActive(s.ctx, "retrier")
		s.Require().NoError(err)
		s.Equal(firstCode, st.(*models.LetterState).Nin.VerificationCode)
	})
}

func (s *LetterSuite) TestConfirm() {
	s.Run("reports no proofing state", func() {
		_, err := s.service.Confirm(s.ctx, "nobody", "whatever")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNoProofingState))
	})

	s.Run("rejects a wrong code and keeps the state", func() {
		s.expectUser("fumbler")
		s.initiate("fumbler")

		_, err := s.service.Confirm(s.ctx, "fumbler", "not-the-code")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCodeMismatch))

		_, err = s.states.GetActive(s.ctx, "fumbler")
		s.NoError(err)
	})

	s.Run("throttles after repeated failures", func() {
		s.expectUser("bruteforcer")
		s.initiate("bruteforcer")

		for i := 0; i < 3; i++ {
			_, err := s.service.Confirm(s.ctx, "bruteforcer", "wrong")
			s.Require().True(dErrors.HasCode(err, dErrors.CodeCodeMismatch))
		}
		_, err := s.service.Confirm(s.ctx, "bruteforcer", "wrong")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("commits a matching code exactly once", func() {
		s.expectUser("winner")
		st := s.initiate("winner")
		s.relay.EXPECT().RequestSync(gomock.Any(), "winner").Return(nil)

		nin, err := s.service.Confirm(s.ctx, "winner", st.Nin.VerificationCode)
		s.Require().NoError(err)
		s.True(nin.Verified)
		s.True(nin.Primary)
		s.Equal(models.MethodLetter, nin.VerifiedBy)

		records, err := s.proofs.ListByEppn(s.ctx, "winner")
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(models.MethodLetter, records[0].Method)

		// A second confirm finds nothing to confirm.
		_, err = s.service.Confirm(s.ctx, "winner", st.Nin.VerificationCode)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNoProofingState))
	})

	s.Run("sync failure surfaces but the verification stands", func() {
		s.expectUser("sync-pending")
		st := s.initiate("sync-pending")
		s.relay.EXPECT().RequestSync(gomock.Any(), "sync-pending").
			Return(errors.New("broker down"))

		nin, err := s.service.Confirm(s.ctx, "sync-pending", st.Nin.VerificationCode)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeSyncFailed))
		s.True(nin.Verified)

		// The state is consumed; a retry cannot attach the nin twice.
		_, err = s.states.GetActive(s.ctx, "sync-pending")
		s.ErrorIs(err, sentinel.ErrNotFound)

		saved, err := s.users.FindByEppn(s.ctx, "sync-pending")
		s.Require().NoError(err)
		s.Require().Len(saved.Nins, 1)
	})
}
