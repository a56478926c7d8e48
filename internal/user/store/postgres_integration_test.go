//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	proofing "idproof/internal/proofing/models"
	"idproof/internal/user/models"
	"idproof/internal/user/store"
	"idproof/pkg/platform/sentinel"
	"idproof/pkg/testutil/containers"
)

type PostgresUserSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestPostgresUserSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUserSuite))
}

func (s *PostgresUserSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresUserSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "proofing_users"))
}

func (s *PostgresUserSuite) TestAggregateRoundTrip() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		Eppn:       "hubba-bubba",
		GivenName:  "Testa",
		Nins:       []proofing.VerifiedNin{{Number: "190001021234", Verified: true, Primary: true, VerifiedBy: proofing.MethodLetter, VerifiedAt: now}},
		ModifiedAt: now,
	}
	s.Require().NoError(s.store.Save(s.ctx, user, false))

	found, err := s.store.FindByEppn(s.ctx, "hubba-bubba")
	s.Require().NoError(err)
	s.Equal("Testa", found.GivenName)
	s.Require().Len(found.Nins, 1)
	s.True(found.Nins[0].Primary)

	_, err = s.store.FindByEppn(s.ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresUserSuite) TestSyncCheckedSaveRejectsStaleWrite() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	current := &models.User{Eppn: "stale", ModifiedAt: now}
	s.Require().NoError(s.store.Save(s.ctx, current, false))

	old := &models.User{Eppn: "stale", ModifiedAt: now.Add(-time.Hour)}
	s.Require().ErrorIs(s.store.Save(s.ctx, old, true), sentinel.ErrConflict)

	// The unchecked save the committer uses wins regardless.
	old.GivenName = "Override"
	s.Require().NoError(s.store.Save(s.ctx, old, false))
	found, err := s.store.FindByEppn(s.ctx, "stale")
	s.Require().NoError(err)
	s.Equal("Override", found.GivenName)
}
