//go:build integration

package proof_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idproof/internal/proofing/models"
	"idproof/internal/proofing/store/proof"
	"idproof/pkg/testutil/containers"
)

type PostgresProofSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *proof.Postgres
	ctx      context.Context
}

func TestPostgresProofSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresProofSuite))
}

func (s *PostgresProofSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = proof.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresProofSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "proof_records"))
}

func (s *PostgresProofSuite) newRecord(eppn string, at time.Time) *models.ProofRecord {
	record, err := models.NewProofRecord(eppn, models.MethodLetter, models.LetterProofPayload{
		Nin: models.NinCandidate{Number: "190001021234"},
	}, at)
	s.Require().NoError(err)
	return record
}

func (s *PostgresProofSuite) TestAppendAndList() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(s.ctx, s.newRecord("trail", base)))
	s.Require().NoError(s.store.Append(s.ctx, s.newRecord("trail", base.Add(time.Hour))))

	records, err := s.store.ListByEppn(s.ctx, "trail")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.True(records[0].CreatedAt.After(records[1].CreatedAt))

	var payload models.LetterProofPayload
	s.Require().NoError(json.Unmarshal(records[0].Payload, &payload))
	s.Equal("190001021234", payload.Nin.Number)
}

func (s *PostgresProofSuite) TestListUnknownOwnerIsEmpty() {
	records, err := s.store.ListByEppn(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *PostgresProofSuite) TestRecordsSeparatedByOwner() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(s.ctx, s.newRecord("alpha", base)))
	s.Require().NoError(s.store.Append(s.ctx, s.newRecord("beta", base)))

	records, err := s.store.ListByEppn(s.ctx, "alpha")
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("alpha", records[0].Eppn)
}
