package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"idproof/internal/proofing/models"
	"idproof/pkg/platform/sentinel"
)

// Postgres persists proofing states in PostgreSQL. The state document is a
// JSONB payload with a method discriminator column; eppn is the primary key
// and the OIDC correlation value carries its own unique index.
//
// Schema (migrations/0001_proofing_states.sql):
//
//	CREATE TABLE proofing_states (
//	    eppn        TEXT PRIMARY KEY,
//	    method      TEXT NOT NULL,
//	    oidc_state  TEXT UNIQUE,
//	    payload     JSONB NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed proofing state store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) GetActive(ctx context.Context, eppn string) (models.State, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT method, payload FROM proofing_states WHERE eppn = $1`, eppn)
	return scanState(row)
}

func (s *Postgres) GetByCorrelationState(ctx context.Context, correlationState string) (*models.OidcState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT method, payload FROM proofing_states WHERE oidc_state = $1`, correlationState)
	st, err := scanState(row)
	if err != nil {
		return nil, err
	}
	oidcState, ok := st.(*models.OidcState)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return oidcState, nil
}

func (s *Postgres) Upsert(ctx context.Context, st models.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal proofing state: %w", err)
	}

	var oidcState sql.NullString
	if o, ok := st.(*models.OidcState); ok {
		oidcState = sql.NullString{String: o.State, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proofing_states (eppn, method, oidc_state, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (eppn) DO UPDATE SET
			method = EXCLUDED.method,
			oidc_state = EXCLUDED.oidc_state,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, st.Owner(), string(st.ProofingMethod()), oidcState, payload, time.Now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			// The eppn conflict is handled by DO UPDATE; reaching here means
			// the oidc_state unique index fired, which is an integrity error.
			return fmt.Errorf("correlation state already bound to another owner: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("upsert proofing state: %w", err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, eppn string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM proofing_states WHERE eppn = $1`, eppn); err != nil {
		return fmt.Errorf("delete proofing state: %w", err)
	}
	return nil
}

func scanState(row *sql.Row) (models.State, error) {
	var method string
	var payload []byte
	if err := row.Scan(&method, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan proofing state: %w", err)
	}
	switch models.Method(method) {
	case models.MethodLetter:
		var st models.LetterState
		if err := json.Unmarshal(payload, &st); err != nil {
			return nil, fmt.Errorf("unmarshal letter state: %w", err)
		}
		return &st, nil
	case models.MethodOidc:
		var st models.OidcState
		if err := json.Unmarshal(payload, &st); err != nil {
			return nil, fmt.Errorf("unmarshal oidc state: %w", err)
		}
		return &st, nil
	default:
		return nil, fmt.Errorf("unknown proofing method %q", method)
	}
}
