package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"idproof/internal/user/models"
	"idproof/pkg/platform/sentinel"
)

// Postgres persists the proofing-scoped user aggregate as a JSONB document.
//
// Schema (migrations/0003_proofing_users.sql):
//
//	CREATE TABLE proofing_users (
//	    eppn        TEXT PRIMARY KEY,
//	    payload     JSONB NOT NULL,
//	    modified_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByEppn(ctx context.Context, eppn string) (*models.User, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM proofing_users WHERE eppn = $1`, eppn).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	var user models.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

func (s *Postgres) Save(ctx context.Context, user *models.User, checkSync bool) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	if checkSync {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO proofing_users (eppn, payload, modified_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (eppn) DO UPDATE SET
				payload = EXCLUDED.payload,
				modified_at = EXCLUDED.modified_at
			WHERE proofing_users.modified_at <= EXCLUDED.modified_at
		`, user.Eppn, payload, user.ModifiedAt)
		if err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("stale user aggregate: %w", sentinel.ErrConflict)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proofing_users (eppn, payload, modified_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (eppn) DO UPDATE SET
			payload = EXCLUDED.payload,
			modified_at = EXCLUDED.modified_at
	`, user.Eppn, payload, user.ModifiedAt)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
