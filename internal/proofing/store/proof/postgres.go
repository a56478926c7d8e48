package proof

import (
	"context"
	"fmt"

	"database/sql"

	"idproof/internal/proofing/models"
)

// Postgres persists proof records in PostgreSQL.
//
// Schema (migrations/0002_proof_records.sql):
//
//	CREATE TABLE proof_records (
//	    id          UUID PRIMARY KEY,
//	    eppn        TEXT NOT NULL,
//	    method      TEXT NOT NULL,
//	    payload     JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX proof_records_eppn_idx ON proof_records (eppn, created_at DESC);
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed proof record store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, record *models.ProofRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proof_records (id, eppn, method, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.Eppn, string(record.Method), []byte(record.Payload), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("append proof record: %w", err)
	}
	return nil
}

func (s *Postgres) ListByEppn(ctx context.Context, eppn string) ([]*models.ProofRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, eppn, method, payload, created_at
		FROM proof_records
		WHERE eppn = $1
		ORDER BY created_at DESC
	`, eppn)
	if err != nil {
		return nil, fmt.Errorf("list proof records: %w", err)
	}
	defer rows.Close()

	var records []*models.ProofRecord
	for rows.Next() {
		var rec models.ProofRecord
		var method string
		if err := rows.Scan(&rec.ID, &rec.Eppn, &method, (*[]byte)(&rec.Payload), &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proof record: %w", err)
		}
		rec.Method = models.Method(method)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proof records: %w", err)
	}
	return records, nil
}
