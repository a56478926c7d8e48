// Package proof persists append-only proofing audit records.
package proof

import (
	"context"

	"idproof/internal/proofing/models"
)

// Store appends and lists proof records. There is no update or delete;
// records are observational only.
type Store interface {
	Append(ctx context.Context, record *models.ProofRecord) error
	// ListByEppn returns the owner's records, newest first.
	ListByEppn(ctx context.Context, eppn string) ([]*models.ProofRecord, error)
}
