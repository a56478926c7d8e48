// Package store persists the proofing-scoped user aggregate. The proofing
// subsystem is authoritative for the NIN set, so saves can opt out of the
// usual modified-timestamp sync check.
package store

import (
	"context"

	"idproof/internal/user/models"
)

// Store reads and writes the proofing-scoped copy of the user aggregate.
type Store interface {
	FindByEppn(ctx context.Context, eppn string) (*models.User, error)
	// Save persists the aggregate. With checkSync true, a stale ModifiedAt
	// rejects the write (sentinel.ErrConflict); the committer passes false
	// because its source aggregate is as current as the directory can serve.
	Save(ctx context.Context, user *models.User, checkSync bool) error
}
