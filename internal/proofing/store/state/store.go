// Package state persists in-flight proofing attempts. One active state exists
// per owner; OIDC states are additionally indexed by their correlation value
// so the provider callback can find its way back.
package state

import (
	"context"

	"idproof/internal/proofing/models"
)

// Store is the only component allowed to touch persisted proofing state
// documents. Engines go through it for every read and mutation.
type Store interface {
	// GetActive returns the single active state for the owner, or
	// sentinel.ErrNotFound.
	GetActive(ctx context.Context, eppn string) (models.State, error)
	// GetByCorrelationState resolves an OIDC callback's state parameter to
	// the originating attempt, or sentinel.ErrNotFound. The correlation value
	// is unique across all active states.
	GetByCorrelationState(ctx context.Context, correlationState string) (*models.OidcState, error)
	// Upsert creates or overwrites the single active state for the owner.
	// Safe under concurrent callers racing to create the first state; the
	// uniqueness constraint on the owner collapses the race to one document.
	// A correlation value colliding with another owner's active state is a
	// fatal integrity error (sentinel.ErrConflict).
	Upsert(ctx context.Context, st models.State) error
	// Delete removes the owner's active state. Idempotent; deleting an
	// absent state is not an error.
	Delete(ctx context.Context, eppn string) error
}
