package state

import (
	"context"
	"fmt"
	"sync"

	"idproof/internal/proofing/models"
	"idproof/pkg/platform/sentinel"
)

// InMemory keeps proofing states in process memory. Used in development and
// unit tests; the single mutex gives the same create-once guarantee the
// Postgres unique constraint provides.
type InMemory struct {
	mu     sync.RWMutex
	states map[string]models.State // eppn -> state
	oidc   map[string]string       // correlation state -> eppn
}

// NewInMemory creates an in-memory proofing state store.
func NewInMemory() *InMemory {
	return &InMemory{
		states: make(map[string]models.State),
		oidc:   make(map[string]string),
	}
}

func (s *InMemory) GetActive(_ context.Context, eppn string) (models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[eppn]; ok {
		return st, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) GetByCorrelationState(_ context.Context, correlationState string) (*models.OidcState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eppn, ok := s.oidc[correlationState]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	st, ok := s.states[eppn].(*models.OidcState)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return st, nil
}

func (s *InMemory) Upsert(_ context.Context, st models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oidcState, ok := st.(*models.OidcState); ok {
		if owner, exists := s.oidc[oidcState.State]; exists && owner != st.Owner() {
			return fmt.Errorf("correlation state already bound to another owner: %w", sentinel.ErrConflict)
		}
	}

	// Drop a previous correlation index entry when the owner's state is
	// replaced or its correlation value changed.
	if prev, ok := s.states[st.Owner()].(*models.OidcState); ok {
		delete(s.oidc, prev.State)
	}

	s.states[st.Owner()] = st
	if oidcState, ok := st.(*models.OidcState); ok {
		s.oidc[oidcState.State] = st.Owner()
	}
	return nil
}

func (s *InMemory) Delete(_ context.Context, eppn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.states[eppn].(*models.OidcState); ok {
		delete(s.oidc, prev.State)
	}
	delete(s.states, eppn)
	return nil
}
