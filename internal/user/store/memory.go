package store

import (
	"context"
	"fmt"
	"sync"

	"idproof/internal/user/models"
	"idproof/pkg/platform/sentinel"
)

// InMemory keeps user aggregates in process memory.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewInMemory creates an in-memory user store.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[string]*models.User)}
}

func (s *InMemory) FindByEppn(_ context.Context, eppn string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[eppn]; ok {
		cp := *u
		cp.Nins = append(cp.Nins[:0:0], u.Nins...)
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Save(_ context.Context, user *models.User, checkSync bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if checkSync {
		if existing, ok := s.users[user.Eppn]; ok && existing.ModifiedAt.After(user.ModifiedAt) {
			return fmt.Errorf("stale user aggregate: %w", sentinel.ErrConflict)
		}
	}
	cp := *user
	cp.Nins = append(cp.Nins[:0:0], user.Nins...)
	s.users[user.Eppn] = &cp
	return nil
}
