package proof

import (
	"context"
	"sort"
	"sync"

	"idproof/internal/proofing/models"
)

// InMemory keeps proof records in process memory.
type InMemory struct {
	mu      sync.RWMutex
	records map[string][]*models.ProofRecord
}

// NewInMemory creates an in-memory proof record store.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string][]*models.ProofRecord)}
}

func (s *InMemory) Append(_ context.Context, record *models.ProofRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Eppn] = append(s.records[record.Eppn], record)
	return nil
}

func (s *InMemory) ListByEppn(_ context.Context, eppn string) ([]*models.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProofRecord, len(s.records[eppn]))
	copy(out, s.records[eppn])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
