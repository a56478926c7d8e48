// Package throttle rate limits letter code verification. The upstream flow
// shipped without any brute-force protection; this fixed-window failure
// counter closes that gap without changing any success-path semantics.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks failed verification attempts per owner.
type Limiter interface {
	// Allow reports whether the owner may attempt another code verification.
	Allow(ctx context.Context, eppn string) (bool, error)
	// RecordFailure counts a failed attempt.
	RecordFailure(ctx context.Context, eppn string) error
	// Reset clears the owner's failures after a successful verification.
	Reset(ctx context.Context, eppn string) error
}

type window struct {
	count   int
	startAt time.Time
}

// Memory is a fixed-window in-process limiter for single-instance and test
// deployments.
type Memory struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxFailures int
	windowSize  time.Duration
	now         func() time.Time
}

// NewMemory creates an in-memory limiter.
func NewMemory(maxFailures int, windowSize time.Duration) *Memory {
	return &Memory{
		windows:     make(map[string]*window),
		maxFailures: maxFailures,
		windowSize:  windowSize,
		now:         time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, eppn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[eppn]
	if !ok || m.now().Sub(w.startAt) >= m.windowSize {
		return true, nil
	}
	return w.count < m.maxFailures, nil
}

func (m *Memory) RecordFailure(_ context.Context, eppn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	w, ok := m.windows[eppn]
	if !ok || now.Sub(w.startAt) >= m.windowSize {
		m.windows[eppn] = &window{count: 1, startAt: now}
		return nil
	}
	w.count++
	return nil
}

func (m *Memory) Reset(_ context.Context, eppn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, eppn)
	return nil
}
