package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type MemoryLimiterSuite struct {
	suite.Suite
	limiter *Memory
	ctx     context.Context
	clock   time.Time
}

func (s *MemoryLimiterSuite) SetupTest() {
	s.limiter = NewMemory(3, 15*time.Minute)
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.limiter.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func TestMemoryLimiterSuite(t *testing.T) {
	suite.Run(t, new(MemoryLimiterSuite))
}

func (s *MemoryLimiterSuite) allow(eppn string) bool {
	allowed, err := s.limiter.Allow(s.ctx, eppn)
	s.Require().NoError(err)
	return allowed
}

func (s *MemoryLimiterSuite) TestAllowsUntilMaxFailures() {
	s.True(s.allow("hubba-bubba"))

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.limiter.RecordFailure(s.ctx, "hubba-bubba"))
	}
	s.False(s.allow("hubba-bubba"))
}

func (s *MemoryLimiterSuite) TestWindowExpiry() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.limiter.RecordFailure(s.ctx, "waiter"))
	}
	s.False(s.allow("waiter"))

	s.clock = s.clock.Add(15 * time.Minute)
	s.True(s.allow("waiter"))

	// A failure after the window starts a fresh count.
	s.Require().NoError(s.limiter.RecordFailure(s.ctx, "waiter"))
	s.True(s.allow("waiter"))
}

func (s *MemoryLimiterSuite) TestResetClearsFailures() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.limiter.RecordFailure(s.ctx, "resetter"))
	}
	s.Require().NoError(s.limiter.Reset(s.ctx, "resetter"))
	s.True(s.allow("resetter"))
}

func (s *MemoryLimiterSuite) TestOwnersAreIndependent() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.limiter.RecordFailure(s.ctx, "blocked"))
	}
	s.False(s.allow("blocked"))
	s.True(s.allow("unrelated"))
}
