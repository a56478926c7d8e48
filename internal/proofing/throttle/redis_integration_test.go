//go:build integration

package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idproof/internal/proofing/throttle"
	"idproof/pkg/testutil/containers"
)

type RedisLimiterSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	limiter *throttle.Redis
	ctx     context.Context
}

func TestRedisLimiterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLimiterSuite))
}

func (s *RedisLimiterSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ctx = context.Background()
}

func (s *RedisLimiterSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.limiter = throttle.NewRedis(s.redis.Client, 3, time.Minute)
}

func (s *RedisLimiterSuite) allow(eppn string) bool {
	allowed, err := s.limiter.Allow(s.ctx, eppn)
	s.Require().NoError(err)
	return allowed
}

func (s *RedisLimiterSuite) TestBlocksAfterMaxFailures() {
	s.True(s.allow("hubba-bubba"))

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.limiter.RecordFailure(s.ctx, "hubba-bubba"))
	}
	s.False(s.allow("hubba-bubba"))
	s.True(s.allow("unrelated"), "owners are throttled independently")
}

func (s *RedisLimiterSuite) TestResetClearsFailures() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.limiter.RecordFailure(s.ctx, "resetter"))
	}
	s.False(s.allow("resetter"))

	s.Require().NoError(s.limiter.Reset(s.ctx, "resetter"))
	s.True(s.allow("resetter"))
}

func (s *RedisLimiterSuite) TestWindowExpires() {
	s.limiter = throttle.NewRedis(s.redis.Client, 1, time.Second)

	s.Require().NoError(s.limiter.RecordFailure(s.ctx, "waiter"))
	s.False(s.allow("waiter"))

	time.Sleep(1500 * time.Millisecond)
	s.True(s.allow("waiter"))
}
