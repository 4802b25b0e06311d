//go:build integration

package authgraph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"soulbound/internal/registry/store/authgraph"
	"soulbound/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *authgraph.RedisCache
	inner *authgraph.InMemory
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.inner = authgraph.NewInMemory()
	s.cache = authgraph.NewRedisCache(s.inner, s.redis.Client, time.Minute, nil)
}

func (s *RedisCacheSuite) TestIsAuthorized_ReadThrough() {
	ctx := context.Background()

	s.Require().NoError(s.inner.Grant(ctx, "university-a", "degree"))

	// First lookup populates the cache, second is served from it.
	ok, err := s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.True(ok)

	keys, err := s.redis.Client.Keys(ctx, "authgraph:*").Result()
	s.Require().NoError(err)
	s.Len(keys, 1)

	ok, err = s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisCacheSuite) TestIsAuthorized_CachesNegative() {
	ctx := context.Background()

	ok, err := s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.False(ok)

	keys, err := s.redis.Client.Keys(ctx, "authgraph:*").Result()
	s.Require().NoError(err)
	s.Len(keys, 1)
}

func (s *RedisCacheSuite) TestGrant_InvalidatesCachedDenial() {
	ctx := context.Background()

	ok, err := s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.cache.Grant(ctx, "university-a", "degree"))

	ok, err = s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisCacheSuite) TestRevoke_InvalidatesCachedApproval() {
	ctx := context.Background()

	s.Require().NoError(s.cache.Grant(ctx, "university-a", "degree"))

	ok, err := s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.cache.Revoke(ctx, "university-a", "degree"))

	ok, err = s.cache.IsAuthorized(ctx, "university-a", "degree")
	s.Require().NoError(err)
	s.False(ok)
}
