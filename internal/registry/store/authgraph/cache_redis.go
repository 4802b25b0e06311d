package authgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "soulbound/pkg/domain"
)

// RedisCache decorates a Graph with a read-through cache for IsAuthorized,
// the one query on the hot issuance path. Mutations write through to the
// underlying graph and drop the cached entry before returning, so a stale
// positive can never outlive a revocation. Cache failures degrade to the
// underlying graph, never to a wrong answer.
type RedisCache struct {
	next   Graph
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache wraps next with a Redis-backed IsAuthorized cache.
func NewRedisCache(next Graph, client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Grant(ctx context.Context, issuer id.Identity, credType id.CredentialType) error {
	if err := c.next.Grant(ctx, issuer, credType); err != nil {
		return err
	}
	c.invalidate(ctx, issuer, credType)
	return nil
}

func (c *RedisCache) Revoke(ctx context.Context, issuer id.Identity, credType id.CredentialType) error {
	if err := c.next.Revoke(ctx, issuer, credType); err != nil {
		return err
	}
	c.invalidate(ctx, issuer, credType)
	return nil
}

func (c *RedisCache) IsAuthorized(ctx context.Context, issuer id.Identity, credType id.CredentialType) (bool, error) {
	key := cacheKey(issuer, credType)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return cached == "1", nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("authgraph cache read failed", "error", err)
	}

	authorized, err := c.next.IsAuthorized(ctx, issuer, credType)
	if err != nil {
		return false, err
	}

	value := "0"
	if authorized {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("authgraph cache write failed", "error", err)
	}
	return authorized, nil
}

func (c *RedisCache) IssuersFor(ctx context.Context, credType id.CredentialType) ([]id.Identity, error) {
	return c.next.IssuersFor(ctx, credType)
}

func (c *RedisCache) TypesFor(ctx context.Context, issuer id.Identity) ([]id.CredentialType, error) {
	return c.next.TypesFor(ctx, issuer)
}

func (c *RedisCache) invalidate(ctx context.Context, issuer id.Identity, credType id.CredentialType) {
	if err := c.client.Del(ctx, cacheKey(issuer, credType)).Err(); err != nil {
		// The entry expires on its own TTL; log so operators can see the
		// window during which a stale read is possible.
		c.logger.Warn("authgraph cache invalidation failed", "error", err)
	}
}

func cacheKey(issuer id.Identity, credType id.CredentialType) string {
	return fmt.Sprintf("authgraph:%s:%s", credType, issuer)
}
