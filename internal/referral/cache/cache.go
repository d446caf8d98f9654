// Package cache is a read-through Redis cache for user views. Lookups by
// referral code or username dominate the read path; a miss or a Redis error
// just falls through to the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"refhub/internal/platform/redis"
	"refhub/internal/referral/models"
)

const keyPrefix = "refhub:user:"

// Cache caches serialized user views under both their code and username keys
// so either identifier hits.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps the Redis client. Returns nil when the client is nil so callers
// can treat an unconfigured cache as absent.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached view for a code or username, or false on miss.
func (c *Cache) Get(ctx context.Context, identifier string) (*models.UserView, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+identifier).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WarnContext(ctx, "cache read failed", "error", err.Error())
		}
		return nil, false
	}
	var view models.UserView
	if err := json.Unmarshal(raw, &view); err != nil {
		c.logger.WarnContext(ctx, "cache entry corrupt, dropping", "error", err.Error())
		c.client.Del(ctx, keyPrefix+identifier)
		return nil, false
	}
	return &view, true
}

// Set stores the view under both identifier keys with the configured TTL.
func (c *Cache) Set(ctx context.Context, view *models.UserView) {
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, keyPrefix+view.Code, raw, c.ttl)
	pipe.Set(ctx, keyPrefix+view.Username, raw, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "error", err.Error())
	}
}

// Invalidate drops the entries for a user's code and username.
func (c *Cache) Invalidate(ctx context.Context, code, username string) {
	if err := c.client.Del(ctx, keyPrefix+code, keyPrefix+username).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed", "error", err.Error())
	}
}
