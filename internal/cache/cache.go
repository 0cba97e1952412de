// Package cache keeps recently fetched items in Redis so repeat lookups do
// not spend the upstream request budget. Cache failures are logged and
// degrade to a miss; they never fail the request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boothhunter/boothhunter/internal/models"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type ItemCache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewItemCache(client RedisClient, ttl time.Duration, logger *slog.Logger) *ItemCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ItemCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "item_cache"),
	}
}

func itemKey(itemID int64) string {
	return fmt.Sprintf("item:%d", itemID)
}

// Get returns the cached item, or (nil, false) on a miss or any cache error.
func (c *ItemCache) Get(ctx context.Context, itemID int64) (*models.Item, bool) {
	data, err := c.client.Get(ctx, itemKey(itemID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", "item_id", itemID, "error", err)
		return nil, false
	}

	var item models.Item
	if err := json.Unmarshal(data, &item); err != nil {
		c.logger.Warn("cache entry corrupt", "item_id", itemID, "error", err)
		return nil, false
	}

	return &item, true
}

// Set stores an item under its id with the configured TTL.
func (c *ItemCache) Set(ctx context.Context, item *models.Item) {
	data, err := json.Marshal(item)
	if err != nil {
		c.logger.Warn("cache marshal failed", "item_id", item.ID, "error", err)
		return
	}

	if err := c.client.Set(ctx, itemKey(item.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "item_id", item.ID, "error", err)
	}
}

// Invalidate drops the cached entry for an item.
func (c *ItemCache) Invalidate(ctx context.Context, itemID int64) {
	if err := c.client.Del(ctx, itemKey(itemID)).Err(); err != nil {
		c.logger.Warn("cache delete failed", "item_id", itemID, "error", err)
	}
}
