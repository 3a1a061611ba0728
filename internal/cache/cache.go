// Package cache stores JSON documents in Redis under a namespaced key.
// A Cache built without a client is disabled and every call is a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizflow/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

func New(client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: log}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) Key(id string) string {
	return fmt.Sprintf("%s:%s", c.prefix, id)
}

// Get decodes the cached value into dst. A missing key is (false, nil).
func (c *Cache) Get(ctx context.Context, id string, dst any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, c.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.logger.Error("error get cache", zap.String("key", c.Key(id)), zap.Error(err))
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", c.Key(id)), zap.Error(err))
		_ = c.Delete(ctx, id)
		return false, nil
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, id string, value any) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.Key(id), raw, c.ttl).Err(); err != nil {
		c.logger.Error("failed to cache payload", zap.String("key", c.Key(id)), zap.Error(err))
		return err
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Del(ctx, c.Key(id)).Err(); err != nil {
		c.logger.Error("error delete from cache", zap.String("key", c.Key(id)), zap.Error(err))
		return err
	}
	return nil
}
