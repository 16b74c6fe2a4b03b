// Package draft provides the durable draft cache: one JSON blob of unsynced
// producer edits per checklist public id, used for crash/reload recovery.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"fieldbook/api/internal/checklist"
)

const draftTTL = 90 * 24 * time.Hour

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "draft:",
	}, nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "draft:",
	}
}

func (c *RedisCache) key(publicID string) string {
	return c.prefix + publicID
}

// Load returns the cached draft for a checklist. A missing entry yields an
// empty map; an unparsable blob is logged and also treated as empty, never
// as an error - draft recovery must not be fatal.
func (c *RedisCache) Load(ctx context.Context, publicID string) (checklist.ResponseMap, error) {
	raw, err := c.client.Get(ctx, c.key(publicID)).Result()
	if err == redis.Nil {
		return checklist.ResponseMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	var m checklist.ResponseMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		logrus.WithField("checklist", publicID).Warnf("draft: discarding unparsable cache entry: %v", err)
		return checklist.ResponseMap{}, nil
	}
	if m == nil {
		m = checklist.ResponseMap{}
	}
	return m, nil
}

func (c *RedisCache) Save(ctx context.Context, publicID string, m checklist.ResponseMap) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := c.client.Set(ctx, c.key(publicID), raw, draftTTL).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context, publicID string) error {
	if err := c.client.Del(ctx, c.key(publicID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
