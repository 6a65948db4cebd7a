package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrCacheMiss is returned when a quiz payload is not cached.
var ErrCacheMiss = errors.New("quiz payload not cached")

// Cache keeps full quiz payloads, answer key included, in Redis.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache creates a Cache. A zero ttl keeps payloads until invalidated.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get reads a cached quiz.
func (c *Cache) Get(ctx context.Context, quizID string) (*model.Quiz, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.QuizPayloadKey(quizID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var q model.Quiz
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &q, nil
}

// Set caches a quiz payload.
func (c *Cache) Set(ctx context.Context, q *model.Quiz) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.rdb.Set(ctx, config.CacheKey.QuizPayloadKey(q.QuizID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

// Invalidate drops a cached quiz.
func (c *Cache) Invalidate(ctx context.Context, quizID string) error {
	return c.rdb.Del(ctx, config.CacheKey.QuizPayloadKey(quizID)).Err()
}
