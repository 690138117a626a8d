package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"peerstream/internal/domain"
)

const redisCachePrefix = "psearch:cache:"

// RedisCache stores search responses in Redis with JSON serialization,
// sharing hits across gateway instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]domain.SearchResult, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var results []domain.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, err
	}
	return results, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, results []domain.SearchResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, r.ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
