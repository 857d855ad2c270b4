package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"loandocs/internal/config"
)

// NewRedis returns a configured Redis client after a successful ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisKV keeps the metadata medium in Redis under a key prefix. Capacity is
// enforced over every catalog value under that prefix.
type RedisKV struct {
	client   *redis.Client
	prefix   string
	capacity int64
}

// NewRedisKV returns a KV over client. capacity <= 0 means unbounded.
func NewRedisKV(client *redis.Client, prefix string, capacity int64) *RedisKV {
	return &RedisKV{client: client, prefix: prefix, capacity: capacity}
}

var _ KV = (*RedisKV)(nil)

func (r *RedisKV) key(k string) string { return r.prefix + k }

// Get returns the value under key, or nil when it is absent.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set stores key without expiry, subject to the same capacity rule as SQLiteKV.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if r.capacity > 0 && !bookkeeping(key) {
		used, err := r.usage(ctx, r.key(key))
		if err != nil {
			return err
		}
		if used+int64(len(value)) > r.capacity {
			return fmt.Errorf("redis set %s (%d bytes, %d of %d used): %w",
				key, len(value), used, r.capacity, ErrQuotaExceeded)
		}
	}
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// usage sums the catalog value sizes under the prefix, excluding skip.
func (r *RedisKV) usage(ctx context.Context, skip string) (int64, error) {
	var total int64
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if k == skip || bookkeeping(strings.TrimPrefix(k, r.prefix)) {
			continue
		}
		n, err := r.client.StrLen(ctx, k).Result()
		if err != nil {
			return 0, fmt.Errorf("redis strlen %s: %w", k, err)
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return total, nil
}
