package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "agent-wallet:"

// RedisStore is a durable tier shared by every process pointed at the same server.
// Values carry their write time so Age can be reported alongside Redis' own expiry.
type RedisStore struct {
	client *redis.Client
}

func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis cache requires a url")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisStore) Get(ctx context.Context, key string) (Result, error) {
	vals, err := r.client.HMGet(ctx, redisKeyPrefix+key, "value", "created_at", "ttl_ms").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{Hit: false}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}
	value, ok1 := vals[0].(string)
	created, ok2 := vals[1].(string)
	ttlRaw, ok3 := vals[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return Result{Hit: false}, nil
	}
	var createdMillis, ttlMillis int64
	if _, err := fmt.Sscan(created, &createdMillis); err != nil {
		return Result{Hit: false}, nil
	}
	if _, err := fmt.Sscan(ttlRaw, &ttlMillis); err != nil {
		return Result{Hit: false}, nil
	}
	age := time.Since(time.UnixMilli(createdMillis))
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlMillis) * time.Millisecond
	if age >= ttl {
		return Result{Hit: false}, nil
	}
	return Result{Hit: true, Value: []byte(value), Age: age, TTL: ttl}, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	k := redisKeyPrefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "value", value, "created_at", time.Now().UnixMilli(), "ttl_ms", ttl.Milliseconds())
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
