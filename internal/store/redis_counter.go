package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore 基于 Redis 的计数存储，多实例部署时共享限额
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterStore 创建 Redis 计数存储
func NewRedisCounterStore(client *redis.Client, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "resale"
	}
	return &RedisCounterStore{client: client, prefix: prefix}
}

func (s *RedisCounterStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := s.key(key)
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	// 首次计数时挂过期，后续自增不续期
	if count == 1 {
		if err := s.client.Expire(ctx, k, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *RedisCounterStore) GetCount(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, s.key(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (s *RedisCounterStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
