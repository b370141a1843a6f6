// README: Redis-backed cache store; keys expire through Redis TTLs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

type RedisStore struct {
	redis     *redis.Client
	namespace string
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{redis: client, namespace: namespace}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Item, bool, error) {
	raw, err := s.redis.Get(ctx, s.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, err
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return Item{}, false, errors.Join(ErrCorrupt, err)
	}
	return it, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, it Item, retain time.Duration) error {
	raw, err := json.Marshal(it)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.namespace+key, raw, retain).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, s.namespace+key).Err()
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := escapeGlob(s.namespace+prefix) + "*"
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Sweep is a no-op: Redis drops keys once their retention TTL passes.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
