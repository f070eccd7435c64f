package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 500 * time.Millisecond

// RedisStore 是 Memo 的二级缓存，key 统一加前缀
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr, prefix string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &RedisStore{client: rdb, prefix: prefix}
}

// get 返回值及其在 Redis 中的剩余 TTL；key 没有过期时间时 TTL <= 0
func (r *RedisStore) get(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		getCmd = p.Get(ctx, r.prefix+key)
		ttlCmd = p.PTTL(ctx, r.prefix+key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("warn: redis get %s: %v", key, err)
		return nil, 0, false
	}
	bs, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, false
	}
	return bs, ttlCmd.Val(), true
}

func (r *RedisStore) set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return r.client.Set(ctx, r.prefix+key, val, ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
