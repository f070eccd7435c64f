package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	val     T
	expires time.Time
}

// Memo 是按 key 的短 TTL 缓存：同一 key 同一时间只有一个计算在进行，其余请求共享结果。
// 配置了 Redis 时作为二级缓存，多实例之间共享结果。
type Memo[T any] struct {
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry[T]

	l2   *RedisStore
	skip func(T) bool
	now  func() time.Time
}

// New 创建缓存；skip 返回 true 的结果不会被缓存（例如空列表），可为 nil
func New[T any](l2 *RedisStore, skip func(T) bool) *Memo[T] {
	return &Memo[T]{
		entries: make(map[string]entry[T]),
		l2:      l2,
		skip:    skip,
		now:     time.Now,
	}
}

// GetOrCompute 命中且未过期时直接返回，否则执行 compute。
// ttl <= 0 时不落缓存，但并发的相同请求仍然合并为一次计算。
// compute 不受调用方取消影响，调用方取消时只是不再等待。
func (m *Memo[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	return m.do(ctx, key, func(cctx context.Context) (T, error) {
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		if v, ok := m.fromL2(cctx, key, ttl); ok {
			return v, nil
		}
		return m.compute(cctx, key, ttl, compute)
	})
}

// Refresh 忽略现有缓存重新计算，用于定时预热
func (m *Memo[T]) Refresh(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	return m.do(ctx, key, func(cctx context.Context) (T, error) {
		return m.compute(cctx, key, ttl, compute)
	})
}

// Purge 清理过期的本地条目
func (m *Memo[T]) Purge() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memo[T]) do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	cctx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		return fn(cctx)
	})

	var zero T
	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (m *Memo[T]) compute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if ttl <= 0 || (m.skip != nil && m.skip(v)) {
		return v, nil
	}

	m.mu.Lock()
	m.entries[key] = entry[T]{val: v, expires: m.now().Add(ttl)}
	m.mu.Unlock()

	if m.l2 != nil {
		if bs, err := json.Marshal(v); err == nil {
			if err := m.l2.set(ctx, key, bs, ttl); err != nil {
				log.Printf("warn: cache set %s: %v", key, err)
			}
		}
	}
	return v, nil
}

func (m *Memo[T]) lookup(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		var zero T
		return zero, false
	}
	return e.val, true
}

func (m *Memo[T]) fromL2(ctx context.Context, key string, ttl time.Duration) (T, bool) {
	var zero T
	if m.l2 == nil || ttl <= 0 {
		return zero, false
	}
	bs, remaining, ok := m.l2.get(ctx, key)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(bs, &v); err != nil {
		return zero, false
	}

	m.mu.Lock()
	m.entries[key] = entry[T]{val: v, expires: m.now().Add(localTTL(ttl, remaining))}
	m.mu.Unlock()
	return v, true
}

// localTTL 让本地副本与 Redis 中的条目同时过期，不超过 ttl
func localTTL(ttl, remaining time.Duration) time.Duration {
	if remaining > 0 && remaining < ttl {
		return remaining
	}
	return ttl
}
