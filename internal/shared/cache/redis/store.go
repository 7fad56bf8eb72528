// Package redis Redis 缓存实现
//
// 当前只承载认证接口的固定窗口限流；Redis 未配置时组件整体禁用。
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store Redis 缓存存储
type Store struct {
	client *redis.Client
}

// NewStore 创建 Redis 缓存实例
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[redis] Connected to %s", addr)
	return &Store{client: client}, nil
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Allow 固定窗口限流：同一 key 在 window 内最多 limit 次
//
// INCR + 首次设置 EXPIRE，计数超限返回 false。
// Redis 出错时放行并记日志，限流不应成为可用性单点。
func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] rate limit check failed for %s: %v", key, err)
		return true
	}
	return incr.Val() <= int64(limit)
}
