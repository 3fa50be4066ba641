package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/pkg/redis"
)

// redisRequestLocker 以 Redis 租约实现跨实例的调课申请互斥
type redisRequestLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisRequestLocker 创建基于 Redis 的 RequestLocker
func NewRedisRequestLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) RequestLocker {
	return &redisRequestLocker{client: client, ttl: ttl, wait: wait, logger: logger}
}

func (l *redisRequestLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lease, err := l.client.AcquireLock(ctx, key, l.ttl, l.wait)
	if err != nil {
		return nil, err
	}
	return func() {
		// 请求上下文可能已取消，释放使用独立的短超时
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			l.logger.Warn("释放分布式锁失败", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
