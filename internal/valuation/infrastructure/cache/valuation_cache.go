package cache

import (
	"context"
	"time"

	"github.com/wyfcoding/contractpricing/internal/valuation/application"
	"github.com/wyfcoding/contractpricing/pkg/cache"
	"github.com/wyfcoding/contractpricing/pkg/metrics"
)

const keyPrefix = "valuation:result:"

// RedisValuationCache 基于 Redis 的估值结果缓存，按指纹寻址
type RedisValuationCache struct {
	rc      *cache.RedisCache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisValuationCache 创建估值缓存，ttl 为 0 时禁用写入
func NewRedisValuationCache(rc *cache.RedisCache, ttl time.Duration, m *metrics.Metrics) *RedisValuationCache {
	return &RedisValuationCache{rc: rc, ttl: ttl, metrics: m}
}

// Get 查询缓存，未命中返回 (nil, nil)
func (c *RedisValuationCache) Get(ctx context.Context, fingerprint string) (*application.ValuationDTO, error) {
	if c.metrics != nil {
		c.metrics.RedisOpsTotal.Inc()
	}
	var dto application.ValuationDTO
	found, err := c.rc.GetJSON(ctx, keyPrefix+fingerprint, &dto)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &dto, nil
}

// Set 写入缓存
func (c *RedisValuationCache) Set(ctx context.Context, fingerprint string, dto *application.ValuationDTO) error {
	if c.ttl <= 0 {
		return nil
	}
	if c.metrics != nil {
		c.metrics.RedisOpsTotal.Inc()
	}
	return c.rc.SetJSON(ctx, keyPrefix+fingerprint, dto, c.ttl)
}
