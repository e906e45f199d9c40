package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/rediskey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "rewards_catalog_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "rewards_catalog_cache_miss_total"})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMiss)
}

// Cache holds the active award settings snapshot.
type Cache interface {
	Get(ctx context.Context) ([]*AwardSetting, bool)
	Set(ctx context.Context, settings []*AwardSetting)
	Invalidate(ctx context.Context)
}

type redisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	key string
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) Cache {
	return &redisCache{
		rdb: rdb,
		ttl: ttl,
		key: rediskey.BuildActiveCatalogKey(),
	}
}

func (c *redisCache) Get(ctx context.Context) ([]*AwardSetting, bool) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("catalog cache read failed", zap.Error(err))
		}
		cacheMiss.Inc()
		return nil, false
	}

	var settings []*AwardSetting
	if err := json.Unmarshal(raw, &settings); err != nil {
		zap.L().Warn("catalog cache entry is corrupt", zap.Error(err))
		cacheMiss.Inc()
		return nil, false
	}

	cacheHits.Inc()
	return settings, true
}

func (c *redisCache) Set(ctx context.Context, settings []*AwardSetting) {
	raw, err := json.Marshal(settings)
	if err != nil {
		zap.L().Warn("catalog cache encode failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		zap.L().Warn("catalog cache write failed", zap.Error(err))
	}
}

func (c *redisCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		zap.L().Warn("catalog cache invalidate failed", zap.Error(err))
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context) ([]*AwardSetting, bool) { return nil, false }
func (noopCache) Set(context.Context, []*AwardSetting)        {}
func (noopCache) Invalidate(context.Context)                  {}
