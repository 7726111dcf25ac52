package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"mare-review-api/pkg/metrics"
)

var cacheTracer = otel.Tracer("redis.review_cache")

// ReviewCache 评论结果缓存
// 键为 (角色名, 故事摘要)，值为终态 HTML 评论；相同故事重复提交
// 同一角色时直接复用，避免重复消耗 LLM 调用。
type ReviewCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewReviewCache 创建评论缓存；ttl<=0 表示禁用缓存
func NewReviewCache(client *Client, ttl time.Duration) *ReviewCache {
	return &ReviewCache{
		client: client,
		ttl:    ttl,
	}
}

// Enabled 缓存是否可用
func (c *ReviewCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key 计算缓存键
func Key(persona, story string) string {
	sum := sha256.Sum256([]byte(story))
	return "review:" + persona + ":" + hex.EncodeToString(sum[:])
}

// GetOrGenerate 读缓存，未命中时通过 singleflight 合并并发的相同
// 生成请求后回填。缓存不可用时直接调用 generate。
// 缓存写入失败只记录指标，不影响返回结果。
func (c *ReviewCache) GetOrGenerate(ctx context.Context, persona, story string, generate func() (string, error)) (string, bool, error) {
	if !c.Enabled() {
		out, err := generate()
		return out, false, err
	}

	key := Key(persona, story)

	ctx, span := cacheTracer.Start(ctx, "review_cache.GetOrGenerate",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Result()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.ReviewCacheTotal.WithLabelValues("hit").Inc()
		return val, true, nil
	}
	if err != redis.Nil {
		// 缓存故障时降级为直接生成
		span.RecordError(err)
		metrics.ReviewCacheTotal.WithLabelValues("error").Inc()
		out, genErr := generate()
		return out, false, genErr
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	metrics.ReviewCacheTotal.WithLabelValues("miss").Inc()

	// 合并并发的相同请求
	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		// 再次检查缓存（可能已被其他请求填充）
		if val, err := c.client.rdb.Get(ctx, key).Result(); err == nil {
			return val, nil
		}

		out, err := generate()
		if err != nil {
			return "", err
		}

		if err := c.client.rdb.Set(ctx, key, out, c.ttl).Err(); err != nil {
			span.RecordError(err)
			metrics.ReviewCacheTotal.WithLabelValues("error").Inc()
		}
		return out, nil
	})
	if err != nil {
		return "", false, err
	}
	return result.(string), shared, nil
}
