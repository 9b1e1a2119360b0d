// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var spendTracer = otel.Tracer("redis.spend")

// SpendTracker 维护用户按日的信用点消耗聚合。
// 由 usage-worker 消费使用事件写入；计费侧读取用于日消耗上限检查。
// 聚合是 best-effort 的近实时视图，权威数据始终在 usage_records 表。
type SpendTracker struct {
	client *Client
}

// NewSpendTracker 创建日消耗聚合器
func NewSpendTracker(client *Client) *SpendTracker {
	return &SpendTracker{client: client}
}

func spendKey(userID string, day time.Time) string {
	return fmt.Sprintf("spend:%s:%s", userID, day.UTC().Format("20060102"))
}

// AddSpend 累加用户当日消耗
func (t *SpendTracker) AddSpend(ctx context.Context, userID string, credits int64, at time.Time) error {
	ctx, span := spendTracer.Start(ctx, "spend.Add",
		trace.WithAttributes(
			attribute.String("spend.user_id", userID),
			attribute.Int64("spend.credits", credits),
		))
	defer span.End()

	if credits <= 0 {
		return nil
	}

	key := spendKey(userID, at)
	pipe := t.client.rdb.Pipeline()
	pipe.IncrBy(ctx, key, credits)
	// 保留两天，跨日读取后自然过期
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to add spend: %w", err)
	}
	return nil
}

// GetDailySpend 读取用户当日消耗，键不存在视为 0
func (t *SpendTracker) GetDailySpend(ctx context.Context, userID string, day time.Time) (int64, error) {
	ctx, span := spendTracer.Start(ctx, "spend.GetDaily",
		trace.WithAttributes(attribute.String("spend.user_id", userID)))
	defer span.End()

	val, err := t.client.rdb.Get(ctx, spendKey(userID, day)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get daily spend: %w", err)
	}
	return val, nil
}
