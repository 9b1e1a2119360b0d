package repository

import (
	"context"
	"time"

	"mediaforge-ai-api/internal/domain/entity"
)

// UsageRecordRepository 使用流水仓储接口（只追加）
type UsageRecordRepository interface {
	Create(ctx context.Context, record *entity.UsageRecord) error
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.UsageRecord], error)

	// GetCreditSpend 统计用户在 [startInclusive, endExclusive) 内的信用点消耗
	GetCreditSpend(ctx context.Context, userID string, startInclusive, endExclusive time.Time) (int64, error)
}
