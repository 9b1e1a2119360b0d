package repository

import (
	"context"

	"mediaforge-ai-api/internal/domain/entity"
)

// PricingRepository 计价条目仓储接口。
// 核心只读；写入仅供管理面与 bootstrap 种子数据使用。
type PricingRepository interface {
	// GetByService 按服务标识读取计价条目，不存在或未启用时返回 nil
	GetByService(ctx context.Context, service string) (*entity.PricingEntry, error)
	List(ctx context.Context) ([]*entity.PricingEntry, error)
	Upsert(ctx context.Context, entry *entity.PricingEntry) error
}
