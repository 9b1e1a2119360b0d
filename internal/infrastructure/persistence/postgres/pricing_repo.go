// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mediaforge-ai-api/internal/domain/entity"
)

// PricingRepository 计价条目仓储实现
type PricingRepository struct {
	client *Client
}

// NewPricingRepository 创建计价仓储
func NewPricingRepository(client *Client) *PricingRepository {
	return &PricingRepository{client: client}
}

// GetByService 按服务标识读取启用中的计价条目。
// 每次计价都走这条查询，不做进程内缓存，价格修改即时生效。
func (r *PricingRepository) GetByService(ctx context.Context, service string) (*entity.PricingEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.PricingRepository.GetByService")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var entry entity.PricingEntry
	if err := db.First(&entry, "service = ? AND is_active = TRUE", service).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get pricing entry: %w", err)
	}
	return &entry, nil
}

// List 列出全部计价条目
func (r *PricingRepository) List(ctx context.Context) ([]*entity.PricingEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.PricingRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var entries []*entity.PricingEntry
	if err := db.Order("service ASC").Find(&entries).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list pricing entries: %w", err)
	}
	return entries, nil
}

// Upsert 按 service 写入或更新计价条目（管理面 / 种子数据）
func (r *PricingRepository) Upsert(ctx context.Context, entry *entity.PricingEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.PricingRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "unit", "is_active", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert pricing entry: %w", err)
	}
	return nil
}
