// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
)

// UserRepository 用户仓储实现
type UserRepository struct {
	client *Client
}

// NewUserRepository 创建用户仓储
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{client: client}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(user).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var user entity.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Update 更新用户
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(user).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeductCredits 原子扣减信用点。
// 余额检查与扣减是同一条 UPDATE：条件 credits >= amount 保证余额不为负，
// 同一用户的并发扣减由行锁串行化，不存在读到陈旧余额后双双通过的竞态。
func (r *UserRepository) DeductCredits(ctx context.Context, id string, amount int64) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.DeductCredits")
	defer span.End()

	if amount < 0 {
		return fmt.Errorf("deduct amount must be non-negative")
	}
	if amount == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.User{}).
		Where("id = ? AND credits >= ?", id, amount).
		UpdateColumn("credits", gorm.Expr("credits - ?", amount))
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to deduct credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrInsufficientBalance
	}
	return nil
}

// AddCredits 增加信用点
func (r *UserRepository) AddCredits(ctx context.Context, id string, amount int64) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.AddCredits")
	defer span.End()

	if amount <= 0 {
		return fmt.Errorf("add amount must be positive")
	}

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.User{}).
		Where("id = ?", id).
		UpdateColumn("credits", gorm.Expr("credits + ?", amount))
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to add credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}
