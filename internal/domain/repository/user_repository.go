package repository

import (
	"context"
	"errors"

	"mediaforge-ai-api/internal/domain/entity"
)

// ErrInsufficientBalance 余额不足，原子扣减被数据库层拒绝
var ErrInsufficientBalance = errors.New("insufficient balance")

// UserRepository 用户仓储接口
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error

	// DeductCredits 原子扣减信用点：检查余额与扣减为同一条带下限保护的
	// UPDATE，余额不足时返回 ErrInsufficientBalance，余额不会为负。
	DeductCredits(ctx context.Context, id string, amount int64) error

	// AddCredits 充值 / 管理员手工补偿入口
	AddCredits(ctx context.Context, id string, amount int64) error
}
