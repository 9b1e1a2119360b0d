//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/internal/infrastructure/persistence/postgres"
	"mediaforge-ai-api/internal/infrastructure/persistence/redis"
	"mediaforge-ai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关应用
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		CoreSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化 bootstrap 依赖（迁移 + 种子数据）
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*BootstrapDeps, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		ProvideMilvusClientOptional,
		ProvidePromptTemplateRepositoryOptional,
		postgres.NewPricingRepository,
		wire.Struct(new(BootstrapDeps), "*"),
	)
	return nil, nil, nil
}

// InitializeUsageWorker 初始化使用事件消费者依赖
func InitializeUsageWorker(ctx context.Context, cfg *config.Config) (*WorkerDeps, func(), error) {
	wire.Build(
		ProvideRedisClient,
		redis.NewSpendTracker,
		ProvideUsageConsumer,
		wire.Struct(new(WorkerDeps), "*"),
	)
	return nil, nil, nil
}
