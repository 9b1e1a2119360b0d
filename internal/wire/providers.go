// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/wire"

	"mediaforge-ai-api/internal/application/agent"
	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/application/inpaint"
	"mediaforge-ai-api/internal/application/tool"
	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/domain/service"
	infraembedding "mediaforge-ai-api/internal/infrastructure/embedding"
	"mediaforge-ai-api/internal/infrastructure/llm"
	"mediaforge-ai-api/internal/infrastructure/messaging"
	"mediaforge-ai-api/internal/infrastructure/persistence/milvus"
	"mediaforge-ai-api/internal/infrastructure/persistence/postgres"
	"mediaforge-ai-api/internal/infrastructure/persistence/redis"
	"mediaforge-ai-api/internal/infrastructure/provider"
	"mediaforge-ai-api/internal/infrastructure/storage"
	"mediaforge-ai-api/internal/interfaces/http/handler"
	"mediaforge-ai-api/internal/interfaces/http/middleware"
	"mediaforge-ai-api/internal/interfaces/http/router"
	"mediaforge-ai-api/pkg/logger"
)

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewUserRepository,
	postgres.NewChatRepository,
	postgres.NewPricingRepository,
	postgres.NewUsageRecordRepository,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.UserRepository), new(*postgres.UserRepository)),
	wire.Bind(new(repository.ChatRepository), new(*postgres.ChatRepository)),
	wire.Bind(new(repository.PricingRepository), new(*postgres.PricingRepository)),
	wire.Bind(new(repository.UsageRecordRepository), new(*postgres.UsageRecordRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewSpendTracker,
	ProvideRateLimiter,
	wire.Bind(new(billing.DailySpendReader), new(*redis.SpendTracker)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(billing.UsageEventPublisher), new(*messaging.Producer)),
)

// VectorSet 可选 Milvus + Embedder（不可达时提示词检索降级，不阻塞启动）
var VectorSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvidePromptTemplateRepositoryOptional,
	ProvideEmbedderOptional,
)

// CoreSet 计费、工具目录与回合引擎
var CoreSet = wire.NewSet(
	llm.NewEinoFactory,
	ProvideGenerationClient,
	ProvideBlobStore,
	ProvideMeter,
	ProvideRecorder,
	ProvideRegistry,
	ProvideEngine,
	inpaint.NewPipeline,
	wire.Bind(new(agent.ModelProvider), new(*llm.EinoFactory)),
	wire.Bind(new(agent.HistoryLoader), new(*postgres.ChatRepository)),
	wire.Bind(new(service.UsageRecorder), new(*billing.Recorder)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewHealthHandler,
	handler.NewAgentHandler,
	handler.NewInpaintHandler,
	ProvideAccountHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRateLimiter 提供按用户限流器（每秒窗口）
func ProvideRateLimiter(client *redis.Client, cfg *config.Config) *redis.RateLimiter {
	limit := cfg.Security.RateLimit.RequestsPerSecond
	if limit <= 0 {
		limit = 100
	}
	return redis.NewRateLimiter(client, limit, time.Second)
}

// ProvideMessagingProducer 提供使用事件生产者
func ProvideMessagingProducer(client *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen))
}

// ProvideMilvusClientOptional 提供可选的 Milvus 客户端
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, prompt search disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvidePromptTemplateRepositoryOptional 提供可选的提示词模板仓储
func ProvidePromptTemplateRepositoryOptional(client *milvus.Client) *milvus.PromptTemplateRepository {
	if client == nil {
		return nil
	}
	return milvus.NewPromptTemplateRepository(client)
}

// ProvideEmbedderOptional 提供可选的 Embedder
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, prompt search disabled", "error", err.Error())
		return nil, nil
	}
	return embedder, nil
}

// ProvideGenerationClient 提供媒体生成服务客户端
func ProvideGenerationClient(cfg *config.Config) *provider.Client {
	return provider.NewClient(&cfg.Generation)
}

// ProvideBlobStore 提供媒体文件存储
func ProvideBlobStore(cfg *config.Config) (service.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicURL)
	case "memory":
		return storage.NewMemoryStore(cfg.Storage.PublicURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// ProvideMeter 提供计量器
func ProvideMeter(users repository.UserRepository, pricing repository.PricingRepository, spend billing.DailySpendReader, cfg *config.Config) *billing.Meter {
	return billing.NewMeter(users, pricing, spend, cfg.Billing.DailyCreditCap)
}

// ProvideRecorder 提供使用流水记录器
func ProvideRecorder(records repository.UsageRecordRepository, publisher billing.UsageEventPublisher, factory *llm.EinoFactory, cfg *config.Config) *billing.Recorder {
	providerName, modelName := factory.DefaultModelName()
	return billing.NewRecorder(records, publisher, cfg.App.Name, providerName, modelName)
}

// ProvideRegistry 提供工具目录。目录在启动时固定，运行期不增删。
func ProvideRegistry(p *provider.Client, embedder einoembedding.Embedder, templates *milvus.PromptTemplateRepository) *tool.Registry {
	return tool.NewRegistry(
		tool.NewTextToImageTool(p),
		tool.NewImageToImageTool(p),
		tool.NewImageUpscaleTool(p),
		tool.NewTextToVideoTool(p),
		tool.NewImageToVideoTool(p),
		tool.NewTextToMusicTool(p),
		tool.NewVoiceCloneTool(p),
		tool.NewTranscribeAudioTool(p),
		tool.NewPromptSearchTool(embedder, templates),
	)
}

// ProvideEngine 提供 Agent 回合引擎
func ProvideEngine(models agent.ModelProvider, registry *tool.Registry, meter *billing.Meter, recorder service.UsageRecorder, history agent.HistoryLoader, cfg *config.Config) *agent.Engine {
	return agent.NewEngine(models, registry, meter, recorder, history, agent.Config{
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
		HistoryLimit:  cfg.Agent.HistoryLimit,
	})
}

// ProvideAccountHandler 提供账户查询处理器
func ProvideAccountHandler(users repository.UserRepository, usage repository.UsageRecordRepository, pricing repository.PricingRepository, spend *redis.SpendTracker, cfg *config.Config) *handler.AccountHandler {
	return handler.NewAccountHandler(users, usage, pricing, spend, cfg.Billing.DailyCreditCap)
}
