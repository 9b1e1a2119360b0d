package wire

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/internal/infrastructure/messaging"
	"mediaforge-ai-api/internal/infrastructure/persistence/milvus"
	"mediaforge-ai-api/internal/infrastructure/persistence/postgres"
	"mediaforge-ai-api/internal/infrastructure/persistence/redis"
)

// BootstrapDeps bootstrap 进程依赖：迁移与种子数据
type BootstrapDeps struct {
	PgClient  *postgres.Client
	Pricing   *postgres.PricingRepository
	Milvus    *milvus.Client
	Templates *milvus.PromptTemplateRepository
}

// WorkerDeps usage-worker 进程依赖
type WorkerDeps struct {
	RedisClient *redis.Client
	Spend       *redis.SpendTracker
	Consumer    *messaging.Consumer
}

// ProvideUsageConsumer 提供使用事件流消费者
func ProvideUsageConsumer(client *redis.Client, cfg *config.Config) *messaging.Consumer {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "usage-worker"
	}

	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamUsageEvents,
		Group:        messaging.ConsumerGroupUsageWorker,
		ConsumerName: fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		BlockTimeout: cfg.Messaging.RedisStream.BlockTimeout,
		Backoff:      messaging.DefaultBackoffConfig(),
	})
}
