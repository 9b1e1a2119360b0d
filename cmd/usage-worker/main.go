// Package main 使用事件消费者入口：聚合每日信用点消耗
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/internal/infrastructure/messaging"
	"mediaforge-ai-api/internal/infrastructure/persistence/redis"
	"mediaforge-ai-api/internal/wire"
	"mediaforge-ai-api/pkg/logger"
	"mediaforge-ai-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting usage-worker",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name + "-usage-worker",
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	deps, cleanup, err := wire.InitializeUsageWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize usage worker", err)
	}
	defer cleanup()

	handler := newSpendHandler(deps.Spend)
	deps.Consumer.RegisterHandler(messaging.TypeUsageLLM, handler)
	deps.Consumer.RegisterHandler(messaging.TypeUsageTool, handler)

	if err := deps.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down usage-worker...")
	deps.Consumer.Stop()
	log.Info("usage-worker exited")
}

// newSpendHandler 把使用事件累加进当日消耗聚合。
// 聚合是日上限软检查的数据来源，允许近似，处理失败交由消费重试。
func newSpendHandler(spend *redis.SpendTracker) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var event messaging.UsageEventMessage
		if err := msg.UnmarshalPayload(&event); err != nil {
			return err
		}
		if event.CreditCost <= 0 {
			return nil
		}
		return spend.AddSpend(ctx, event.UserID, event.CreditCost, time.Unix(event.OccurredAt, 0))
	}
}
