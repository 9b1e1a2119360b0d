// Package main 系统引导：模式迁移与种子数据
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"mediaforge-ai-api/internal/application/inpaint"
	"mediaforge-ai-api/internal/application/tool"
	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/wire"
)

// seedPricing 默认计价表。已存在的条目不覆盖，价格修改走管理面。
var seedPricing = []entity.PricingEntry{
	{Service: tool.NameTextToImage, Price: 4, Unit: entity.UnitPerMegapixel, IsActive: true},
	{Service: tool.NameImageToImage, Price: 4, Unit: entity.UnitPerMegapixel, IsActive: true},
	{Service: tool.NameImageUpscale, Price: 2, Unit: entity.UnitPerRun, IsActive: true},
	{Service: tool.NameTextToVideo, Price: 10, Unit: entity.UnitPerSecond, IsActive: true},
	{Service: tool.NameImageToVideo, Price: 12, Unit: entity.UnitPerSecond, IsActive: true},
	{Service: tool.NameTextToMusic, Price: 1, Unit: entity.UnitPerSecond, IsActive: true},
	{Service: tool.NameVoiceClone, Price: 5, Unit: entity.UnitPerRun, IsActive: true},
	{Service: tool.NameTranscribeAudio, Price: 1, Unit: entity.UnitPerRun, IsActive: true},
	{Service: inpaint.ServiceName, Price: 6, Unit: entity.UnitPerMegapixel, IsActive: true},
}

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	deps, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize bootstrap dependencies: %v", err)
	}
	defer cleanup()

	// 1. 模式迁移
	fmt.Println("Running schema migration...")
	if err := deps.PgClient.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 2. 计价表种子数据。List 返回含停用条目，避免重置管理员的停用决定
	existing, err := deps.Pricing.List(ctx)
	if err != nil {
		log.Fatalf("failed to list pricing entries: %v", err)
	}
	seeded := make(map[string]bool, len(existing))
	for _, e := range existing {
		seeded[e.Service] = true
	}

	for i := range seedPricing {
		entry := seedPricing[i]
		if seeded[entry.Service] {
			fmt.Printf("Pricing entry %s already exists, skipping.\n", entry.Service)
			continue
		}
		if err := deps.Pricing.Upsert(ctx, &entry); err != nil {
			log.Fatalf("failed to seed pricing entry %s: %v", entry.Service, err)
		}
		fmt.Printf("Seeded pricing entry: %s (%d per %s)\n", entry.Service, entry.Price, entry.Unit)
	}

	// 3. 提示词模板向量集合（Milvus 可选）
	if deps.Templates != nil {
		fmt.Println("Ensuring prompt template collection...")
		if err := deps.Templates.EnsureCollection(ctx); err != nil {
			// 提示词检索是降级功能，集合创建失败不阻断引导
			fmt.Printf("Warning: failed to ensure prompt template collection: %v\n", err)
		}
	} else {
		fmt.Println("Milvus not configured, skipping prompt template collection.")
	}

	fmt.Println("Bootstrap completed successfully.")
}
