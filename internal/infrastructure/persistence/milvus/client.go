// Package milvus 提供提示词模板向量检索的 Milvus 访问层
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mediaforge-ai-api/internal/config"
)

var tracer = otel.Tracer("milvus")

// Client Milvus 连接封装。Milvus 是可选依赖，
// 所有方法都容忍 nil 接收者，未配置时检索功能整体降级。
type Client struct {
	milvus client.Client
	prefix string
}

// NewClient 创建 Milvus 客户端
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	clientCfg := client.Config{
		Address: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	if cfg.User != "" && cfg.Password != "" {
		clientCfg.Username = cfg.User
		clientCfg.Password = cfg.Password
	}

	milvusClient, err := client.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		milvus: milvusClient,
		prefix: cfg.CollectionPrefix,
	}, nil
}

// Milvus 返回底层 SDK 客户端
func (c *Client) Milvus() client.Client {
	if c == nil {
		return nil
	}
	return c.milvus
}

// Close 关闭连接
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.milvus.Close()
}

// HealthCheck 连通性检查，readiness 探针使用
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("milvus not configured")
	}

	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, c.CollectionName("health_check")); err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// CollectionName 返回带环境前缀的集合名
func (c *Client) CollectionName(name string) string {
	if c == nil || c.prefix == "" {
		return name
	}
	return c.prefix + "_" + name
}

// HasCollection 检查集合是否存在
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.HasCollection(ctx, c.CollectionName(name))
}

// LoadCollection 把集合加载进内存，检索前必须完成
func (c *Client) LoadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.CollectionName(name), false)
}
