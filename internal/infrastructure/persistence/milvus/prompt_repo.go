// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HNSW 索引参数
const (
	hnswM              = 16
	hnswEfConstruction = 200
	hnswSearchEf       = 128
)

// PromptTemplateRepository 提示词模板向量仓储
type PromptTemplateRepository struct {
	client *Client
}

// NewPromptTemplateRepository 创建提示词模板向量仓储
func NewPromptTemplateRepository(client *Client) *PromptTemplateRepository {
	return &PromptTemplateRepository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	QueryVector []float32
	Category    string
	TopK        int
}

// SearchResult 检索结果
type SearchResult struct {
	ID         string
	Score      float32
	Category   string
	Title      string
	PromptText string
}

// EnsureCollection 确保集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *PromptTemplateRepository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionPromptTemplates)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.createCollection(ctx); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.createIndex(ctx)
	}

	return r.client.LoadCollection(ctx, CollectionPromptTemplates)
}

func (r *PromptTemplateRepository) createCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.PromptTemplateRepository.createCollection")
	defer span.End()

	schema := PromptTemplatesSchema()
	schema.CollectionName = r.client.CollectionName(CollectionPromptTemplates)

	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (r *PromptTemplateRepository) createIndex(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.PromptTemplateRepository.createIndex")
	defer span.End()

	idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstruction)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	collName := r.client.CollectionName(CollectionPromptTemplates)
	if err := r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Insert 写入提示词模板向量
func (r *PromptTemplateRepository) Insert(ctx context.Context, templates []*PromptTemplateVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.PromptTemplateRepository.Insert",
		trace.WithAttributes(attribute.Int("count", len(templates))))
	defer span.End()

	if len(templates) == 0 {
		return nil
	}

	ids := make([]string, len(templates))
	vectors := make([][]float32, len(templates))
	categories := make([]string, len(templates))
	titles := make([]string, len(templates))
	promptTexts := make([]string, len(templates))

	for i, tpl := range templates {
		ids[i] = tpl.ID
		vectors[i] = tpl.Vector
		categories[i] = tpl.Category
		titles[i] = tpl.Title
		promptTexts[i] = tpl.PromptText
	}

	collName := r.client.CollectionName(CollectionPromptTemplates)
	_, err := r.client.milvus.Insert(ctx, collName, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector("vector", VectorDimension, vectors),
		entity.NewColumnVarChar("category", categories),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("prompt_text", promptTexts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert prompt templates: %w", err)
	}
	return nil
}

// Search 语义检索提示词模板
func (r *PromptTemplateRepository) Search(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.PromptTemplateRepository.Search",
		trace.WithAttributes(
			attribute.String("category", params.Category),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	filter := ""
	if category := strings.TrimSpace(params.Category); category != "" {
		filter = fmt.Sprintf(`category == "%s"`, category)
	}

	sp, err := entity.NewIndexHNSWSearchParam(hnswSearchEf)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	collName := r.client.CollectionName(CollectionPromptTemplates)
	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		filter,
		[]string{"id", "category", "title", "prompt_text"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}

			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = idCol.Data()[i]
			}
			if catCol, ok := result.Fields.GetColumn("category").(*entity.ColumnVarChar); ok {
				sr.Category = catCol.Data()[i]
			}
			if titleCol, ok := result.Fields.GetColumn("title").(*entity.ColumnVarChar); ok {
				sr.Title = titleCol.Data()[i]
			}
			if textCol, ok := result.Fields.GetColumn("prompt_text").(*entity.ColumnVarChar); ok {
				sr.PromptText = textCol.Data()[i]
			}

			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// DeleteByID 删除提示词模板向量
func (r *PromptTemplateRepository) DeleteByID(ctx context.Context, id string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.PromptTemplateRepository.DeleteByID",
		trace.WithAttributes(attribute.String("template_id", id)))
	defer span.End()

	collName := r.client.CollectionName(CollectionPromptTemplates)
	filter := fmt.Sprintf(`id == "%s"`, id)
	if err := r.client.milvus.Delete(ctx, collName, "", filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete prompt template: %w", err)
	}
	return nil
}
