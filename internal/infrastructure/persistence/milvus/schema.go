// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionPromptTemplates 提示词模板集合
	CollectionPromptTemplates = "prompt_templates"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// PromptTemplatesSchema 提示词模板 Collection Schema
func PromptTemplatesSchema() *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionPromptTemplates,
		Description:    "Curated prompt templates for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "category",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "prompt_text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// PromptTemplateVector 提示词模板向量数据结构
type PromptTemplateVector struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	PromptText string    `json:"prompt_text"`
}
