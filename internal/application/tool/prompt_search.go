package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/domain/entity"
	embeddinginfra "mediaforge-ai-api/internal/infrastructure/embedding"
	"mediaforge-ai-api/internal/infrastructure/persistence/milvus"
)

const NamePromptSearch = "prompt_search"

var validPromptCategories = map[string]bool{
	"image": true,
	"video": true,
	"music": true,
	"voice": true,
}

// PromptSearchArgs 提示词检索参数
type PromptSearchArgs struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// Quantity 检索免费
func (a *PromptSearchArgs) Quantity() billing.Quantity {
	return billing.Quantity{}
}

// PromptSearchTool 在提示词模板库中做语义检索，帮模型写出更好的生成提示词。
// 免费工具，不计价不扣减。
type PromptSearchTool struct {
	embedder  embedding.Embedder
	templates *milvus.PromptTemplateRepository
}

func NewPromptSearchTool(embedder embedding.Embedder, templates *milvus.PromptTemplateRepository) *PromptSearchTool {
	return &PromptSearchTool{
		embedder:  embedder,
		templates: templates,
	}
}

func (t *PromptSearchTool) Name() string   { return NamePromptSearch }
func (t *PromptSearchTool) Billable() bool { return false }

func (t *PromptSearchTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NamePromptSearch,
		Desc: "在提示词模板库中做语义检索，返回与需求相近的优质提示词。生成前想参考现成写法时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query":    {Type: schema.String, Desc: "检索关键词，描述想要的画面或效果", Required: true},
			"category": {Type: schema.String, Desc: "可选：限定模板类别", Enum: []string{"image", "video", "music", "voice"}},
			"top_k":    {Type: schema.Integer, Desc: "可选：返回条数，默认 5"},
		}),
	}
}

func (t *PromptSearchTool) Validate(rawArgs string, _ entity.UserSettings) (Args, error) {
	var args PromptSearchArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return nil, validationError("query is required")
	}
	if args.Category != "" && !validPromptCategories[args.Category] {
		return nil, validationError("unsupported category: %s", args.Category)
	}
	if args.TopK <= 0 {
		args.TopK = 5
	}
	if args.TopK > 20 {
		args.TopK = 20
	}
	return &args, nil
}

func (t *PromptSearchTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*PromptSearchArgs)

	type hit struct {
		Title      string  `json:"title"`
		Category   string  `json:"category"`
		PromptText string  `json:"prompt_text"`
		Score      float32 `json:"score"`
	}

	out := struct {
		Query          string `json:"query"`
		DisabledReason string `json:"disabled_reason,omitempty"`
		Hits           []hit  `json:"hits"`
	}{
		Query: a.Query,
		Hits:  []hit{},
	}

	// 检索不可用时降级为空结果，让模型自己写提示词
	if t.embedder == nil || t.templates == nil {
		out.DisabledReason = "prompt template index not configured"
	} else {
		vector, err := embeddinginfra.EmbedOne(ctx, t.embedder, a.Query)
		if err != nil {
			out.DisabledReason = err.Error()
		} else {
			results, err := t.templates.Search(ctx, &milvus.SearchParams{
				QueryVector: vector,
				Category:    a.Category,
				TopK:        a.TopK,
			})
			if err != nil {
				out.DisabledReason = err.Error()
			} else {
				for _, r := range results {
					out.Hits = append(out.Hits, hit{
						Title:      r.Title,
						Category:   r.Category,
						PromptText: r.PromptText,
						Score:      r.Score,
					})
				}
			}
		}
	}

	b, _ := json.Marshal(out)
	return &Result{Content: string(b)}, nil
}
