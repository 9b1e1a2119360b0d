// Package tool 定义生成工具目录与类型化的工具执行契约
package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/domain/entity"
	apperrors "mediaforge-ai-api/pkg/errors"
)

// Args 已校验的类型化工具参数。每个工具定义自己的参数结构，
// 模型产出的 JSON 在进入执行前先解码并校验。
type Args interface {
	// Quantity 本次执行的计费工作量
	Quantity() billing.Quantity
}

// Result 工具执行结果
type Result struct {
	// Content 回灌给模型的 JSON 文本
	Content string
	// AssetURLs 产物地址，用于响应里的 parts
	AssetURLs []string
}

// Tool 生成工具契约。Info 描述 function-calling 契约，
// Validate 把原始 JSON 参数解码为类型化参数（校验失败返回 CodeValidationFailed），
// Execute 只接受已校验的参数。
type Tool interface {
	Name() string
	Info() *schema.ToolInfo
	// Billable 为 false 的工具跳过计价与扣减
	Billable() bool
	Validate(rawArgs string, settings entity.UserSettings) (Args, error)
	Execute(ctx context.Context, args Args) (*Result, error)
}

// Registry 固定工具目录，构造时建立，运行期只读
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry 创建工具目录
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		if _, ok := r.tools[t.Name()]; ok {
			continue
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Get 按名称查找工具。模型请求了目录外的工具名是硬错误，
// 说明 function-calling 契约与目录不一致。
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, apperrors.New(apperrors.CodeToolNotFound, "tool not found").
			WithDetail(fmt.Sprintf("tool: %s", name))
	}
	return t, nil
}

// Specs 返回目录内全部工具的 function-calling 描述，用于绑定到 ChatModel
func (r *Registry) Specs() []*schema.ToolInfo {
	specs := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Info())
	}
	return specs
}

// Names 返回目录内全部工具名
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// validationError 构造参数校验错误
func validationError(format string, args ...interface{}) error {
	return apperrors.New(apperrors.CodeValidationFailed, "invalid tool arguments").
		WithDetail(fmt.Sprintf(format, args...))
}
