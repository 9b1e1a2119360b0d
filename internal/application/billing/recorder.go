// Package billing 提供信用点计价与扣减
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/domain/service"
	"mediaforge-ai-api/internal/infrastructure/messaging"
	"mediaforge-ai-api/pkg/logger"
	"mediaforge-ai-api/pkg/metrics"
)

// UsageEventPublisher 使用事件发布 port
type UsageEventPublisher interface {
	PublishUsageEvent(ctx context.Context, event *messaging.UsageEventMessage) (string, error)
}

// Recorder 使用流水记录器：落库 + 发布事件。
// 两步都是 best-effort，失败只打日志并计数，不影响主业务流程。
type Recorder struct {
	records   repository.UsageRecordRepository
	publisher UsageEventPublisher
	workflow  string
	provider  string
	model     string
}

// NewRecorder 创建使用流水记录器。publisher 可为 nil（未启用事件流时）。
func NewRecorder(records repository.UsageRecordRepository, publisher UsageEventPublisher, workflow, provider, model string) *Recorder {
	return &Recorder{
		records:   records,
		publisher: publisher,
		workflow:  workflow,
		provider:  provider,
		model:     model,
	}
}

// Record 记录一次 LLM 调用或工具执行
func (r *Recorder) Record(ctx context.Context, in service.UsageInput) {
	if r == nil || r.records == nil {
		return
	}

	ctx, span := tracer.Start(ctx, "billing.Recorder.Record",
		trace.WithAttributes(
			attribute.String("usage.kind", in.Kind),
			attribute.String("usage.function", in.FunctionName),
		))
	defer span.End()

	record := &entity.UsageRecord{
		ID:               uuid.NewString(),
		CreatedAt:        time.Now(),
		UserID:           in.UserID,
		SessionID:        in.SessionID,
		ChatID:           in.ChatID,
		Kind:             entity.UsageKind(in.Kind),
		FunctionName:     in.FunctionName,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.PromptTokens + in.CompletionTokens,
		ToolCalls:        in.ToolCalls,
		CreditCost:       in.CreditCost,
		RequestPayload:   in.RequestPayload,
		Metadata:         in.Metadata,
	}

	if err := r.records.Create(ctx, record); err != nil {
		span.RecordError(err)
		metrics.UsageRecordFailures.WithLabelValues(in.Kind).Inc()
		logger.Error(ctx, "failed to persist usage record", err,
			"kind", in.Kind,
			"function", in.FunctionName,
		)
		// 落库失败也继续发布事件，worker 侧聚合以事件为准
	}

	if r.publisher == nil {
		return
	}

	event := &messaging.UsageEventMessage{
		RecordID:         record.ID,
		UserID:           in.UserID,
		ChatID:           in.ChatID,
		Kind:             in.Kind,
		Workflow:         r.workflow,
		Provider:         r.provider,
		Model:            r.model,
		FunctionName:     in.FunctionName,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      record.TotalTokens,
		ToolCalls:        in.ToolCalls,
		CreditCost:       in.CreditCost,
		OccurredAt:       record.CreatedAt.Unix(),
	}
	if _, err := r.publisher.PublishUsageEvent(ctx, event); err != nil {
		span.RecordError(err)
		metrics.UsageRecordFailures.WithLabelValues(in.Kind).Inc()
		logger.Error(ctx, "failed to publish usage event", err,
			"kind", in.Kind,
			"function", in.FunctionName,
		)
	}
}
