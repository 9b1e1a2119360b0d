// Package inpaint 实现图像重绘直通管线（不经过 Agent 回合）
package inpaint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/domain/repository"
	"mediaforge-ai-api/internal/domain/service"
	"mediaforge-ai-api/internal/infrastructure/provider"
	apperrors "mediaforge-ai-api/pkg/errors"
	"mediaforge-ai-api/pkg/logger"
)

var tracer = otel.Tracer("inpaint")

// ServiceName 计价条目里的服务标识
const ServiceName = "inpaint"

const maxImageBytes = 20 << 20

// Input 重绘请求
type Input struct {
	UserID string
	ChatID string
	// ImageBase64 原图，data URL 前缀可有可无
	ImageBase64 string
	// MaskBase64 可选的重绘遮罩
	MaskBase64 string
	Prompt     string
}

// Output 重绘结果
type Output struct {
	URL        string `json:"url"`
	CreditCost int64  `json:"credit_cost"`
}

// Pipeline 重绘管线：解码 -> 存储 -> 预扣减 -> 生成。
// 扣减发生在生成之前，生成失败不退款。
type Pipeline struct {
	store    service.BlobStore
	meter    *billing.Meter
	provider *provider.Client
	recorder service.UsageRecorder
	chats    repository.ChatRepository
}

// NewPipeline 创建重绘管线。chats 可为 nil（不持久化结果消息时）。
func NewPipeline(store service.BlobStore, meter *billing.Meter, p *provider.Client, recorder service.UsageRecorder, chats repository.ChatRepository) *Pipeline {
	return &Pipeline{
		store:    store,
		meter:    meter,
		provider: p,
		recorder: recorder,
		chats:    chats,
	}
}

// Run 执行一次重绘
func (p *Pipeline) Run(ctx context.Context, in *Input) (*Output, error) {
	ctx, span := tracer.Start(ctx, "inpaint.Run",
		trace.WithAttributes(attribute.String("inpaint.user_id", in.UserID)))
	defer span.End()

	if strings.TrimSpace(in.Prompt) == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "prompt is required")
	}

	imageData, width, height, err := decodeImage(in.ImageBase64)
	if err != nil {
		return nil, err
	}

	imageRef, err := p.store.Put(ctx, imageData, "image/png")
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to store source image")
	}

	maskURL := ""
	if in.MaskBase64 != "" {
		maskData, _, _, err := decodeImage(in.MaskBase64)
		if err != nil {
			return nil, err
		}
		maskRef, err := p.store.Put(ctx, maskData, "image/png")
		if err != nil {
			span.RecordError(err)
			return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to store mask image")
		}
		maskURL = maskRef.URL
	}

	// 先扣费后生成，费用按原图像素面积折算
	cost, err := p.meter.Charge(ctx, in.UserID, ServiceName, billing.Quantity{
		Megapixels: float64(width) * float64(height) / 1e6,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, genErr := p.provider.Inpaint(ctx, &provider.InpaintRequest{
		ImageURL: imageRef.URL,
		MaskURL:  maskURL,
		Prompt:   in.Prompt,
	})

	if p.recorder != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"prompt": in.Prompt,
			"width":  width,
			"height": height,
		})
		p.recorder.Record(ctx, service.UsageInput{
			UserID:         in.UserID,
			ChatID:         in.ChatID,
			Kind:           string(entity.UsageKindTool),
			FunctionName:   ServiceName,
			ToolCalls:      1,
			CreditCost:     cost,
			RequestPayload: payload,
		})
	}

	if genErr != nil {
		span.RecordError(genErr)
		return nil, mapProviderError(genErr)
	}
	if len(result.Assets) == 0 {
		return nil, apperrors.New(apperrors.CodeProviderBadOutput, "provider returned no assets")
	}

	out := &Output{
		URL:        result.Assets[0].URL,
		CreditCost: cost,
	}

	p.persistResult(ctx, in, out)
	return out, nil
}

// persistResult 把重绘结果落为助手消息，失败只打日志
func (p *Pipeline) persistResult(ctx context.Context, in *Input, out *Output) {
	if p.chats == nil || in.ChatID == "" {
		return
	}

	msg := entity.NewChatMessage(in.ChatID, entity.RoleAssistant, out.URL)
	msg.Metadata, _ = json.Marshal(map[string]string{
		"kind":   ServiceName,
		"prompt": in.Prompt,
	})
	if err := p.chats.AppendMessages(ctx, []*entity.ChatMessage{msg}); err != nil {
		logger.Error(ctx, "failed to persist inpaint result message", err)
	}
}

// decodeImage 解码 base64 图像并读取尺寸
func decodeImage(encoded string) ([]byte, int, int, error) {
	// 容忍 data URL 前缀
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, 0, 0, apperrors.New(apperrors.CodeValidationFailed, "malformed base64 image").WithError(err)
	}
	if len(data) == 0 {
		return nil, 0, 0, apperrors.New(apperrors.CodeValidationFailed, "empty image")
	}
	if len(data) > maxImageBytes {
		return nil, 0, 0, apperrors.New(apperrors.CodeValidationFailed, "image exceeds size limit")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, apperrors.New(apperrors.CodeValidationFailed, "unsupported image format").WithError(err)
	}
	return data, cfg.Width, cfg.Height, nil
}

// mapProviderError 把适配层错误映射为对外错误码
func mapProviderError(err error) error {
	pe := provider.AsError(err)
	if pe == nil {
		return apperrors.Wrap(err, apperrors.CodeGenerationFailed, "media generation failed")
	}
	switch pe.Kind {
	case provider.KindRateLimited:
		return apperrors.Wrap(err, apperrors.CodeProviderRateLimited, "provider rate limited")
	case provider.KindInvalidOutput:
		return apperrors.Wrap(err, apperrors.CodeProviderBadOutput, "provider returned invalid output")
	default:
		return apperrors.Wrap(err, apperrors.CodeProviderUnavailable, "provider unavailable")
	}
}
