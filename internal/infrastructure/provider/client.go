// Package provider 提供外部媒体生成服务的 HTTP 适配层
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mediaforge-ai-api/internal/config"
	"mediaforge-ai-api/pkg/logger"
)

var tracer = otel.Tracer("provider")

// Asset 生成产物
type Asset struct {
	URL             string  `json:"url"`
	MimeType        string  `json:"mime_type"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Result 生成结果，媒体类操作返回 Assets，转写返回 Text
type Result struct {
	Assets []Asset `json:"assets"`
	Text   string  `json:"text,omitempty"`
}

// Client 媒体生成服务客户端。
// 仅对不可用 / 限流错误做有界重试；响应格式错误不重试。
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	backoff    config.BackoffConfig
	httpClient *http.Client
}

// NewClient 创建生成服务客户端
func NewClient(cfg *config.GenerationConfig) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.RetryBackoff
	if backoff.Initial <= 0 {
		backoff = config.BackoffConfig{
			Initial:    500 * time.Millisecond,
			Max:        10 * time.Second,
			Multiplier: 2,
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: maxRetries,
		backoff:    backoff,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ImageGenerationRequest 文生图 / 图生图请求
type ImageGenerationRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	SourceImageURL string  `json:"source_image_url,omitempty"`
	Strength       float64 `json:"strength,omitempty"`
}

// UpscaleRequest 图像放大请求
type UpscaleRequest struct {
	ImageURL string `json:"image_url"`
	Factor   int    `json:"factor"`
}

// VideoGenerationRequest 文生视频 / 图生视频请求
type VideoGenerationRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	SourceImageURL  string `json:"source_image_url,omitempty"`
}

// MusicGenerationRequest 音乐生成请求
type MusicGenerationRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
}

// VoiceCloneRequest 语音合成 / 音色克隆请求
type VoiceCloneRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice,omitempty"`
	VoiceSampleURL string `json:"voice_sample_url,omitempty"`
}

// TranscriptionRequest 语音转写请求
type TranscriptionRequest struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language,omitempty"`
}

// InpaintRequest 图像重绘请求
type InpaintRequest struct {
	ImageURL string `json:"image_url"`
	MaskURL  string `json:"mask_url"`
	Prompt   string `json:"prompt"`
}

// GenerateImage 文生图 / 图生图
func (c *Client) GenerateImage(ctx context.Context, req *ImageGenerationRequest) (*Result, error) {
	path := "/v1/images/generations"
	if req.SourceImageURL != "" {
		path = "/v1/images/edits"
	}
	return c.do(ctx, path, req)
}

// UpscaleImage 图像放大
func (c *Client) UpscaleImage(ctx context.Context, req *UpscaleRequest) (*Result, error) {
	return c.do(ctx, "/v1/images/upscale", req)
}

// GenerateVideo 文生视频 / 图生视频
func (c *Client) GenerateVideo(ctx context.Context, req *VideoGenerationRequest) (*Result, error) {
	return c.do(ctx, "/v1/videos/generations", req)
}

// GenerateMusic 音乐生成
func (c *Client) GenerateMusic(ctx context.Context, req *MusicGenerationRequest) (*Result, error) {
	return c.do(ctx, "/v1/music/generations", req)
}

// CloneVoice 语音合成
func (c *Client) CloneVoice(ctx context.Context, req *VoiceCloneRequest) (*Result, error) {
	return c.do(ctx, "/v1/audio/speech", req)
}

// Transcribe 语音转写
func (c *Client) Transcribe(ctx context.Context, req *TranscriptionRequest) (*Result, error) {
	return c.do(ctx, "/v1/audio/transcriptions", req)
}

// Inpaint 图像重绘
func (c *Client) Inpaint(ctx context.Context, req *InpaintRequest) (*Result, error) {
	return c.do(ctx, "/v1/images/inpaint", req)
}

// do 执行一次生成调用，对可重试错误做有界退避重试
func (c *Client) do(ctx context.Context, path string, payload interface{}) (*Result, error) {
	ctx, span := tracer.Start(ctx, "provider.do",
		trace.WithAttributes(attribute.String("provider.path", path)))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	var lastErr *Error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff.Initial
			for i := 1; i < attempt; i++ {
				wait = time.Duration(float64(wait) * c.backoff.Multiplier)
				if wait > c.backoff.Max {
					wait = c.backoff.Max
					break
				}
			}
			logger.FromContext(ctx).Warn("retrying provider call",
				"path", path,
				"attempt", attempt,
				"wait", wait.String(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, callErr := c.doOnce(ctx, path, body)
		if callErr == nil {
			span.SetAttributes(attribute.Int("provider.attempts", attempt+1))
			return result, nil
		}

		span.RecordError(callErr)
		if !callErr.Retryable() {
			return nil, callErr
		}
		lastErr = callErr
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte) (*Result, *Error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, StatusCode: httpResp.StatusCode, Message: "rate limited by provider"}
	case httpResp.StatusCode >= 500:
		return nil, &Error{Kind: KindUnavailable, StatusCode: httpResp.StatusCode, Message: "provider unavailable"}
	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		// 4xx（限流除外）视为请求本身有问题，不重试
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &Error{Kind: KindInvalidOutput, StatusCode: httpResp.StatusCode, Message: string(msg)}
	}

	var result Result
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		return nil, &Error{Kind: KindInvalidOutput, StatusCode: httpResp.StatusCode, Message: "malformed response body", Err: err}
	}
	if len(result.Assets) == 0 && result.Text == "" {
		return nil, &Error{Kind: KindInvalidOutput, StatusCode: httpResp.StatusCode, Message: "response contains no assets"}
	}
	return &result, nil
}
