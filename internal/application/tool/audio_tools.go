package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"

	"mediaforge-ai-api/internal/application/billing"
	"mediaforge-ai-api/internal/domain/entity"
	"mediaforge-ai-api/internal/infrastructure/provider"
)

const (
	NameTextToMusic     = "text_to_music"
	NameVoiceClone      = "voice_clone"
	NameTranscribeAudio = "transcribe_audio"

	defaultMusicDuration = 30
	maxMusicDuration     = 300
	maxSpeechTextLength  = 8000
)

// TextToMusicArgs 音乐生成参数
type TextToMusicArgs struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

func (a *TextToMusicArgs) Quantity() billing.Quantity {
	return billing.Quantity{Seconds: float64(a.DurationSeconds)}
}

// TextToMusicTool 音乐生成
type TextToMusicTool struct {
	provider *provider.Client
}

func NewTextToMusicTool(p *provider.Client) *TextToMusicTool {
	return &TextToMusicTool{provider: p}
}

func (t *TextToMusicTool) Name() string   { return NameTextToMusic }
func (t *TextToMusicTool) Billable() bool { return true }

func (t *TextToMusicTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameTextToMusic,
		Desc: "根据文字描述生成一段音乐。用户想要背景音乐、配乐、歌曲时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt":           {Type: schema.String, Desc: "音乐风格与情绪的英文描述", Required: true},
			"duration_seconds": {Type: schema.Integer, Desc: "可选：时长（秒），默认取用户偏好"},
		}),
	}
}

func (t *TextToMusicTool) Validate(rawArgs string, settings entity.UserSettings) (Args, error) {
	var args TextToMusicArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.Prompt = strings.TrimSpace(args.Prompt)
	if args.Prompt == "" {
		return nil, validationError("prompt is required")
	}

	if args.DurationSeconds == 0 {
		if settings.AudioDuration > 0 {
			args.DurationSeconds = settings.AudioDuration
		} else {
			args.DurationSeconds = defaultMusicDuration
		}
	}
	if args.DurationSeconds < 0 || args.DurationSeconds > maxMusicDuration {
		return nil, validationError("duration_seconds must be within (0, %d]", maxMusicDuration)
	}
	return &args, nil
}

func (t *TextToMusicTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*TextToMusicArgs)

	result, err := t.provider.GenerateMusic(ctx, &provider.MusicGenerationRequest{
		Prompt:          a.Prompt,
		DurationSeconds: a.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

// VoiceCloneArgs 语音合成参数
type VoiceCloneArgs struct {
	Text           string `json:"text"`
	Voice          string `json:"voice,omitempty"`
	VoiceSampleURL string `json:"voice_sample_url,omitempty"`
}

// Quantity 语音按次计价
func (a *VoiceCloneArgs) Quantity() billing.Quantity {
	return billing.Quantity{}
}

// VoiceCloneTool 语音合成（可选音色克隆）
type VoiceCloneTool struct {
	provider *provider.Client
}

func NewVoiceCloneTool(p *provider.Client) *VoiceCloneTool {
	return &VoiceCloneTool{provider: p}
}

func (t *VoiceCloneTool) Name() string   { return NameVoiceClone }
func (t *VoiceCloneTool) Billable() bool { return true }

func (t *VoiceCloneTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameVoiceClone,
		Desc: "把文字转成语音，可指定内置音色或用样本克隆音色。用户想要配音、朗读时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"text":             {Type: schema.String, Desc: "要朗读的文本", Required: true},
			"voice":            {Type: schema.String, Desc: "可选：内置音色名，默认取用户偏好"},
			"voice_sample_url": {Type: schema.String, Desc: "可选：音色样本音频地址，提供时做音色克隆"},
		}),
	}
}

func (t *VoiceCloneTool) Validate(rawArgs string, settings entity.UserSettings) (Args, error) {
	var args VoiceCloneArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.Text = strings.TrimSpace(args.Text)
	if args.Text == "" {
		return nil, validationError("text is required")
	}
	if len(args.Text) > maxSpeechTextLength {
		return nil, validationError("text exceeds %d characters", maxSpeechTextLength)
	}

	if args.Voice == "" && args.VoiceSampleURL == "" {
		args.Voice = settings.Voice
	}
	return &args, nil
}

func (t *VoiceCloneTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*VoiceCloneArgs)

	result, err := t.provider.CloneVoice(ctx, &provider.VoiceCloneRequest{
		Text:           a.Text,
		Voice:          a.Voice,
		VoiceSampleURL: a.VoiceSampleURL,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}

// TranscribeAudioArgs 语音转写参数
type TranscribeAudioArgs struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language,omitempty"`
}

// Quantity 转写按次计价，音频时长未知
func (a *TranscribeAudioArgs) Quantity() billing.Quantity {
	return billing.Quantity{}
}

// TranscribeAudioTool 语音转写
type TranscribeAudioTool struct {
	provider *provider.Client
}

func NewTranscribeAudioTool(p *provider.Client) *TranscribeAudioTool {
	return &TranscribeAudioTool{provider: p}
}

func (t *TranscribeAudioTool) Name() string   { return NameTranscribeAudio }
func (t *TranscribeAudioTool) Billable() bool { return true }

func (t *TranscribeAudioTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: NameTranscribeAudio,
		Desc: "把音频转写成文字。用户上传了音频并要求识别内容、出字幕时使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"audio_url": {Type: schema.String, Desc: "音频文件地址", Required: true},
			"language":  {Type: schema.String, Desc: "可选：音频语言代码，如 zh / en，默认自动识别"},
		}),
	}
}

func (t *TranscribeAudioTool) Validate(rawArgs string, _ entity.UserSettings) (Args, error) {
	var args TranscribeAudioArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, validationError("malformed arguments: %v", err)
	}

	args.AudioURL = strings.TrimSpace(args.AudioURL)
	if args.AudioURL == "" {
		return nil, validationError("audio_url is required")
	}
	return &args, nil
}

func (t *TranscribeAudioTool) Execute(ctx context.Context, args Args) (*Result, error) {
	a := args.(*TranscribeAudioArgs)

	result, err := t.provider.Transcribe(ctx, &provider.TranscriptionRequest{
		AudioURL: a.AudioURL,
		Language: a.Language,
	})
	if err != nil {
		return nil, err
	}
	return assetResult(result), nil
}
