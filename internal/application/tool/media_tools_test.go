package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/domain/entity"
)

func TestTextToVideoValidate(t *testing.T) {
	tool := NewTextToVideoTool(nil)

	tests := []struct {
		name     string
		raw      string
		settings entity.UserSettings
		wantErr  bool
		wantSecs int
	}{
		{"builtin default duration", `{"prompt":"waves"}`, entity.UserSettings{}, false, defaultVideoDuration},
		{"settings default duration", `{"prompt":"waves"}`, entity.UserSettings{VideoDuration: 10}, false, 10},
		{"explicit duration", `{"prompt":"waves","duration_seconds":12}`, entity.UserSettings{}, false, 12},
		{"duration over cap", `{"prompt":"waves","duration_seconds":120}`, entity.UserSettings{}, true, 0},
		{"bad aspect ratio", `{"prompt":"waves","aspect_ratio":"21:9"}`, entity.UserSettings{}, true, 0},
		{"missing prompt", `{"duration_seconds":5}`, entity.UserSettings{}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tool.Validate(tt.raw, tt.settings)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			a := args.(*TextToVideoArgs)
			assert.Equal(t, tt.wantSecs, a.DurationSeconds)
			assert.Equal(t, float64(tt.wantSecs), a.Quantity().Seconds)
		})
	}
}

func TestImageToVideoValidateRequiresSource(t *testing.T) {
	tool := NewImageToVideoTool(nil)

	_, err := tool.Validate(`{"prompt":"zoom in"}`, entity.UserSettings{})
	require.Error(t, err)

	args, err := tool.Validate(`{"prompt":"zoom in","source_image_url":"http://h/i.png"}`, entity.UserSettings{})
	require.NoError(t, err)
	assert.Equal(t, defaultVideoDuration, args.(*ImageToVideoArgs).DurationSeconds)
}

func TestTextToMusicValidate(t *testing.T) {
	tool := NewTextToMusicTool(nil)

	_, err := tool.Validate(`{"prompt":"lofi","duration_seconds":999}`, entity.UserSettings{})
	require.Error(t, err)

	args, err := tool.Validate(`{"prompt":"lofi"}`, entity.UserSettings{AudioDuration: 60})
	require.NoError(t, err)
	assert.Equal(t, float64(60), args.(*TextToMusicArgs).Quantity().Seconds)
}

func TestVoiceCloneValidate(t *testing.T) {
	tool := NewVoiceCloneTool(nil)

	_, err := tool.Validate(`{}`, entity.UserSettings{})
	require.Error(t, err)

	// 未指定音色时取用户偏好
	args, err := tool.Validate(`{"text":"hello"}`, entity.UserSettings{Voice: "warm-female"})
	require.NoError(t, err)
	assert.Equal(t, "warm-female", args.(*VoiceCloneArgs).Voice)
}

func TestTranscribeAudioValidate(t *testing.T) {
	tool := NewTranscribeAudioTool(nil)

	_, err := tool.Validate(`{}`, entity.UserSettings{})
	require.Error(t, err)

	_, err = tool.Validate(`{"audio_url":"http://h/a.mp3"}`, entity.UserSettings{})
	require.NoError(t, err)
}

func TestPromptSearchNotBillable(t *testing.T) {
	tool := NewPromptSearchTool(nil, nil)
	assert.False(t, tool.Billable())
}
