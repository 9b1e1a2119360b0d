package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge-ai-api/internal/config"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(&config.GenerationConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		CallTimeout:  5 * time.Second,
		MaxRetries:   maxRetries,
		RetryBackoff: config.BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2,
		},
	})
}

func assetResponse(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(Result{Assets: []Asset{{
		URL:      "http://cdn/out.png",
		MimeType: "image/png",
	}}})
}

func TestClientRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assetResponse(w)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	result, err := client.GenerateImage(context.Background(), &ImageGenerationRequest{
		Prompt: "a cat",
		Width:  512,
		Height: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, result.Assets, 1)
	assert.Equal(t, "http://cdn/out.png", result.Assets[0].URL)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "prompt rejected", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	_, err := client.GenerateImage(context.Background(), &ImageGenerationRequest{Prompt: "x"})
	require.Error(t, err)

	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, KindInvalidOutput, pe.Kind)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	// 4xx 重试无意义，只打一次
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientExhaustsRetriesOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	_, err := client.GenerateVideo(context.Background(), &VideoGenerationRequest{Prompt: "x", DurationSeconds: 5})
	require.Error(t, err)

	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRejectsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	_, err := client.GenerateMusic(context.Background(), &MusicGenerationRequest{Prompt: "lofi", DurationSeconds: 30})
	require.Error(t, err)

	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, KindInvalidOutput, pe.Kind)
	assert.False(t, pe.Retryable())
}

func TestClientTranscribeReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		json.NewEncoder(w).Encode(Result{Text: "hello world"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	result, err := client.Transcribe(context.Background(), &TranscriptionRequest{AudioURL: "http://h/a.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
}

func TestClientImagePathDependsOnSource(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assetResponse(w)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	ctx := context.Background()

	_, err := client.GenerateImage(ctx, &ImageGenerationRequest{Prompt: "a cat"})
	require.NoError(t, err)
	_, err = client.GenerateImage(ctx, &ImageGenerationRequest{Prompt: "a cat", SourceImageURL: "http://h/i.png"})
	require.NoError(t, err)

	assert.Equal(t, []string{"/v1/images/generations", "/v1/images/edits"}, paths)
}

func TestClientConnectionFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL, 0)
	_, err := client.UpscaleImage(context.Background(), &UpscaleRequest{ImageURL: "http://h/i.png", Factor: 2})
	require.Error(t, err)

	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.True(t, pe.Retryable())
}
